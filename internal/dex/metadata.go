package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sslScope/internal/model"
)

// ContractCaller is the eth_call surface the readers need. *chain.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BlockNumberReader is implemented by callers that can pin reads to a block.
type BlockNumberReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// PoolMetaCache caches immutable pool metadata by address.
type PoolMetaCache struct {
	c *cache.Cache
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{c: cache.New(cache.NoExpiration, 0)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	v, ok := c.c.Get(address.Hex())
	if !ok {
		return model.PoolMeta{}, false
	}
	return v.(model.PoolMeta), true
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.c.Set(address.Hex(), meta, cache.NoExpiration)
}

// TokenMetaCache caches token metadata by address. Entries whose decimals
// could not be read expire so the next lookup tries again.
type TokenMetaCache struct {
	c *cache.Cache
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{c: cache.New(cache.NoExpiration, tokenRetryAfter)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	v, ok := c.c.Get(address.Hex())
	if !ok {
		return model.TokenMeta{}, false
	}
	return v.(model.TokenMeta), true
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	ttl := cache.NoExpiration
	if !meta.DecimalsKnown {
		ttl = tokenRetryAfter
	}
	c.c.Set(address.Hex(), meta, ttl)
}

// FetchPoolMeta loads immutable pool metadata from chain.
func FetchPoolMeta(ctx context.Context, caller ContractCaller, pool common.Address) (model.PoolMeta, error) {
	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	var (
		token0, token1 common.Address
		fee            uint32
		tickSpacing    int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := callContractMethod(gctx, caller, pool, poolABI, "token0", nil)
		if err != nil {
			return err
		}
		token0, err = asAddress(values[0])
		if err != nil {
			return fmt.Errorf("token0: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		values, err := callContractMethod(gctx, caller, pool, poolABI, "token1", nil)
		if err != nil {
			return err
		}
		token1, err = asAddress(values[0])
		if err != nil {
			return fmt.Errorf("token1: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		values, err := callContractMethod(gctx, caller, pool, poolABI, "fee", nil)
		if err != nil {
			return err
		}
		feeInt, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("fee: %w", err)
		}
		fee = uint32(feeInt.Uint64())
		return nil
	})
	g.Go(func() error {
		values, err := callContractMethod(gctx, caller, pool, poolABI, "tickSpacing", nil)
		if err != nil {
			return err
		}
		tickSpacingInt, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("tick spacing: %w", err)
		}
		tickSpacing, err = int24FromBig(tickSpacingInt)
		if err != nil {
			return fmt.Errorf("tick spacing: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.PoolMeta{}, err
	}
	if tickSpacing <= 0 {
		return model.PoolMeta{}, fmt.Errorf("tick spacing: invalid value %d", tickSpacing)
	}

	return model.PoolMeta{
		Token0:      token0.Hex(),
		Token1:      token1.Hex(),
		Fee:         fee,
		TickSpacing: tickSpacing,
	}, nil
}

func callContractMethod(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty output", method)
	}
	return values, nil
}

// FetchTokenMeta loads token metadata via ERC20 calls. Symbol and name fall
// back to bytes32 encodings; only a failed decimals call is an error.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := erc20ABI(erc20String)
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABI(erc20Bytes32)
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callContractMethod(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals
	meta.DecimalsKnown = true

	if values, err := callContractMethod(ctx, caller, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callContractMethod(ctx, caller, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := callContractMethod(ctx, caller, token, stringABI, "name", nil); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := callContractMethod(ctx, caller, token, bytes32ABI, "name", nil); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
