package dex

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"sslScope/internal/model"
)

// VaultReader reads the single-sided liquidity vault contract.
type VaultReader struct {
	caller ContractCaller
}

func NewVaultReader(caller ContractCaller) *VaultReader {
	return &VaultReader{caller: caller}
}

// VaultState reads every public field of the vault in parallel.
func (r *VaultReader) VaultState(ctx context.Context, vault common.Address) (model.VaultState, error) {
	if r.caller == nil {
		return model.VaultState{}, fmt.Errorf("chain client is nil")
	}
	parsed, err := VaultABI()
	if err != nil {
		return model.VaultState{}, fmt.Errorf("parse vault abi: %w", err)
	}

	state := model.VaultState{Address: vault}
	call := func(ctx context.Context, method string) (interface{}, error) {
		values, err := callContractMethod(ctx, r.caller, vault, parsed, method, nil)
		if err != nil {
			return nil, err
		}
		return values[0], nil
	}
	addressField := func(method string, dst *common.Address) func(context.Context) error {
		return func(ctx context.Context) error {
			v, err := call(ctx, method)
			if err != nil {
				return err
			}
			*dst, err = asAddress(v)
			if err != nil {
				return fmt.Errorf("%s: %w", method, err)
			}
			return nil
		}
	}
	tickField := func(method string, dst *int32) func(context.Context) error {
		return func(ctx context.Context) error {
			v, err := call(ctx, method)
			if err != nil {
				return err
			}
			n, err := asBigInt(v)
			if err != nil {
				return fmt.Errorf("%s: %w", method, err)
			}
			*dst, err = int24FromBig(n)
			if err != nil {
				return fmt.Errorf("%s: %w", method, err)
			}
			return nil
		}
	}

	reads := []func(context.Context) error{
		addressField("pool", &state.Pool),
		addressField("user", &state.User),
		addressField("token0", &state.Token0),
		addressField("token1", &state.Token1),
		tickField("lower", &state.Lower),
		tickField("upper", &state.Upper),
		tickField("rangeSize", &state.RangeSize),
		func(ctx context.Context) error {
			v, err := call(ctx, "isInRange")
			if err != nil {
				return err
			}
			inRange, ok := v.(bool)
			if !ok {
				return fmt.Errorf("isInRange: unsupported type %T", v)
			}
			state.IsInRange = inRange
			return nil
		},
		func(ctx context.Context) error {
			v, err := call(ctx, "lastRerange")
			if err != nil {
				return err
			}
			ts, err := asBigInt(v)
			if err != nil {
				return fmt.Errorf("lastRerange: %w", err)
			}
			if ts.Sign() > 0 {
				state.LastRerange = time.Unix(ts.Int64(), 0).UTC()
			}
			return nil
		},
		func(ctx context.Context) error {
			values, err := callContractMethod(ctx, r.caller, vault, parsed, "getPosition", nil)
			if err != nil {
				return err
			}
			pos, err := positionFromValues(values)
			if err != nil {
				return fmt.Errorf("getPosition: %w", err)
			}
			state.Position = pos
			return nil
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, read := range reads {
		read := read
		g.Go(func() error { return read(gctx) })
	}
	if err := g.Wait(); err != nil {
		return model.VaultState{}, err
	}
	return state, nil
}

// PositionKey is keccak256(abi.encodePacked(owner, tickLower, tickUpper)),
// the key a V3 pool stores positions under.
func PositionKey(owner common.Address, tickLower, tickUpper int32) common.Hash {
	packed := make([]byte, 0, common.AddressLength+6)
	packed = append(packed, owner.Bytes()...)
	packed = append(packed, int24Bytes(tickLower)...)
	packed = append(packed, int24Bytes(tickUpper)...)
	return crypto.Keccak256Hash(packed)
}

// Position reads a pool position by owner and ticks.
func Position(ctx context.Context, caller ContractCaller, pool, owner common.Address, tickLower, tickUpper int32) (*model.Position, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	key := PositionKey(owner, tickLower, tickUpper)
	values, err := callContractMethod(ctx, caller, pool, poolABI, "positions", nil, [32]byte(key))
	if err != nil {
		return nil, err
	}
	return positionFromValues(values)
}

func positionFromValues(values []interface{}) (*model.Position, error) {
	if len(values) < 5 {
		return nil, fmt.Errorf("short position output: %d values", len(values))
	}
	ints := make([]*big.Int, 5)
	for i := range ints {
		n, err := asBigInt(values[i])
		if err != nil {
			return nil, err
		}
		ints[i] = n
	}
	return &model.Position{
		Liquidity:                ints[0],
		FeeGrowthInside0LastX128: ints[1],
		FeeGrowthInside1LastX128: ints[2],
		TokensOwed0:              ints[3],
		TokensOwed1:              ints[4],
	}, nil
}

func int24Bytes(v int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return buf[1:]
}
