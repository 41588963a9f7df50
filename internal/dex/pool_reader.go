package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sslScope/internal/model"
)

const tokenRetryAfter = 5 * time.Minute

// PoolReader reads live pool state over eth_call.
type PoolReader struct {
	caller ContractCaller
	pools  *PoolMetaCache
	tokens *TokenMetaCache
	logger *zap.Logger
}

func NewPoolReader(caller ContractCaller, logger *zap.Logger) *PoolReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolReader{
		caller: caller,
		pools:  NewPoolMetaCache(),
		tokens: NewTokenMetaCache(),
		logger: logger,
	}
}

// PoolState reads slot0, liquidity and token metadata. When the caller can
// report the head block, all reads are pinned to it.
func (r *PoolReader) PoolState(ctx context.Context, pool common.Address) (model.PoolState, error) {
	meta, ok := r.pools.Get(pool)
	if !ok {
		var err error
		meta, err = FetchPoolMeta(ctx, r.caller, pool)
		if err != nil {
			return model.PoolState{}, fmt.Errorf("fetch pool meta: %w", err)
		}
		r.pools.Set(pool, meta)
	}

	var block *big.Int
	state := model.PoolState{
		Address:     pool,
		FeeTier:     meta.Fee,
		TickSpacing: meta.TickSpacing,
	}
	if br, ok := r.caller.(BlockNumberReader); ok {
		head, err := br.LatestBlockNumber(ctx)
		if err != nil {
			return model.PoolState{}, fmt.Errorf("latest block: %w", err)
		}
		state.BlockNumber = head
		block = new(big.Int).SetUint64(head)
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := callContractMethod(gctx, r.caller, pool, poolABI, "slot0", block)
		if err != nil {
			return err
		}
		if len(values) < 2 {
			return fmt.Errorf("slot0: short output")
		}
		sqrt, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("slot0 sqrt price: %w", err)
		}
		tickInt, err := asBigInt(values[1])
		if err != nil {
			return fmt.Errorf("slot0 tick: %w", err)
		}
		tick, err := int24FromBig(tickInt)
		if err != nil {
			return fmt.Errorf("slot0 tick: %w", err)
		}
		state.SqrtPriceX96 = sqrt
		state.Tick = tick
		return nil
	})
	g.Go(func() error {
		values, err := callContractMethod(gctx, r.caller, pool, poolABI, "liquidity", block)
		if err != nil {
			return err
		}
		liq, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("liquidity: %w", err)
		}
		state.Liquidity = liq
		return nil
	})
	g.Go(func() error {
		state.Token0 = r.tokenMeta(gctx, common.HexToAddress(meta.Token0))
		return nil
	})
	g.Go(func() error {
		state.Token1 = r.tokenMeta(gctx, common.HexToAddress(meta.Token1))
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.PoolState{}, err
	}

	return state, nil
}

// tokenMeta never fails: a token whose decimals cannot be read is returned
// unresolved so downstream amounts degrade to zero.
func (r *PoolReader) tokenMeta(ctx context.Context, token common.Address) model.TokenMeta {
	if meta, ok := r.tokens.Get(token); ok {
		return meta
	}
	meta, err := FetchTokenMeta(ctx, r.caller, token, r.logger)
	if err != nil && ctx.Err() != nil {
		return meta
	}
	if err != nil {
		r.logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	r.tokens.Set(token, meta)
	return meta
}
