package profile

import (
	"context"
	"fmt"
	"math/big"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sslScope/internal/metrics"
	"sslScope/internal/model"
	"sslScope/internal/swap"
	"sslScope/internal/v3math"
)

// Builder turns a processed tick window into chart entries. Entries are
// computed on a shared worker pool.
type Builder struct {
	pool    *ants.Pool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewBuilder(workers int, m *metrics.Metrics, logger *zap.Logger) (*Builder, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Builder{pool: pool, metrics: m, logger: logger}, nil
}

// Release stops the worker pool.
func (b *Builder) Release() {
	b.pool.Release()
}

// Build prices every processed tick, estimates the token amounts locked in
// the bar below it and flags the bars inside [lower, upper]. When pool is nil
// or its token decimals are unknown the TVL fields stay zero.
func (b *Builder) Build(ctx context.Context, data *model.PoolTickData, pool *model.PoolState, lower, upper *big.Int) ([]model.ChartEntry, error) {
	if data == nil {
		return nil, fmt.Errorf("tick data is nil")
	}
	start := time.Now()
	defer b.metrics.ObserveBuild(start)

	withTVL := pool.TokensResolved()
	if !withTVL {
		b.logger.Debug("token metadata incomplete, tvl omitted", zap.String("pool", data.Pool.Hex()))
	}

	entries := make([]model.ChartEntry, len(data.TicksProcessed))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for i := range data.TicksProcessed {
		i := i
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			entry, err := buildEntry(data, i, pool, withTVL, lower, upper)
			if err != nil {
				fail(err)
				return
			}
			entries[i] = entry
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit tick %d: %w", i, err))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	return Smear(entries), nil
}

// Smear shifts each entry's TVL one bar down so a bar shows the amount
// swapped across it. The last entry keeps its own values.
func Smear(entries []model.ChartEntry) []model.ChartEntry {
	out := make([]model.ChartEntry, len(entries))
	copy(out, entries)
	for i := 1; i < len(entries); i++ {
		out[i-1].TVLToken0 = entries[i].TVLToken0
		out[i-1].TVLToken1 = entries[i].TVLToken1
	}
	return out
}

func buildEntry(data *model.PoolTickData, i int, pool *model.PoolState, withTVL bool, lower, upper *big.Int) (model.ChartEntry, error) {
	t := data.TicksProcessed[i]
	sqrtPrice := v3math.TickToSqrtPrice(v3math.ClampTick(t.TickIdx))
	price0 := parsePrice(t.Price0)
	price1 := parsePrice(t.Price1)

	entry := model.ChartEntry{
		Index:           i,
		TickIdx:         t.TickIdx,
		IsCurrent:       t.TickIdx == data.ActiveTickIdx,
		IsInRange:       inRange(sqrtPrice, lower, upper),
		ActiveLiquidity: bigToFloat(t.LiquidityActive),
		Price0:          price0.InexactFloat64(),
		Price1:          price1.InexactFloat64(),
	}
	if !withTVL {
		return entry, nil
	}

	out, err := token1Out(data, i, sqrtPrice)
	if err != nil {
		return model.ChartEntry{}, fmt.Errorf("simulate tick %d: %w", t.TickIdx, err)
	}
	amount1 := v3math.ToExact(out, pool.Token1.Decimals)
	entry.TVLToken1 = amount1.InexactFloat64()
	entry.TVLToken0 = amount1.Mul(price1).InexactFloat64()
	return entry, nil
}

// token1Out sells unbounded token0 into a one-bar pool holding only the
// liquidity of tick i, stopping at the previous tick's price.
func token1Out(data *model.PoolTickData, i int, sqrtPrice *big.Int) (*big.Int, error) {
	t := data.TicksProcessed[i]
	net := t.LiquidityNet
	if net == nil {
		net = new(big.Int)
	}
	liquidity := t.LiquidityActive
	if liquidity == nil || liquidity.Sign() < 0 {
		return new(big.Int), nil
	}

	var limit *big.Int
	if i > 0 {
		limit = v3math.TickToSqrtPrice(data.TicksProcessed[i-1].TickIdx)
	} else {
		limit = v3math.TickToSqrtPrice(v3math.ClampTick(t.TickIdx - data.TickSpacing))
	}

	res, err := swap.Simulate(swap.Pool{
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         t.TickIdx,
		Fee:          data.FeeTier,
		Ticks: []model.Tick{
			{TickIdx: t.TickIdx - data.TickSpacing, LiquidityNet: new(big.Int).Neg(net), LiquidityGross: t.LiquidityGross},
			{TickIdx: t.TickIdx, LiquidityNet: new(big.Int).Set(net), LiquidityGross: t.LiquidityGross},
		},
	}, v3math.MaxUint256, true, limit)
	if err != nil {
		return nil, err
	}
	return res.AmountOut, nil
}

func inRange(sqrtPrice, lower, upper *big.Int) bool {
	if lower == nil || upper == nil {
		return false
	}
	return sqrtPrice.Cmp(lower) >= 0 && sqrtPrice.Cmp(upper) <= 0
}

func parsePrice(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
