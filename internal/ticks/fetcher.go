package ticks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"sslScope/internal/metrics"
	"sslScope/internal/model"
	"sslScope/internal/v3math"
)

// ErrFetch matches every *FetchError via errors.Is.
var ErrFetch = errors.New("tick fetch failed")

// FetchError reports which read failed while fetching a pool's ticks.
type FetchError struct {
	Pool common.Address
	Op   string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch ticks for %s: %s: %v", e.Pool.Hex(), e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// PoolReader reads the live state of a pool.
type PoolReader interface {
	PoolState(ctx context.Context, pool common.Address) (model.PoolState, error)
}

// TickReader reads the initialized ticks of a pool within a range.
type TickReader interface {
	InitializedTicks(ctx context.Context, q model.TickQuery) ([]model.Tick, error)
}

// Fetcher loads the dense tick window around a pool's current price. It
// keeps no cache; callers decide when to refetch.
type Fetcher struct {
	pools   PoolReader
	ticks   TickReader
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewFetcher(pools PoolReader, ticks TickReader, m *metrics.Metrics, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{pools: pools, ticks: ticks, metrics: m, logger: logger}
}

// FetchTicksSurroundingPrice returns n processed ticks on each side of the
// active tick, plus the active tick itself.
func (f *Fetcher) FetchTicksSurroundingPrice(ctx context.Context, pool common.Address, n int) (data model.PoolTickData, err error) {
	start := time.Now()
	defer func() { f.metrics.ObserveFetch(start, err) }()

	if n <= 0 {
		return model.PoolTickData{}, fmt.Errorf("tick count must be greater than zero")
	}

	state, err := f.pools.PoolState(ctx, pool)
	if err != nil {
		return model.PoolTickData{}, &FetchError{Pool: pool, Op: "pool state", Err: err}
	}
	if state.TickSpacing <= 0 {
		spacing, ok := v3math.TickSpacingForFee(state.FeeTier)
		if !ok {
			return model.PoolTickData{}, &FetchError{Pool: pool, Op: "pool state", Err: fmt.Errorf("unknown fee tier %d", state.FeeTier)}
		}
		state.TickSpacing = spacing
	}

	q := Window(state, n)
	initialized, err := f.ticks.InitializedTicks(ctx, q)
	if err != nil {
		return model.PoolTickData{}, &FetchError{Pool: pool, Op: "initialized ticks", Err: err}
	}

	data, err = Normalize(state, initialized, n)
	if err != nil {
		return model.PoolTickData{}, &FetchError{Pool: pool, Op: "normalize", Err: err}
	}

	f.logger.Debug("tick window fetched",
		zap.String("pool", pool.Hex()),
		zap.Int32("active_tick", data.ActiveTickIdx),
		zap.Int("initialized", len(initialized)),
		zap.Int("processed", len(data.TicksProcessed)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return data, nil
}

// Window is the tick query covering n spacing steps either side of the
// active tick, clipped to the tick domain.
func Window(state model.PoolState, n int) model.TickQuery {
	active := int64(v3math.FloorTick(state.Tick, state.TickSpacing))
	span := int64(n) * int64(state.TickSpacing)
	lower, upper := active-span, active+span
	if lower < int64(v3math.MinTick) {
		lower = int64(v3math.MinTick)
	}
	if upper > int64(v3math.MaxTick) {
		upper = int64(v3math.MaxTick)
	}
	return model.TickQuery{
		Pool:        state.Address,
		Lower:       int32(lower),
		Upper:       int32(upper),
		TickSpacing: state.TickSpacing,
		BlockNumber: state.BlockNumber,
	}
}
