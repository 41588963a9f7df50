package density

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sslScope/internal/metrics"
	"sslScope/internal/model"
	"sslScope/internal/ticks"
)

// ErrNoPool is returned by Load before a pool is selected.
var ErrNoPool = errors.New("no pool selected")

// DefaultFetchTimeout bounds a tick fetch once it no longer follows the
// context of the request that started it.
const DefaultFetchTimeout = 2 * time.Minute

// Fetcher loads the tick window around a pool's price.
type Fetcher interface {
	FetchTicksSurroundingPrice(ctx context.Context, pool common.Address, n int) (model.PoolTickData, error)
}

// Builder turns a tick window into chart entries.
type Builder interface {
	Build(ctx context.Context, data *model.PoolTickData, pool *model.PoolState, lower, upper *big.Int) ([]model.ChartEntry, error)
}

// Options configures a chart session.
type Options struct {
	// Pools resolves token metadata for TVL; without it TVL stays zero.
	Pools        ticks.PoolReader
	InitialTicks int
	ZoomInterval int
	// Group dedupes in-flight fetches, across sessions when shared.
	Group        *singleflight.Group
	FetchTimeout time.Duration
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// ChartData is a snapshot of the visible chart.
type ChartData struct {
	Pool         common.Address     `json:"pool"`
	Entries      []model.ChartEntry `json:"entries"`
	Zoom         ZoomState          `json:"zoom"`
	TicksToFetch int                `json:"ticks_to_fetch"`
	AtZoomMin    bool               `json:"at_zoom_min"`
	AtZoomMax    bool               `json:"at_zoom_max"`
	Loading      bool               `json:"loading"`
}

// Chart is a density chart session for one selected pool. It is safe for
// concurrent use.
//
// Two generation counters guard installs: dataGen moves on pool changes and
// widenings and fences tick windows; gen additionally moves on bounds
// changes and fences built entries.
type Chart struct {
	fetcher Fetcher
	builder Builder
	pools   ticks.PoolReader
	metrics *metrics.Metrics
	logger  *zap.Logger
	group   *singleflight.Group

	fetchTimeout time.Duration

	mu         sync.Mutex
	pool       common.Address
	hasPool    bool
	poolState  *model.PoolState
	lower      *big.Int
	upper      *big.Int
	data       *model.PoolTickData
	entries    []model.ChartEntry
	entriesGen uint64
	zoom       *Zoom
	gen        uint64
	dataGen    uint64
}

func NewChart(fetcher Fetcher, builder Builder, opts Options) *Chart {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	group := opts.Group
	if group == nil {
		group = new(singleflight.Group)
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Chart{
		fetcher:      fetcher,
		builder:      builder,
		pools:        opts.Pools,
		metrics:      opts.Metrics,
		logger:       logger,
		group:        group,
		fetchTimeout: fetchTimeout,
		zoom:         NewZoom(opts.InitialTicks, opts.ZoomInterval),
	}
}

// SetPool selects a pool. Changing the pool drops the tick data, the entries
// and the zoom.
func (c *Chart) SetPool(pool common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasPool && c.pool == pool {
		return
	}
	c.pool = pool
	c.hasPool = true
	c.poolState = nil
	c.data = nil
	c.entries = nil
	c.zoom.Reset()
	c.gen++
	c.dataGen++
}

// SetBounds sets the sqrt-price range highlighted on the chart. Changing the
// bounds drops the entries but keeps the tick data.
func (c *Chart) SetBounds(lower, upper *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sameInt(c.lower, lower) && sameInt(c.upper, upper) {
		return
	}
	c.lower = copyInt(lower)
	c.upper = copyInt(upper)
	c.entries = nil
	c.gen++
}

// Load fetches the tick window if the installed one does not cover the
// current zoom, then rebuilds the entries if they are missing or stale. On
// failure the previously installed data stays in place.
func (c *Chart) Load(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasPool {
		c.mu.Unlock()
		return ErrNoPool
	}
	pool := c.pool
	n := c.zoom.TicksToFetch()
	dataGen := c.dataGen
	needFetch := !c.data.Covers(n)
	needState := c.poolState == nil && c.pools != nil
	c.mu.Unlock()

	if needState {
		c.loadPoolState(ctx, pool, dataGen)
	}

	if needFetch {
		if err := c.fetch(ctx, pool, n, dataGen); err != nil {
			return err
		}
	} else {
		c.metrics.SkipFetch()
	}

	return c.build(ctx)
}

func (c *Chart) loadPoolState(ctx context.Context, pool common.Address, dataGen uint64) {
	state, err := c.pools.PoolState(ctx, pool)
	if err != nil {
		c.logger.Warn("pool state read failed, tvl omitted", zap.String("pool", pool.Hex()), zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataGen == dataGen {
		c.poolState = &state
	}
}

func (c *Chart) fetch(ctx context.Context, pool common.Address, n int, dataGen uint64) error {
	key := fmt.Sprintf("%s/%d", pool.Hex(), n)
	// The shared fetch outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetcher.FetchTicksSurroundingPrice(fetchCtx, pool, n)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		c.logger.Warn("tick fetch failed", zap.String("pool", pool.Hex()), zap.Int("ticks", n), zap.Error(res.Err))
		return res.Err
	}
	data := res.Val.(model.PoolTickData)
	shared := res.Shared

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataGen != dataGen {
		c.logger.Debug("discarding stale tick window", zap.String("pool", pool.Hex()), zap.Int("ticks", n))
		return nil
	}
	if c.data != nil && c.data.TickCountEachSide > data.TickCountEachSide {
		c.logger.Debug("discarding smaller tick window", zap.String("pool", pool.Hex()), zap.Int("ticks", n))
		return nil
	}
	c.data = &data
	c.entries = nil
	c.gen++
	c.logger.Debug("tick window installed",
		zap.String("pool", pool.Hex()),
		zap.Int("ticks", len(data.TicksProcessed)),
		zap.Bool("shared", shared),
	)
	return nil
}

func (c *Chart) build(ctx context.Context) error {
	c.mu.Lock()
	if c.data == nil || (c.entries != nil && c.entriesGen == c.gen) {
		c.mu.Unlock()
		return nil
	}
	data := c.data
	poolState := c.poolState
	lower, upper := c.lower, c.upper
	gen := c.gen
	c.mu.Unlock()

	entries, err := c.builder.Build(ctx, data, poolState, lower, upper)
	if err != nil {
		return fmt.Errorf("build chart: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.data == data {
		c.entries = entries
		c.entriesGen = gen
	}
	return nil
}

// Data returns the visible entries and the zoom state.
func (c *Chart) Data() ChartData {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.zoom.State()
	out := ChartData{
		Pool:         c.pool,
		Zoom:         state,
		TicksToFetch: c.zoom.TicksToFetch(),
		AtZoomMin:    c.zoom.AtZoomMin(),
		AtZoomMax:    c.zoom.AtZoomMax(),
		Loading:      c.hasPool && (c.entries == nil || c.entriesGen != c.gen),
	}
	if visible := state.Visible(c.entries); len(visible) > 0 {
		out.Entries = append([]model.ChartEntry(nil), visible...)
	}
	return out
}

// ZoomIn narrows the view. It never refetches.
func (c *Chart) ZoomIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zoom.ZoomIn()
}

// ZoomOut widens the view, growing the tick window and reloading when the
// view already shows everything.
func (c *Chart) ZoomOut(ctx context.Context) error {
	c.mu.Lock()
	widened := c.zoom.ZoomOut()
	if widened {
		c.gen++
		c.dataGen++
	}
	hasPool := c.hasPool
	c.mu.Unlock()

	if !widened || !hasPool {
		return nil
	}
	return c.Load(ctx)
}

func sameInt(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
