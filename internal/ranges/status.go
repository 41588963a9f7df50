package ranges

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sslScope/internal/model"
	"sslScope/internal/v3math"
)

// DefaultPollInterval is how often the status poller refreshes.
const DefaultPollInterval = 30 * time.Second

// PriceLevel is a labelled token0 price.
type PriceLevel struct {
	Label string          `json:"label"`
	Tick  int32           `json:"tick"`
	Price decimal.Decimal `json:"price"`
}

// Status is the strategy view of a vault.
type Status struct {
	Vault       model.VaultState `json:"vault"`
	Token0      model.TokenMeta  `json:"token0"`
	Token1      model.TokenMeta  `json:"token1"`
	CurrentTick int32            `json:"current_tick"`
	RangeTicks  int32            `json:"range_ticks"`
	// Prices holds the upper, lower and current prices, highest first.
	Prices      []PriceLevel `json:"prices"`
	IsInRange   bool         `json:"is_in_range"`
	LastRerange time.Time    `json:"last_rerange"`
}

// Status reads the vault and its pool.
func (r *Resolver) Status(ctx context.Context, vault common.Address) (Status, error) {
	if r.vaults == nil {
		return Status{}, fmt.Errorf("vault reader is not configured")
	}
	vs, err := r.vaults.VaultState(ctx, vault)
	if err != nil {
		return Status{}, fmt.Errorf("read vault state: %w", err)
	}
	state, err := r.pools.PoolState(ctx, vs.Pool)
	if err != nil {
		return Status{}, fmt.Errorf("read pool state: %w", err)
	}
	return BuildStatus(vs, state), nil
}

// BuildStatus derives the status view from vault and pool state.
func BuildStatus(vs model.VaultState, state model.PoolState) Status {
	spacing := state.TickSpacing
	if spacing <= 0 {
		spacing, _ = v3math.TickSpacingForFee(state.FeeTier)
	}
	var rangeTicks int32
	if spacing > 0 {
		rangeTicks = vs.RangeSize / spacing
	}

	d0, d1 := state.Token0.Decimals, state.Token1.Decimals
	level := func(label string, tick int32) PriceLevel {
		price, _ := v3math.TickToPrice(v3math.ClampTick(tick), d0, d1)
		return PriceLevel{Label: label, Tick: tick, Price: price}
	}
	prices := []PriceLevel{
		level("upper", vs.Upper),
		level("lower", vs.Lower),
		level("current", state.Tick),
	}
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Price.GreaterThan(prices[j].Price) })

	return Status{
		Vault:       vs,
		Token0:      state.Token0,
		Token1:      state.Token1,
		CurrentTick: state.Tick,
		RangeTicks:  rangeTicks,
		Prices:      prices,
		IsInRange:   vs.IsInRange,
		LastRerange: vs.LastRerange,
	}
}

// Poller refreshes a vault status on an interval and keeps the latest
// successful snapshot.
type Poller struct {
	resolver *Resolver
	vault    common.Address
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	latest  *Status
	updated time.Time
	lastErr error
}

func NewPoller(resolver *Resolver, vault common.Address, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{resolver: resolver, vault: vault, interval: interval, logger: logger}
}

// Run polls immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	status, err := p.resolver.Status(ctx, p.vault)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("vault status poll failed", zap.String("vault", p.vault.Hex()), zap.Error(err))
		}
		return
	}
	p.latest = &status
	p.updated = time.Now()
}

// Latest returns the last successful snapshot, when it was taken and the
// error of the most recent poll.
func (p *Poller) Latest() (*Status, time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.updated, p.lastErr
}
