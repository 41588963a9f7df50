package ranges

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"sslScope/internal/model"
	"sslScope/internal/ticks"
	"sslScope/internal/v3math"
)

// VaultReader reads the single-sided liquidity vault.
type VaultReader interface {
	VaultState(ctx context.Context, vault common.Address) (model.VaultState, error)
}

// RangeTicks returns the tick bounds of a deposit. An existing position with
// liquidity wins over the asset choice. A token1 deposit sits entirely below
// the current tick and a token0 deposit starts at it. ok is false when no
// asset is selected.
func RangeTicks(existing *model.VaultState, asset model.Asset, currentTick, tickSpacing, count int32) (lower, upper int32, ok bool) {
	if existing.HasPosition() {
		return existing.Lower, existing.Upper, true
	}
	// int64 keeps spacing*count and the offsets from wrapping before the clamp.
	cur, spacing := int64(currentTick), int64(tickSpacing)
	size := spacing * int64(count)
	switch asset {
	case model.AssetToken1:
		return clampTick64(cur - size), clampTick64(cur - spacing), true
	case model.AssetToken0:
		return clampTick64(cur), clampTick64(cur + size), true
	default:
		return 0, 0, false
	}
}

func clampTick64(tick int64) int32 {
	if tick < int64(v3math.MinTick) {
		return v3math.MinTick
	}
	if tick > int64(v3math.MaxTick) {
		return v3math.MaxTick
	}
	return int32(tick)
}

// ResolveRange returns the sqrt-price bounds of a deposit, or {0, 0} when no
// asset is selected and there is no existing position.
func ResolveRange(existing *model.VaultState, asset model.Asset, currentTick, tickSpacing, count int32) model.RangeBounds {
	lower, upper, ok := RangeTicks(existing, asset, currentTick, tickSpacing, count)
	if !ok {
		return model.RangeBounds{Lower: new(big.Int), Upper: new(big.Int)}
	}
	return model.RangeBounds{
		Lower: v3math.TickToSqrtPrice(v3math.ClampTick(lower)),
		Upper: v3math.TickToSqrtPrice(v3math.ClampTick(upper)),
	}
}

// Resolution is a resolved deposit range with the ticks it came from.
type Resolution struct {
	Pool         common.Address    `json:"pool"`
	Asset        string            `json:"asset"`
	CurrentTick  int32             `json:"current_tick"`
	TickSpacing  int32             `json:"tick_spacing"`
	LowerTick    int32             `json:"lower_tick"`
	UpperTick    int32             `json:"upper_tick"`
	Bounds       model.RangeBounds `json:"bounds"`
	Defined      bool              `json:"defined"`
	FromPosition bool              `json:"from_position"`
}

// Resolver reads pool and vault state to resolve deposit ranges and the
// strategy status.
type Resolver struct {
	pools  ticks.PoolReader
	vaults VaultReader
	logger *zap.Logger
}

func NewResolver(pools ticks.PoolReader, vaults VaultReader, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{pools: pools, vaults: vaults, logger: logger}
}

// ResolveDepositRange resolves the bounds for a deposit of asset into pool,
// spanning count tick-spacing steps. When vault is set and holds a position,
// that position's bounds are returned instead.
func (r *Resolver) ResolveDepositRange(ctx context.Context, pool common.Address, vault *common.Address, asset model.Asset, count int32) (Resolution, error) {
	if count <= 0 {
		return Resolution{}, fmt.Errorf("tick count must be greater than zero")
	}
	state, err := r.pools.PoolState(ctx, pool)
	if err != nil {
		return Resolution{}, fmt.Errorf("read pool state: %w", err)
	}
	spacing := state.TickSpacing
	if spacing <= 0 {
		var ok bool
		if spacing, ok = v3math.TickSpacingForFee(state.FeeTier); !ok {
			return Resolution{}, fmt.Errorf("unknown fee tier %d", state.FeeTier)
		}
	}

	var existing *model.VaultState
	if vault != nil {
		if r.vaults == nil {
			return Resolution{}, fmt.Errorf("vault reader is not configured")
		}
		vs, err := r.vaults.VaultState(ctx, *vault)
		if err != nil {
			return Resolution{}, fmt.Errorf("read vault state: %w", err)
		}
		if vs.HasPosition() && vs.Pool != pool {
			r.logger.Warn("vault position belongs to another pool",
				zap.String("vault", vault.Hex()),
				zap.String("vault_pool", vs.Pool.Hex()),
				zap.String("pool", pool.Hex()),
			)
		}
		existing = &vs
	}

	lower, upper, ok := RangeTicks(existing, asset, state.Tick, spacing, count)
	return Resolution{
		Pool:         pool,
		Asset:        asset.String(),
		CurrentTick:  state.Tick,
		TickSpacing:  spacing,
		LowerTick:    lower,
		UpperTick:    upper,
		Bounds:       ResolveRange(existing, asset, state.Tick, spacing, count),
		Defined:      ok,
		FromPosition: existing.HasPosition(),
	}, nil
}
