package ticks

import (
	"fmt"
	"math/big"

	"sslScope/internal/model"
	"sslScope/internal/v3math"
)

// Normalize expands the sparse initialized ticks around the pool's current
// tick into one ProcessedTick per tick-spacing step, n steps on each side.
// Steps outside [MinTick, MaxTick] are not produced, so a side near the
// domain edge comes out shorter.
func Normalize(state model.PoolState, initialized []model.Tick, n int) (model.PoolTickData, error) {
	spacing := state.TickSpacing
	if spacing <= 0 {
		return model.PoolTickData{}, fmt.Errorf("tick spacing must be greater than zero")
	}
	if n < 0 {
		return model.PoolTickData{}, fmt.Errorf("tick count must not be negative")
	}
	liquidity := state.Liquidity
	if liquidity == nil {
		liquidity = new(big.Int)
	}

	byIdx := make(map[int32]model.Tick, len(initialized))
	for _, t := range initialized {
		byIdx[t.TickIdx] = t
	}
	d0, d1 := state.Token0.Decimals, state.Token1.Decimals

	activeIdx := v3math.FloorTick(state.Tick, spacing)
	active := newProcessedTick(activeIdx, new(big.Int).Set(liquidity), d0, d1)
	if t, ok := byIdx[activeIdx]; ok {
		applyInitialized(&active, t)
	}

	above := make([]model.ProcessedTick, 0, n)
	prev := active
	for i := 0; i < n; i++ {
		idx := int64(prev.TickIdx) + int64(spacing)
		if idx > int64(v3math.MaxTick) {
			break
		}
		cur := newProcessedTick(int32(idx), new(big.Int).Set(prev.LiquidityActive), d0, d1)
		if t, ok := byIdx[cur.TickIdx]; ok {
			applyInitialized(&cur, t)
			cur.LiquidityActive.Add(cur.LiquidityActive, cur.LiquidityNet)
		}
		above = append(above, cur)
		prev = cur
	}

	below := make([]model.ProcessedTick, 0, n)
	prev = active
	for i := 0; i < n; i++ {
		idx := int64(prev.TickIdx) - int64(spacing)
		if idx < int64(v3math.MinTick) {
			break
		}
		cur := newProcessedTick(int32(idx), new(big.Int).Set(prev.LiquidityActive), d0, d1)
		if t, ok := byIdx[cur.TickIdx]; ok {
			applyInitialized(&cur, t)
		}
		// Crossing prev downward removes what crossing it upward added.
		if prev.LiquidityNet.Sign() != 0 {
			cur.LiquidityActive.Sub(cur.LiquidityActive, prev.LiquidityNet)
		}
		below = append(below, cur)
		prev = cur
	}

	processed := make([]model.ProcessedTick, 0, len(below)+1+len(above))
	for i := len(below) - 1; i >= 0; i-- {
		processed = append(processed, below[i])
	}
	processed = append(processed, active)
	processed = append(processed, above...)

	return model.PoolTickData{
		Pool:              state.Address,
		TicksProcessed:    processed,
		ActiveTickIdx:     activeIdx,
		FeeTier:           state.FeeTier,
		TickSpacing:       spacing,
		TickCountEachSide: n,
	}, nil
}

func newProcessedTick(idx int32, liquidityActive *big.Int, d0, d1 uint8) model.ProcessedTick {
	price0, price1 := v3math.TickToPrice(v3math.ClampTick(idx), d0, d1)
	return model.ProcessedTick{
		TickIdx:         idx,
		LiquidityActive: liquidityActive,
		LiquidityNet:    new(big.Int),
		LiquidityGross:  new(big.Int),
		Price0:          price0.String(),
		Price1:          price1.String(),
	}
}

func applyInitialized(p *model.ProcessedTick, t model.Tick) {
	if t.LiquidityNet != nil {
		p.LiquidityNet.Set(t.LiquidityNet)
	}
	if t.LiquidityGross != nil {
		p.LiquidityGross.Set(t.LiquidityGross)
	}
}
