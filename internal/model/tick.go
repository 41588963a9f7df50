package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Tick is an initialized tick as stored by the pool. LiquidityNet is applied
// to active liquidity when price crosses the tick upward.
type Tick struct {
	TickIdx        int32    `json:"tick_idx"`
	LiquidityGross *big.Int `json:"liquidity_gross"`
	LiquidityNet   *big.Int `json:"liquidity_net"`
}

// ProcessedTick is one tick-spacing step of the dense liquidity curve.
type ProcessedTick struct {
	TickIdx         int32    `json:"tick_idx"`
	LiquidityActive *big.Int `json:"liquidity_active"`
	LiquidityNet    *big.Int `json:"liquidity_net"`
	LiquidityGross  *big.Int `json:"liquidity_gross"`
	Price0          string   `json:"price0"`
	Price1          string   `json:"price1"`
}

// PoolTickData is the dense tick window around a pool's active tick, in
// ascending tick order.
type PoolTickData struct {
	Pool              common.Address  `json:"pool"`
	TicksProcessed    []ProcessedTick `json:"ticks_processed"`
	ActiveTickIdx     int32           `json:"active_tick_idx"`
	FeeTier           uint32          `json:"fee_tier"`
	TickSpacing       int32           `json:"tick_spacing"`
	TickCountEachSide int             `json:"tick_count_each_side"`
}

// Covers reports whether the window was fetched with at least n steps per side.
func (d *PoolTickData) Covers(n int) bool {
	return d != nil && d.TickCountEachSide >= n
}

// ActiveIndex returns the position of the active tick in TicksProcessed, or -1.
func (d *PoolTickData) ActiveIndex() int {
	if d == nil {
		return -1
	}
	for i, t := range d.TicksProcessed {
		if t.TickIdx == d.ActiveTickIdx {
			return i
		}
	}
	return -1
}

// TickQuery selects the initialized ticks of a pool within [Lower, Upper].
type TickQuery struct {
	Pool        common.Address
	Lower       int32
	Upper       int32
	TickSpacing int32
	// BlockNumber pins the read; zero means latest.
	BlockNumber uint64
}
