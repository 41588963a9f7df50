package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Position mirrors the pool's stored position info.
type Position struct {
	Liquidity                *big.Int `json:"liquidity"`
	FeeGrowthInside0LastX128 *big.Int `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 *big.Int `json:"fee_growth_inside1_last_x128"`
	TokensOwed0              *big.Int `json:"tokens_owed0"`
	TokensOwed1              *big.Int `json:"tokens_owed1"`
}

// Active reports whether the position holds liquidity.
func (p *Position) Active() bool {
	return p != nil && p.Liquidity != nil && p.Liquidity.Sign() > 0
}

// VaultState is the single-sided liquidity contract state.
type VaultState struct {
	Address     common.Address `json:"address"`
	Pool        common.Address `json:"pool"`
	User        common.Address `json:"user"`
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	Lower       int32          `json:"lower"`
	Upper       int32          `json:"upper"`
	RangeSize   int32          `json:"range_size"`
	IsInRange   bool           `json:"is_in_range"`
	LastRerange time.Time      `json:"last_rerange"`
	Position    *Position      `json:"position,omitempty"`
}

// HasPosition reports whether the vault has deposited liquidity.
func (v *VaultState) HasPosition() bool {
	return v != nil && v.Position.Active()
}
