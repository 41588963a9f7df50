package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolMeta captures immutable pool metadata.
type PoolMeta struct {
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tick_spacing"`
}

// PoolState is the live pool view the tick fetcher and range resolver read.
type PoolState struct {
	Address      common.Address `json:"address"`
	Token0       TokenMeta      `json:"token0"`
	Token1       TokenMeta      `json:"token1"`
	FeeTier      uint32         `json:"fee_tier"`
	TickSpacing  int32          `json:"tick_spacing"`
	Tick         int32          `json:"tick"`
	SqrtPriceX96 *big.Int       `json:"sqrt_price_x96"`
	Liquidity    *big.Int       `json:"liquidity"`
	// BlockNumber pins follow-up reads; zero means latest.
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// TokensResolved reports whether both token decimals are known.
func (s *PoolState) TokensResolved() bool {
	return s != nil && s.Token0.Resolved() && s.Token1.Resolved()
}
