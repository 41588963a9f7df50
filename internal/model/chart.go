package model

// ChartEntry is one bar of the liquidity density chart.
type ChartEntry struct {
	Index           int     `json:"index"`
	TickIdx         int32   `json:"tick_idx"`
	IsCurrent       bool    `json:"is_current"`
	IsInRange       bool    `json:"is_in_range"`
	ActiveLiquidity float64 `json:"active_liquidity"`
	Price0          float64 `json:"price0"`
	Price1          float64 `json:"price1"`
	TVLToken0       float64 `json:"tvl_token0"`
	TVLToken1       float64 `json:"tvl_token1"`
}
