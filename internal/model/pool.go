package model

// PoolSummary is a row of the top-pools list.
type PoolSummary struct {
	ID      string    `json:"id"`
	FeeTier uint32    `json:"fee_tier"`
	TVLUSD  string    `json:"tvl_usd"`
	Token0  TokenMeta `json:"token0"`
	Token1  TokenMeta `json:"token1"`
}

// PoolData is the subgraph view of a pool with TVL corrected for fees.
type PoolData struct {
	PoolState
	Token0Price float64 `json:"token0_price"`
	Token1Price float64 `json:"token1_price"`
	VolumeUSD   float64 `json:"volume_usd"`
	TVLUSD      float64 `json:"tvl_usd"`
	TVLToken0   float64 `json:"tvl_token0"`
	TVLToken1   float64 `json:"tvl_token1"`
}
