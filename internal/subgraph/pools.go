package subgraph

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"sslScope/internal/model"
	"sslScope/internal/v3math"
)

const (
	// DefaultTopPools is the size of the pool picker list.
	DefaultTopPools = 20
	topPoolsTTL     = time.Minute
)

const topPoolsQuery = `query topPools($first: Int!) {
  pools(first: $first, orderBy: totalValueLockedUSD, orderDirection: desc) {
    id
    totalValueLockedUSD
    feeTier
    token0 { id name symbol decimals }
    token1 { id name symbol decimals }
  }
}`

const poolQuery = `query pool($id: ID!) {
  pools(where: {id: $id}, subgraphError: allow) {
    id
    feeTier
    liquidity
    sqrtPrice
    tick
    token0 { id symbol name decimals derivedETH }
    token1 { id symbol name decimals derivedETH }
    token0Price
    token1Price
    volumeUSD
    volumeToken0
    volumeToken1
    totalValueLockedToken0
    totalValueLockedToken1
    totalValueLockedUSD
  }
  bundles(where: {id: "1"}) {
    ethPriceUSD
  }
  _meta {
    block { number }
  }
}`

type tokenFields struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Decimals   string `json:"decimals"`
	DerivedETH string `json:"derivedETH"`
}

func (t tokenFields) meta() model.TokenMeta {
	meta := model.TokenMeta{
		Address: common.HexToAddress(t.ID).Hex(),
		Symbol:  t.Symbol,
		Name:    t.Name,
	}
	if d, err := strconv.ParseUint(t.Decimals, 10, 8); err == nil {
		meta.Decimals = uint8(d)
		meta.DecimalsKnown = true
	}
	return meta
}

type poolFields struct {
	ID                     string      `json:"id"`
	FeeTier                string      `json:"feeTier"`
	Liquidity              string      `json:"liquidity"`
	SqrtPrice              string      `json:"sqrtPrice"`
	Tick                   *string     `json:"tick"`
	Token0                 tokenFields `json:"token0"`
	Token1                 tokenFields `json:"token1"`
	Token0Price            string      `json:"token0Price"`
	Token1Price            string      `json:"token1Price"`
	VolumeUSD              string      `json:"volumeUSD"`
	VolumeToken0           string      `json:"volumeToken0"`
	VolumeToken1           string      `json:"volumeToken1"`
	TotalValueLockedToken0 string      `json:"totalValueLockedToken0"`
	TotalValueLockedToken1 string      `json:"totalValueLockedToken1"`
	TotalValueLockedUSD    string      `json:"totalValueLockedUSD"`
}

type poolResponse struct {
	Pools   []poolFields `json:"pools"`
	Bundles []struct {
		EthPriceUSD string `json:"ethPriceUSD"`
	} `json:"bundles"`
	Meta struct {
		Block struct {
			Number uint64 `json:"number"`
		} `json:"block"`
	} `json:"_meta"`
}

type topPoolsCache struct {
	c *cache.Cache
}

func newTopPoolsCache() *topPoolsCache {
	return &topPoolsCache{c: cache.New(topPoolsTTL, 2*topPoolsTTL)}
}

// TopPools returns the n pools with the highest USD TVL. Results are cached
// for a minute.
func (c *Client) TopPools(ctx context.Context, n int) ([]model.PoolSummary, error) {
	if n <= 0 {
		n = DefaultTopPools
	}
	key := strconv.Itoa(n)
	if v, ok := c.topPools.c.Get(key); ok {
		return v.([]model.PoolSummary), nil
	}

	var resp struct {
		Pools []poolFields `json:"pools"`
	}
	if err := c.do(ctx, "topPools", topPoolsQuery, map[string]interface{}{"first": n}, &resp); err != nil {
		return nil, err
	}

	pools := make([]model.PoolSummary, 0, len(resp.Pools))
	for _, p := range resp.Pools {
		fee, _ := strconv.ParseUint(p.FeeTier, 10, 32)
		pools = append(pools, model.PoolSummary{
			ID:      common.HexToAddress(p.ID).Hex(),
			FeeTier: uint32(fee),
			TVLUSD:  FormatUSD(parseDecimal(p.TotalValueLockedUSD)),
			Token0:  p.Token0.meta(),
			Token1:  p.Token1.meta(),
		})
	}
	c.topPools.c.SetDefault(key, pools)
	return pools, nil
}

// PoolData returns the subgraph view of a pool with the fee-accounting
// correction applied to its TVL.
func (c *Client) PoolData(ctx context.Context, pool common.Address) (model.PoolData, error) {
	var resp poolResponse
	vars := map[string]interface{}{"id": strings.ToLower(pool.Hex())}
	if err := c.do(ctx, "pool", poolQuery, vars, &resp); err != nil {
		return model.PoolData{}, err
	}
	if len(resp.Pools) == 0 {
		return model.PoolData{}, fmt.Errorf("%s: %w", pool.Hex(), ErrPoolNotFound)
	}

	var ethPriceUSD decimal.Decimal
	if len(resp.Bundles) > 0 {
		ethPriceUSD = parseDecimal(resp.Bundles[0].EthPriceUSD)
	}
	data, err := buildPoolData(pool, resp.Pools[0], ethPriceUSD)
	if err != nil {
		return model.PoolData{}, err
	}
	data.BlockNumber = resp.Meta.Block.Number
	return data, nil
}

// PoolState returns the pool state part of PoolData.
func (c *Client) PoolState(ctx context.Context, pool common.Address) (model.PoolState, error) {
	data, err := c.PoolData(ctx, pool)
	if err != nil {
		return model.PoolState{}, err
	}
	return data.PoolState, nil
}

func buildPoolData(pool common.Address, p poolFields, ethPriceUSD decimal.Decimal) (model.PoolData, error) {
	fee, err := strconv.ParseUint(p.FeeTier, 10, 32)
	if err != nil {
		return model.PoolData{}, fmt.Errorf("parse fee tier %q: %w", p.FeeTier, err)
	}
	spacing, ok := v3math.TickSpacingForFee(uint32(fee))
	if !ok {
		return model.PoolData{}, fmt.Errorf("unknown fee tier %d", fee)
	}
	if p.Tick == nil {
		return model.PoolData{}, fmt.Errorf("%s: pool not initialized", pool.Hex())
	}
	tick, err := strconv.ParseInt(*p.Tick, 10, 32)
	if err != nil {
		return model.PoolData{}, fmt.Errorf("parse tick %q: %w", *p.Tick, err)
	}
	sqrtPrice, ok := new(big.Int).SetString(p.SqrtPrice, 10)
	if !ok {
		return model.PoolData{}, fmt.Errorf("parse sqrt price %q", p.SqrtPrice)
	}
	liquidity, ok := new(big.Int).SetString(p.Liquidity, 10)
	if !ok {
		return model.PoolData{}, fmt.Errorf("parse liquidity %q", p.Liquidity)
	}

	// Swap fees were booked into TVL; remove half of the fee share of volume
	// from each side.
	feePercent := decimal.NewFromInt(int64(fee)).Div(decimal.NewFromInt(1_000_000))
	two := decimal.NewFromInt(2)
	tvlToken0 := parseDecimal(p.TotalValueLockedToken0).Sub(parseDecimal(p.VolumeToken0).Mul(feePercent).Div(two))
	tvlToken1 := parseDecimal(p.TotalValueLockedToken1).Sub(parseDecimal(p.VolumeToken1).Mul(feePercent).Div(two))

	tvlUSD := parseDecimal(p.TotalValueLockedUSD)
	recomputed := tvlToken0.Mul(parseDecimal(p.Token0.DerivedETH)).Mul(ethPriceUSD).
		Add(tvlToken1.Mul(parseDecimal(p.Token1.DerivedETH)).Mul(ethPriceUSD))
	if !recomputed.IsZero() {
		tvlUSD = recomputed
	}

	return model.PoolData{
		PoolState: model.PoolState{
			Address:      pool,
			Token0:       p.Token0.meta(),
			Token1:       p.Token1.meta(),
			FeeTier:      uint32(fee),
			TickSpacing:  spacing,
			Tick:         int32(tick),
			SqrtPriceX96: sqrtPrice,
			Liquidity:    liquidity,
		},
		Token0Price: parseDecimal(p.Token0Price).InexactFloat64(),
		Token1Price: parseDecimal(p.Token1Price).InexactFloat64(),
		VolumeUSD:   parseDecimal(p.VolumeUSD).InexactFloat64(),
		TVLUSD:      tvlUSD.InexactFloat64(),
		TVLToken0:   tvlToken0.InexactFloat64(),
		TVLToken1:   tvlToken1.InexactFloat64(),
	}, nil
}

// parseDecimal treats missing or malformed numbers as zero.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatUSD renders an amount as US dollars with thousands separators,
// e.g. "$1,234,567.89".
func FormatUSD(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}
