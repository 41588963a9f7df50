package subgraph

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sslScope/internal/model"
)

const ticksPageSize = 1000

const ticksQuery = `query surroundingTicks($pool: String!, $lower: BigInt!, $upper: BigInt!, $skip: Int!) {
  ticks(
    first: %d
    skip: $skip
    orderBy: tickIdx
    orderDirection: asc
    where: {poolAddress: $pool, tickIdx_lte: $upper, tickIdx_gte: $lower}%s
  ) {
    tickIdx
    liquidityGross
    liquidityNet
  }
}`

type tickFields struct {
	TickIdx        string `json:"tickIdx"`
	LiquidityGross string `json:"liquidityGross"`
	LiquidityNet   string `json:"liquidityNet"`
}

// InitializedTicks pages through the ticks entity 1000 rows at a time.
func (c *Client) InitializedTicks(ctx context.Context, q model.TickQuery) ([]model.Tick, error) {
	if q.Upper < q.Lower {
		return nil, fmt.Errorf("upper tick must be >= lower tick")
	}

	blockClause := ""
	if q.BlockNumber > 0 {
		blockClause = fmt.Sprintf("\n    block: {number: %d}", q.BlockNumber)
	}
	query := fmt.Sprintf(ticksQuery, ticksPageSize, blockClause)

	var ticks []model.Tick
	for skip := 0; ; skip += ticksPageSize {
		var resp struct {
			Ticks []tickFields `json:"ticks"`
		}
		vars := map[string]interface{}{
			"pool":  strings.ToLower(q.Pool.Hex()),
			"lower": strconv.Itoa(int(q.Lower)),
			"upper": strconv.Itoa(int(q.Upper)),
			"skip":  skip,
		}
		if err := c.do(ctx, "surroundingTicks", query, vars, &resp); err != nil {
			return nil, err
		}
		for _, t := range resp.Ticks {
			tick, err := parseTick(t)
			if err != nil {
				return nil, err
			}
			ticks = append(ticks, tick)
		}
		if len(resp.Ticks) < ticksPageSize {
			break
		}
	}

	sort.Slice(ticks, func(i, j int) bool { return ticks[i].TickIdx < ticks[j].TickIdx })
	c.logger.Debug("subgraph ticks read",
		zap.String("pool", q.Pool.Hex()),
		zap.Int("ticks", len(ticks)),
	)
	return ticks, nil
}

func parseTick(t tickFields) (model.Tick, error) {
	idx, err := strconv.ParseInt(t.TickIdx, 10, 32)
	if err != nil {
		return model.Tick{}, fmt.Errorf("parse tick index %q: %w", t.TickIdx, err)
	}
	gross, ok := new(big.Int).SetString(t.LiquidityGross, 10)
	if !ok {
		return model.Tick{}, fmt.Errorf("parse liquidity gross %q", t.LiquidityGross)
	}
	net, ok := new(big.Int).SetString(t.LiquidityNet, 10)
	if !ok {
		return model.Tick{}, fmt.Errorf("parse liquidity net %q", t.LiquidityNet)
	}
	return model.Tick{TickIdx: int32(idx), LiquidityGross: gross, LiquidityNet: net}, nil
}
