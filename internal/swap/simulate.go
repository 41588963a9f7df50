package swap

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"sslScope/internal/model"
	"sslScope/internal/v3math"
)

var ErrInvalidAmountIn = errors.New("amount in must be greater than zero")

// Pool is an in-memory pool state the simulator swaps against. Ticks only
// need to hold the initialized ticks the swap may cross.
type Pool struct {
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
	Fee          uint32
	Ticks        []model.Tick
}

// Result is the pool state after a simulated swap plus the amount received.
type Result struct {
	AmountOut    *big.Int
	AmountIn     *big.Int
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
}

// Simulate runs an exact-input swap until the input is spent or the price
// reaches sqrtPriceLimit. A nil limit means the edge of the price domain.
// Running out of liquidity ends the swap with whatever was filled so far.
func Simulate(pool Pool, amountIn *big.Int, zeroForOne bool, sqrtPriceLimit *big.Int) (Result, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return Result{}, ErrInvalidAmountIn
	}
	if pool.SqrtPriceX96 == nil || pool.Liquidity == nil {
		return Result{}, fmt.Errorf("simulate: pool state is incomplete")
	}

	if sqrtPriceLimit == nil {
		if zeroForOne {
			sqrtPriceLimit = new(big.Int).Add(v3math.MinSqrtRatio, big.NewInt(1))
		} else {
			sqrtPriceLimit = new(big.Int).Sub(v3math.MaxSqrtRatio, big.NewInt(1))
		}
	}
	if zeroForOne && sqrtPriceLimit.Cmp(pool.SqrtPriceX96) > 0 {
		return Result{}, fmt.Errorf("simulate: price limit above current price")
	}
	if !zeroForOne && sqrtPriceLimit.Cmp(pool.SqrtPriceX96) < 0 {
		return Result{}, fmt.Errorf("simulate: price limit below current price")
	}

	ticks := append([]model.Tick(nil), pool.Ticks...)
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].TickIdx < ticks[j].TickIdx })

	remaining := new(big.Int).Set(amountIn)
	out := new(big.Int)
	sqrtPrice := new(big.Int).Set(pool.SqrtPriceX96)
	liquidity := new(big.Int).Set(pool.Liquidity)
	tick := pool.Tick

	for remaining.Sign() > 0 && sqrtPrice.Cmp(sqrtPriceLimit) != 0 {
		tickNext, initialized := nextInitializedTick(ticks, tick, zeroForOne)
		tickNext = v3math.ClampTick(tickNext)
		sqrtNext := v3math.TickToSqrtPrice(tickNext)

		target := sqrtNext
		if (zeroForOne && sqrtNext.Cmp(sqrtPriceLimit) < 0) || (!zeroForOne && sqrtNext.Cmp(sqrtPriceLimit) > 0) {
			target = sqrtPriceLimit
		}

		step, err := v3math.ComputeSwapStep(sqrtPrice, target, liquidity, remaining, pool.Fee)
		if err != nil {
			return Result{}, fmt.Errorf("swap step at tick %d: %w", tick, err)
		}
		sqrtPrice = step.SqrtRatioNextX96
		remaining.Sub(remaining, step.AmountIn)
		remaining.Sub(remaining, step.FeeAmount)
		out.Add(out, step.AmountOut)

		if sqrtPrice.Cmp(sqrtNext) == 0 {
			if initialized {
				net := liquidityNetAt(ticks, tickNext)
				if zeroForOne {
					net.Neg(net)
				}
				next, err := v3math.AddDelta(liquidity, net)
				if err != nil {
					if errors.Is(err, v3math.ErrLiquidityUnderflow) {
						break
					}
					return Result{}, err
				}
				liquidity = next
			}
			if zeroForOne {
				tick = tickNext - 1
			} else {
				tick = tickNext
			}
			if tickNext == v3math.MinTick || tickNext == v3math.MaxTick {
				break
			}
		} else {
			tick, err = v3math.TickAtSqrtRatio(sqrtPrice)
			if err != nil {
				return Result{}, err
			}
		}
	}

	return Result{
		AmountOut:    out,
		AmountIn:     new(big.Int).Sub(amountIn, remaining),
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Liquidity:    liquidity,
	}, nil
}

// nextInitializedTick returns the closest initialized tick at or below tick
// when zeroForOne, strictly above it otherwise. Without one it returns the
// domain edge, uninitialized.
func nextInitializedTick(ticks []model.Tick, tick int32, zeroForOne bool) (int32, bool) {
	if zeroForOne {
		i := sort.Search(len(ticks), func(i int) bool { return ticks[i].TickIdx > tick })
		if i == 0 {
			return v3math.MinTick, false
		}
		return ticks[i-1].TickIdx, true
	}
	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].TickIdx > tick })
	if i == len(ticks) {
		return v3math.MaxTick, false
	}
	return ticks[i].TickIdx, true
}

func liquidityNetAt(ticks []model.Tick, idx int32) *big.Int {
	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].TickIdx >= idx })
	if i < len(ticks) && ticks[i].TickIdx == idx && ticks[i].LiquidityNet != nil {
		return new(big.Int).Set(ticks[i].LiquidityNet)
	}
	return new(big.Int)
}
