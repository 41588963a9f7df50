package v3math

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randInt(r *rand.Rand, bits int) *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return new(big.Int).Rand(r, max)
}

func TestComputeSwapStepInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		sqrtPrice := randInt(r, 160)
		sqrtTarget := randInt(r, 160)
		liquidity := randInt(r, 128)
		amountRemaining := randInt(r, 256)
		if i%2 == 1 {
			amountRemaining.Neg(amountRemaining)
		}
		feePips := uint32(r.Intn(999_999) + 1)
		if sqrtPrice.Sign() == 0 {
			sqrtPrice.SetInt64(1)
		}
		if sqrtTarget.Sign() == 0 {
			sqrtTarget.SetInt64(1)
		}

		step, err := ComputeSwapStep(sqrtPrice, sqrtTarget, liquidity, amountRemaining, feePips)
		if err != nil {
			continue
		}

		sumIn := new(big.Int).Add(step.AmountIn, step.FeeAmount)
		if amountRemaining.Sign() < 0 {
			assert.True(t, step.AmountOut.Cmp(new(big.Int).Neg(amountRemaining)) <= 0)
		} else {
			assert.True(t, sumIn.Cmp(amountRemaining) <= 0)
		}

		if sqrtPrice.Cmp(sqrtTarget) == 0 {
			assert.Zero(t, step.AmountIn.Sign())
			assert.Zero(t, step.AmountOut.Sign())
			assert.Zero(t, step.FeeAmount.Sign())
		}

		// the price never moves past the target
		if sqrtPrice.Cmp(sqrtTarget) >= 0 {
			assert.True(t, step.SqrtRatioNextX96.Cmp(sqrtTarget) >= 0)
			assert.True(t, step.SqrtRatioNextX96.Cmp(sqrtPrice) <= 0)
		} else {
			assert.True(t, step.SqrtRatioNextX96.Cmp(sqrtTarget) <= 0)
			assert.True(t, step.SqrtRatioNextX96.Cmp(sqrtPrice) >= 0)
		}
	}
}

func TestComputeSwapStepReachesTarget(t *testing.T) {
	current := TickToSqrtPrice(0)
	target := TickToSqrtPrice(-60)
	liquidity := big.NewInt(1_000_000_000_000_000_000)

	step, err := ComputeSwapStep(current, target, liquidity, MaxUint256, 3000)
	require.NoError(t, err)

	assert.Zero(t, target.Cmp(step.SqrtRatioNextX96))
	assert.Zero(t, GetAmount1Delta(target, current, liquidity, false).Cmp(step.AmountOut))
	wantIn, err := GetAmount0Delta(target, current, liquidity, true)
	require.NoError(t, err)
	assert.Zero(t, wantIn.Cmp(step.AmountIn))
	assert.Equal(t, 1, step.FeeAmount.Sign())
}

func TestComputeSwapStepPartialFill(t *testing.T) {
	current := TickToSqrtPrice(0)
	target := TickToSqrtPrice(-6000)
	liquidity := big.NewInt(1_000_000_000_000_000_000)
	amount := big.NewInt(1_000_000)

	step, err := ComputeSwapStep(current, target, liquidity, amount, 500)
	require.NoError(t, err)

	assert.Equal(t, 1, step.SqrtRatioNextX96.Cmp(target))
	assert.Equal(t, -1, step.SqrtRatioNextX96.Cmp(current))
	assert.Zero(t, amount.Cmp(new(big.Int).Add(step.AmountIn, step.FeeAmount)))
}

func TestAmountDeltas(t *testing.T) {
	liquidity := big.NewInt(1_000_000)

	amount0, err := GetAmount0Delta(Q96, Q96, liquidity, true)
	require.NoError(t, err)
	assert.Zero(t, amount0.Sign())

	doubled := new(big.Int).Lsh(Q96, 1)
	amount1 := GetAmount1Delta(Q96, doubled, liquidity, false)
	assert.Zero(t, liquidity.Cmp(amount1))

	amount0, err = GetAmount0Delta(doubled, Q96, liquidity, false)
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(500_000).Cmp(amount0))

	_, err = GetAmount0Delta(big.NewInt(0), Q96, liquidity, false)
	assert.ErrorIs(t, err, ErrSqrtPriceZero)
}

func TestAddDelta(t *testing.T) {
	got, err := AddDelta(big.NewInt(10), big.NewInt(-4))
	require.NoError(t, err)
	assert.Zero(t, big.NewInt(6).Cmp(got))

	_, err = AddDelta(big.NewInt(1), big.NewInt(-2))
	assert.ErrorIs(t, err, ErrLiquidityUnderflow)

	_, err = AddDelta(maxUint128, big.NewInt(1))
	assert.ErrorIs(t, err, ErrLiquidityOverflow)
}
