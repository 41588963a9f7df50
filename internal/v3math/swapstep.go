package v3math

import (
	"errors"
	"math/big"
)

var (
	feeDenominator = big.NewInt(1_000_000)
	maxUint128     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// SwapStep is the outcome of swapping within a single tick range.
type SwapStep struct {
	SqrtRatioNextX96 *big.Int
	AmountIn         *big.Int
	AmountOut        *big.Int
	FeeAmount        *big.Int
}

// ComputeSwapStep mirrors SwapMath.computeSwapStep. A non-negative
// amountRemaining is exact input, a negative one exact output.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *big.Int, feePips uint32) (SwapStep, error) {
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := new(big.Int).SetUint64(uint64(feePips))
	feeComplement := new(big.Int).Sub(feeDenominator, fee)

	step := SwapStep{
		AmountIn:  new(big.Int),
		AmountOut: new(big.Int),
		FeeAmount: new(big.Int),
	}
	amountRemainingAbs := new(big.Int).Abs(amountRemaining)

	var err error
	if exactIn {
		amountRemainingLessFee := mulDiv(amountRemaining, feeComplement, feeDenominator)
		if zeroForOne {
			step.AmountIn, err = GetAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return SwapStep{}, err
			}
		} else {
			step.AmountIn = GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if amountRemainingLessFee.Cmp(step.AmountIn) >= 0 {
			step.SqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			step.SqrtRatioNextX96, err = GetNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return SwapStep{}, err
			}
		}
	} else {
		if zeroForOne {
			step.AmountOut = GetAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			step.AmountOut, err = GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
			if err != nil {
				return SwapStep{}, err
			}
		}
		if amountRemainingAbs.Cmp(step.AmountOut) >= 0 {
			step.SqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			step.SqrtRatioNextX96, err = GetNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, amountRemainingAbs, zeroForOne)
			if err != nil {
				return SwapStep{}, err
			}
		}
	}

	reachedTarget := sqrtRatioTargetX96.Cmp(step.SqrtRatioNextX96) == 0

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			step.AmountIn, err = GetAmount0Delta(step.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return SwapStep{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			step.AmountOut = GetAmount1Delta(step.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			step.AmountIn = GetAmount1Delta(sqrtRatioCurrentX96, step.SqrtRatioNextX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			step.AmountOut, err = GetAmount0Delta(sqrtRatioCurrentX96, step.SqrtRatioNextX96, liquidity, false)
			if err != nil {
				return SwapStep{}, err
			}
		}
	}

	if !exactIn && step.AmountOut.Cmp(amountRemainingAbs) > 0 {
		step.AmountOut.Set(amountRemainingAbs)
	}

	if exactIn && step.SqrtRatioNextX96.Cmp(sqrtRatioTargetX96) != 0 {
		step.FeeAmount.Sub(amountRemaining, step.AmountIn)
	} else {
		step.FeeAmount = mulDivRoundingUp(step.AmountIn, fee, feeComplement)
	}

	return step, nil
}

// AddDelta applies a signed liquidity delta, keeping the result within uint128.
func AddDelta(x, y *big.Int) (*big.Int, error) {
	z := new(big.Int).Add(x, y)
	if z.Sign() < 0 {
		return nil, ErrLiquidityUnderflow
	}
	if z.Cmp(maxUint128) > 0 {
		return nil, ErrLiquidityOverflow
	}
	return z, nil
}
