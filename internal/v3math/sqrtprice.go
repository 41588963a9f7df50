package v3math

import (
	"errors"
	"math/big"
)

var (
	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")
	ErrPriceOverflow = errors.New("next sqrt price out of range")

	one = big.NewInt(1)
)

func mulDiv(a, b, c *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, c)
}

func mulDivRoundingUp(a, b, c *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, c, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, one)
	}
	return quo
}

func divRoundingUp(a, b *big.Int) *big.Int {
	quo, rem := new(big.Int).QuoRem(a, b, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, one)
	}
	return quo
}

// GetAmount0Delta returns liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB) in token0 units.
func GetAmount0Delta(sqrtRatioA, sqrtRatioB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	if sqrtRatioA.Cmp(sqrtRatioB) > 0 {
		sqrtRatioA, sqrtRatioB = sqrtRatioB, sqrtRatioA
	}
	if sqrtRatioA.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtRatioB, sqrtRatioA)

	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, sqrtRatioB), sqrtRatioA), nil
	}
	term := mulDiv(numerator1, numerator2, sqrtRatioB)
	return term.Quo(term, sqrtRatioA), nil
}

// GetAmount1Delta returns liquidity * (sqrtB - sqrtA) in token1 units.
func GetAmount1Delta(sqrtRatioA, sqrtRatioB, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtRatioA.Cmp(sqrtRatioB) > 0 {
		sqrtRatioA, sqrtRatioB = sqrtRatioB, sqrtRatioA
	}
	diff := new(big.Int).Sub(sqrtRatioB, sqrtRatioA)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}

// GetNextSqrtPriceFromInput returns the sqrt price after adding amountIn of the input token.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput returns the sqrt price after removing amountOut of the output token.
func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

func nextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96), nil
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtPX96)

	if add {
		if product.Cmp(MaxUint256) <= 0 {
			denominator := new(big.Int).Add(numerator1, product)
			if denominator.Cmp(MaxUint256) <= 0 {
				return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
			}
		}
		denominator := new(big.Int).Quo(numerator1, sqrtPX96)
		denominator.Add(denominator, amount)
		return divRoundingUp(numerator1, denominator), nil
	}

	if product.Cmp(MaxUint256) > 0 || numerator1.Cmp(product) <= 0 {
		return nil, ErrPriceOverflow
	}
	denominator := new(big.Int).Sub(numerator1, product)
	return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
}

func nextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if add {
		quotient := mulDiv(amount, Q96, liquidity)
		return quotient.Add(quotient, sqrtPX96), nil
	}
	quotient := mulDivRoundingUp(amount, Q96, liquidity)
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, ErrPriceOverflow
	}
	return quotient.Sub(sqrtPX96, quotient), nil
}
