package v3math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceSignificantDigits is the number of significant digits kept when a
// price ratio is rendered as a decimal.
const PriceSignificantDigits = 18

// SqrtPriceToPrice converts a Q64.96 sqrt price into decimal-adjusted prices.
// price0 is token1 per token0 and price1 is its reciprocal.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (decimal.Decimal, decimal.Decimal) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, decimal.Zero
	}

	ratioX192 := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num := new(big.Int).Mul(ratioX192, pow10(decimals0))
	den := new(big.Int).Mul(Q192, pow10(decimals1))

	return ratioToDecimal(num, den), ratioToDecimal(den, num)
}

// TickToPrice is SqrtPriceToPrice at the sqrt price of tick.
func TickToPrice(tick int32, decimals0, decimals1 uint8) (decimal.Decimal, decimal.Decimal) {
	return SqrtPriceToPrice(TickToSqrtPrice(tick), decimals0, decimals1)
}

// ToExact scales a raw token amount down by its decimals.
func ToExact(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

func ratioToDecimal(num, den *big.Int) decimal.Decimal {
	if num.Sign() == 0 || den.Sign() == 0 {
		return decimal.Zero
	}
	// digits before the decimal point, negative when the ratio is below 1
	magnitude := int32(len(num.String())) - int32(len(den.String()))
	places := PriceSignificantDigits - magnitude
	if places < 0 {
		places = 0
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), places)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
