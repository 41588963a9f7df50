package v3math

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqrtRatioAtTick(t *testing.T) {
	t.Run("rejects too low", func(t *testing.T) {
		_, err := SqrtRatioAtTick(MinTick - 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
		var domainErr *DomainError
		assert.True(t, errors.As(err, &domainErr))
	})

	t.Run("rejects too high", func(t *testing.T) {
		_, err := SqrtRatioAtTick(MaxTick + 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
	})

	t.Run("min tick", func(t *testing.T) {
		sqrt, err := SqrtRatioAtTick(MinTick)
		require.NoError(t, err)
		assert.Zero(t, MinSqrtRatio.Cmp(sqrt))
	})

	t.Run("max tick", func(t *testing.T) {
		sqrt, err := SqrtRatioAtTick(MaxTick)
		require.NoError(t, err)
		assert.Zero(t, MaxSqrtRatio.Cmp(sqrt))
	})

	t.Run("tick zero is one", func(t *testing.T) {
		sqrt, err := SqrtRatioAtTick(0)
		require.NoError(t, err)
		assert.Zero(t, Q96.Cmp(sqrt))
	})

	t.Run("monotonic", func(t *testing.T) {
		ticks := []int32{MinTick, -500000, -60000, -200, -1, 0, 1, 200, 60000, 500000, MaxTick}
		prev := new(big.Int)
		for _, tick := range ticks {
			sqrt := TickToSqrtPrice(tick)
			assert.Equal(t, 1, sqrt.Cmp(prev), "tick %d", tick)
			prev = sqrt
		}
	})
}

func TestTickToSqrtPricePanicsOutsideDomain(t *testing.T) {
	assert.PanicsWithError(t, (&DomainError{Tick: int64(MaxTick) + 1}).Error(), func() {
		TickToSqrtPrice(MaxTick + 1)
	})
}

func TestTickAtSqrtRatio(t *testing.T) {
	t.Run("rejects too low", func(t *testing.T) {
		_, err := TickAtSqrtRatio(new(big.Int).Sub(MinSqrtRatio, big.NewInt(1)))
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
	})

	t.Run("rejects max", func(t *testing.T) {
		_, err := TickAtSqrtRatio(MaxSqrtRatio)
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
	})

	t.Run("min ratio", func(t *testing.T) {
		tick, err := TickAtSqrtRatio(MinSqrtRatio)
		require.NoError(t, err)
		assert.Equal(t, MinTick, tick)
	})

	t.Run("closest to max", func(t *testing.T) {
		tick, err := TickAtSqrtRatio(new(big.Int).Sub(MaxSqrtRatio, big.NewInt(1)))
		require.NoError(t, err)
		assert.Equal(t, MaxTick-1, tick)
	})

	t.Run("round trip", func(t *testing.T) {
		for _, want := range []int32{-887000, -123457, -60, -1, 0, 1, 60, 201234, 887000} {
			got, err := TickAtSqrtRatio(TickToSqrtPrice(want))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})
}

func TestFloorTick(t *testing.T) {
	cases := []struct {
		tick, spacing, want int32
	}{
		{tick: 125, spacing: 60, want: 120},
		{tick: 120, spacing: 60, want: 120},
		{tick: -1, spacing: 60, want: -60},
		{tick: -60, spacing: 60, want: -60},
		{tick: -61, spacing: 10, want: -70},
		{tick: 7, spacing: 1, want: 7},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FloorTick(c.tick, c.spacing), "tick %d spacing %d", c.tick, c.spacing)
	}
}

func TestTickSpacingForFee(t *testing.T) {
	spacing, ok := TickSpacingForFee(3000)
	require.True(t, ok)
	assert.Equal(t, int32(60), spacing)

	_, ok = TickSpacingForFee(1234)
	assert.False(t, ok)
}

func TestSqrtPriceToPrice(t *testing.T) {
	t.Run("tick zero equal decimals", func(t *testing.T) {
		price0, price1 := TickToPrice(0, 18, 18)
		assert.True(t, price0.Equal(decimal.NewFromInt(1)), price0.String())
		assert.True(t, price1.Equal(decimal.NewFromInt(1)), price1.String())
	})

	t.Run("decimal adjustment", func(t *testing.T) {
		price0, price1 := TickToPrice(0, 6, 18)
		assert.True(t, price0.Equal(decimal.New(1, -12)), price0.String())
		assert.True(t, price1.Equal(decimal.New(1, 12)), price1.String())
	})

	t.Run("reciprocal round trip", func(t *testing.T) {
		tolerance := decimal.New(1, -12)
		for _, tick := range []int32{-800000, -276324, -200000, -887, 0, 1, 46054, 200000, 800000} {
			price0, price1 := TickToPrice(tick, 18, 6)
			require.True(t, price0.IsPositive(), "tick %d", tick)
			product := price0.Mul(price1)
			assert.True(t, product.Sub(decimal.NewFromInt(1)).Abs().LessThan(tolerance),
				"tick %d: %s * %s = %s", tick, price0, price1, product)
		}
	})

	t.Run("zero sqrt price", func(t *testing.T) {
		price0, price1 := SqrtPriceToPrice(big.NewInt(0), 18, 18)
		assert.True(t, price0.IsZero())
		assert.True(t, price1.IsZero())
	})
}

func TestToExact(t *testing.T) {
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.True(t, ToExact(raw, 18).Equal(decimal.RequireFromString("1.5")))
	assert.True(t, ToExact(nil, 18).IsZero())
}
