package v3math

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// MinTick is the minimum tick accepted by SqrtRatioAtTick.
	MinTick int32 = -887272
	// MaxTick is the maximum tick accepted by SqrtRatioAtTick.
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio, _ = new(big.Int).SetString("4295128739", 10)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	// Q96 is 1 in Q64.96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q192 is Q96 squared.
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)
	// MaxUint256 is 2^256 - 1.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	ErrTickOutOfBounds      = errors.New("tick out of bounds")
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")

	u256One     = uint256.NewInt(1)
	u256Max     = uint256.MustFromBig(MaxUint256)
	u256LowMask = uint256.NewInt(0xffffffff)

	// sqrt(1.0001^-(2^i)) in Q128.128, index 0 is the odd-tick seed.
	tickRatios = [20]*uint256.Int{
		mustHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		mustHex("0xfff97272373d413259a46990580e213a"),
		mustHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		mustHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		mustHex("0xffcb9843d60f6159c9db58835c926644"),
		mustHex("0xff973b41fa98c081472e6896dfb254c0"),
		mustHex("0xff2ea16466c96a3843ec78b326b52861"),
		mustHex("0xfe5dee046a99a2a811c461f1969c3053"),
		mustHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		mustHex("0xf987a7253ac413176f2b074cf7815e54"),
		mustHex("0xf3392b0822b70005940c7a398e4b70f3"),
		mustHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		mustHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		mustHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		mustHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		mustHex("0x31be135f97d08fd981231505542fcfa6"),
		mustHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		mustHex("0x5d6af8dedb81196699c329225ee604"),
		mustHex("0x2216e584f5fa1ea926041bedfe98"),
		mustHex("0x48a170391f7dc42444e8fa2"),
	}
	q128 = mustHex("0x100000000000000000000000000000000")
)

// DomainError reports a tick outside [MinTick, MaxTick]. It is raised as a
// panic by TickToSqrtPrice because such a tick means upstream data is corrupt.
type DomainError struct {
	Tick int64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("tick %d outside [%d, %d]", e.Tick, MinTick, MaxTick)
}

func (e *DomainError) Unwrap() error {
	return ErrTickOutOfBounds
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, rounded up exactly like
// the on-chain TickMath library.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, &DomainError{Tick: int64(tick)}
	}

	absTick := int64(tick)
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(uint256.Int)
	if absTick&0x1 != 0 {
		ratio.Set(tickRatios[0])
	} else {
		ratio.Set(q128)
	}
	for i := 1; i < len(tickRatios); i++ {
		if absTick&(1<<i) != 0 {
			ratio.Mul(ratio, tickRatios[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(u256Max, ratio)
	}

	rem := new(uint256.Int).And(ratio, u256LowMask)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.Add(ratio, u256One)
	}

	return ratio.ToBig(), nil
}

// TickToSqrtPrice is SqrtRatioAtTick for callers that have already validated
// the tick. It panics with *DomainError on out-of-range input.
func TickToSqrtPrice(tick int32) *big.Int {
	sqrt, err := SqrtRatioAtTick(tick)
	if err != nil {
		panic(err)
	}
	return sqrt
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtPriceOutOfBounds
	}

	low, high := MinTick, MaxTick
	var tick int32
	for low <= high {
		mid := low + (high-low)/2
		ratio := TickToSqrtPrice(mid)
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}

// ClampTick bounds tick to the valid domain.
func ClampTick(tick int32) int32 {
	if tick < MinTick {
		return MinTick
	}
	if tick > MaxTick {
		return MaxTick
	}
	return tick
}

// FloorTick rounds tick down to a multiple of tickSpacing.
func FloorTick(tick, tickSpacing int32) int32 {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}
	return compressed * tickSpacing
}

var feeTickSpacings = map[uint32]int32{
	100:   1,
	500:   10,
	3000:  60,
	10000: 200,
}

// TickSpacingForFee maps a fee tier in hundredths of a bip to its tick spacing.
func TickSpacingForFee(fee uint32) (int32, bool) {
	spacing, ok := feeTickSpacings[fee]
	return spacing, ok
}

func mustHex(s string) *uint256.Int {
	return uint256.MustFromHex(s)
}
