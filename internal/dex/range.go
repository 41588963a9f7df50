package dex

import (
	"fmt"

	"sslScope/internal/v3math"
)

// TickRange represents an inclusive tick range.
type TickRange struct {
	Lower int32
	Upper int32
}

// BitmapWord returns the tick bitmap word holding tick for the given spacing.
func BitmapWord(tick, tickSpacing int32) int16 {
	compressed := v3math.FloorTick(tick, tickSpacing) / tickSpacing
	return int16(compressed >> 8)
}

// SplitTickRange splits an inclusive tick range into the per-bitmap-word
// ranges a TickLens query covers.
func SplitTickRange(lower, upper, tickSpacing int32) ([]TickRange, error) {
	if tickSpacing <= 0 {
		return nil, fmt.Errorf("tick spacing must be greater than zero")
	}
	if upper < lower {
		return nil, fmt.Errorf("upper tick must be >= lower tick")
	}

	wordSpan := int64(tickSpacing) * 256
	ranges := make([]TickRange, 0)
	for word := int64(BitmapWord(lower, tickSpacing)); word <= int64(BitmapWord(upper, tickSpacing)); word++ {
		start := word * wordSpan
		end := start + wordSpan - 1
		if start < int64(lower) {
			start = int64(lower)
		}
		if end > int64(upper) {
			end = int64(upper)
		}
		ranges = append(ranges, TickRange{Lower: int32(start), Upper: int32(end)})
	}

	return ranges, nil
}
