package model

import (
	"fmt"
	"math/big"
	"strings"
)

// Asset selects which pool token a single-sided deposit uses.
type Asset int

const (
	AssetNone Asset = iota
	AssetToken0
	AssetToken1
)

func (a Asset) String() string {
	switch a {
	case AssetToken0:
		return "token0"
	case AssetToken1:
		return "token1"
	default:
		return "none"
	}
}

// ParseAsset accepts "token0", "token1", or an empty string / "none".
func ParseAsset(s string) (Asset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AssetNone, nil
	case "token0", "0":
		return AssetToken0, nil
	case "token1", "1":
		return AssetToken1, nil
	default:
		return AssetNone, fmt.Errorf("invalid asset: %q", s)
	}
}

// RangeBounds are Q64.96 sqrt-price bounds, Lower <= Upper.
type RangeBounds struct {
	Lower *big.Int `json:"lower"`
	Upper *big.Int `json:"upper"`
}

// Defined reports whether the bounds describe a usable range.
func (b RangeBounds) Defined() bool {
	return b.Lower != nil && b.Upper != nil && b.Upper.Sign() > 0
}
