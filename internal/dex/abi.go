package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const v3PoolABIJSON = `[
  {
    "inputs": [],
    "name": "token0",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "token1",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "fee",
    "outputs": [{"internalType": "uint24", "name": "", "type": "uint24"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "tickSpacing",
    "outputs": [{"internalType": "int24", "name": "", "type": "int24"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "liquidity",
    "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "slot0",
    "outputs": [
      {"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"internalType": "int24", "name": "tick", "type": "int24"},
      {"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
      {"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
      {"internalType": "bool", "name": "unlocked", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "int24", "name": "tick", "type": "int24"}],
    "name": "ticks",
    "outputs": [
      {"internalType": "uint128", "name": "liquidityGross", "type": "uint128"},
      {"internalType": "int128", "name": "liquidityNet", "type": "int128"},
      {"internalType": "uint256", "name": "feeGrowthOutside0X128", "type": "uint256"},
      {"internalType": "uint256", "name": "feeGrowthOutside1X128", "type": "uint256"},
      {"internalType": "int56", "name": "tickCumulativeOutside", "type": "int56"},
      {"internalType": "uint160", "name": "secondsPerLiquidityOutsideX128", "type": "uint160"},
      {"internalType": "uint32", "name": "secondsOutside", "type": "uint32"},
      {"internalType": "bool", "name": "initialized", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "key", "type": "bytes32"}],
    "name": "positions",
    "outputs": [
      {"internalType": "uint128", "name": "liquidity", "type": "uint128"},
      {"internalType": "uint256", "name": "feeGrowthInside0LastX128", "type": "uint256"},
      {"internalType": "uint256", "name": "feeGrowthInside1LastX128", "type": "uint256"},
      {"internalType": "uint128", "name": "tokensOwed0", "type": "uint128"},
      {"internalType": "uint128", "name": "tokensOwed1", "type": "uint128"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const tickLensABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "pool", "type": "address"},
      {"internalType": "int16", "name": "tickBitmapIndex", "type": "int16"}
    ],
    "name": "getPopulatedTicksInWord",
    "outputs": [
      {
        "components": [
          {"internalType": "int24", "name": "tick", "type": "int24"},
          {"internalType": "int128", "name": "liquidityNet", "type": "int128"},
          {"internalType": "uint128", "name": "liquidityGross", "type": "uint128"}
        ],
        "internalType": "struct ITickLens.PopulatedTick[]",
        "name": "populatedTicks",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const vaultABIJSON = `[
  {"inputs": [], "name": "pool", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "user", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "lower", "outputs": [{"type": "int24"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "upper", "outputs": [{"type": "int24"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "rangeSize", "outputs": [{"type": "int24"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "isInRange", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "lastRerange", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [],
    "name": "getPosition",
    "outputs": [
      {"name": "liquidity", "type": "uint128"},
      {"name": "feeGrowthInside0LastX128", "type": "uint256"},
      {"name": "feeGrowthInside1LastX128", "type": "uint256"},
      {"name": "tokensOwed0", "type": "uint128"},
      {"name": "tokensOwed1", "type": "uint128"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	v3PoolABI     abi.ABI
	v3PoolABIOnce sync.Once
	v3PoolABIErr  error

	tickLensABI     abi.ABI
	tickLensABIOnce sync.Once
	tickLensABIErr  error

	vaultABI     abi.ABI
	vaultABIOnce sync.Once
	vaultABIErr  error
)

// V3PoolABI returns the parsed V3 pool ABI.
func V3PoolABI() (abi.ABI, error) {
	v3PoolABIOnce.Do(func() {
		v3PoolABI, v3PoolABIErr = abi.JSON(strings.NewReader(v3PoolABIJSON))
	})
	return v3PoolABI, v3PoolABIErr
}

// TickLensABI returns the parsed TickLens periphery ABI.
func TickLensABI() (abi.ABI, error) {
	tickLensABIOnce.Do(func() {
		tickLensABI, tickLensABIErr = abi.JSON(strings.NewReader(tickLensABIJSON))
	})
	return tickLensABI, tickLensABIErr
}

// VaultABI returns the parsed single-sided liquidity vault ABI.
func VaultABI() (abi.ABI, error) {
	vaultABIOnce.Do(func() {
		vaultABI, vaultABIErr = abi.JSON(strings.NewReader(vaultABIJSON))
	})
	return vaultABI, vaultABIErr
}
