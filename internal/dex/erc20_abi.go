package dex

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// erc20Encoding selects how symbol and name are returned. Some early tokens
// (MKR, SAI) return bytes32 instead of string.
type erc20Encoding int

const (
	erc20String erc20Encoding = iota
	erc20Bytes32
)

const erc20ABITemplate = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "%[1]s"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "%[1]s"}], "stateMutability": "view", "type": "function"}
]`

type lazyABI struct {
	once   sync.Once
	parsed abi.ABI
	err    error
}

var erc20ABIs [2]lazyABI

func erc20ABI(enc erc20Encoding) (abi.ABI, error) {
	textType := "string"
	if enc == erc20Bytes32 {
		textType = "bytes32"
	}
	l := &erc20ABIs[enc]
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(fmt.Sprintf(erc20ABITemplate, textType)))
	})
	return l.parsed, l.err
}
