package model

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	// DecimalsKnown is false when the decimals call failed.
	DecimalsKnown bool `json:"-"`
}

// Resolved reports whether the token can be used for amount scaling.
func (t TokenMeta) Resolved() bool {
	return t.Address != "" && t.DecimalsKnown
}
