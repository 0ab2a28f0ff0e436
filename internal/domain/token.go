// Package domain contains the core data types shared by the price
// aggregation and route optimization subsystems.
package domain

import (
	"fmt"
	"strings"
)

// Token identifies an asset on a specific chain. Immutable value type.
type Token struct {
	Symbol   string // display symbol, e.g. "WETH"
	Address  string // contract address, hex
	ChainID  int64  // network id, e.g. 1 for mainnet
	Decimals int    // decimal precision
}

// Key returns the canonical identity of the token: chain id plus
// lowercased address.
func (t Token) Key() string {
	return fmt.Sprintf("%d:%s", t.ChainID, strings.ToLower(t.Address))
}

// Equal reports whether two tokens denote the same asset.
func (t Token) Equal(other Token) bool {
	return t.ChainID == other.ChainID &&
		strings.EqualFold(t.Address, other.Address)
}

// PairKey builds the cache/aggregation key for a directed token pair.
// Format: chainID:tokenInAddr:tokenOutAddr (addresses lowercased).
func PairKey(tokenIn, tokenOut Token) string {
	return fmt.Sprintf("%d:%s:%s",
		tokenIn.ChainID,
		strings.ToLower(tokenIn.Address),
		strings.ToLower(tokenOut.Address),
	)
}
