// Package routeid computes deterministic identifiers for routes and
// arbitrage opportunities.
package routeid

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// RouteSignature computes the deterministic signature for an ordered
// sequence of venues. Two routes through the same venues in the same
// order share a signature, which keys the performance history.
// Formula: base58(SHA256(n|source0|source1|...)[:16]) where n is the
// hop count, which keeps a venue name containing the separator from
// colliding with a two-venue sequence.
func RouteSignature(sources []string) string {
	data := fmt.Sprintf("%d|%s", len(sources), strings.Join(sources, "|"))
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:16])
}

// OpportunityID computes a deterministic id for an arbitrage
// opportunity from its pair and the two venues involved.
// Formula: base58(SHA256(pairKey|buySource|sellSource)[:16])
func OpportunityID(pairKey, buySource, sellSource string) string {
	data := fmt.Sprintf("%s|%s|%s", pairKey, buySource, sellSource)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:16])
}
