package aggregator

import "errors"

// ErrNoValidPrices is the only hard failure of an aggregation pass:
// every source failed, was rate limited, or was filtered out, so no
// aggregate can be produced. Partial outages degrade silently.
var ErrNoValidPrices = errors.New("no valid prices from any source")
