package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"dex-route-engine/internal/domain"
)

// QuoteRequest is the engine-side description of one quote fetch.
type QuoteRequest struct {
	TokenIn  domain.Token
	TokenOut domain.Token
	AmountIn decimal.Decimal
}

// Adapter builds the outbound request for a venue and parses its
// response into a Quote. One implementation per exchange API shape,
// selected via the registry; venues without a dedicated adapter fall
// back to DefaultAdapter.
type Adapter interface {
	// BuildRequest constructs the HTTP request for a quote.
	BuildRequest(ctx context.Context, endpoint string, req QuoteRequest) (*http.Request, error)
	// ParseResponse maps the response body to a Quote. The returned
	// quote is validated by the fetcher before acceptance.
	ParseResponse(body []byte, req QuoteRequest) (*domain.Quote, error)
}

// genericQuotePayload is the wire shape served by venues that follow
// the common quote API. Amount fields are strings to avoid float
// truncation of large integer values.
type genericQuotePayload struct {
	Price       string  `json:"price"`
	AmountOut   string  `json:"amountOut"`
	PriceImpact float64 `json:"priceImpact"`
	Liquidity   string  `json:"liquidity"`
	GasEstimate int64   `json:"gasEstimate"`
	Confidence  float64 `json:"confidence"`
	PoolAddress string  `json:"poolAddress"`
	FeeRate     float64 `json:"fee"`
	Volume24h   string  `json:"volume24h"`
	Timestamp   int64   `json:"timestamp"` // unix ms, optional
}

// DefaultAdapter handles the common quote API: GET with query
// parameters, generic JSON payload back.
type DefaultAdapter struct {
	// Name is the source identifier stamped on parsed quotes.
	Name string
}

var _ Adapter = (*DefaultAdapter)(nil)

// BuildRequest issues GET {endpoint}/quote?tokenIn=..&tokenOut=..&amountIn=..&chainId=..
func (a *DefaultAdapter) BuildRequest(ctx context.Context, endpoint string, req QuoteRequest) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	u = u.JoinPath("quote")

	q := u.Query()
	q.Set("tokenIn", req.TokenIn.Address)
	q.Set("tokenOut", req.TokenOut.Address)
	q.Set("amountIn", req.AmountIn.String())
	q.Set("chainId", fmt.Sprintf("%d", req.TokenIn.ChainID))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

// ParseResponse maps the generic payload to a Quote.
func (a *DefaultAdapter) ParseResponse(body []byte, req QuoteRequest) (*domain.Quote, error) {
	var payload genericQuotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode quote payload: %w", err)
	}

	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", payload.Price, err)
	}
	amountOut, err := decimal.NewFromString(payload.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("parse amountOut %q: %w", payload.AmountOut, err)
	}

	liquidity := decimal.Zero
	if payload.Liquidity != "" {
		if liquidity, err = decimal.NewFromString(payload.Liquidity); err != nil {
			return nil, fmt.Errorf("parse liquidity %q: %w", payload.Liquidity, err)
		}
	}
	volume := decimal.Zero
	if payload.Volume24h != "" {
		if volume, err = decimal.NewFromString(payload.Volume24h); err != nil {
			return nil, fmt.Errorf("parse volume24h %q: %w", payload.Volume24h, err)
		}
	}

	ts := time.Now()
	if payload.Timestamp > 0 {
		ts = time.UnixMilli(payload.Timestamp)
	}

	confidence := payload.Confidence
	if confidence == 0 {
		confidence = 80 // venues that do not self-report get a neutral default
	}

	return &domain.Quote{
		Source:      a.Name,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		Price:       price,
		AmountIn:    req.AmountIn,
		AmountOut:   amountOut,
		PriceImpact: payload.PriceImpact,
		Liquidity:   liquidity,
		GasEstimate: payload.GasEstimate,
		Timestamp:   ts,
		Confidence:  confidence,
		PoolAddress: payload.PoolAddress,
		FeeRate:     payload.FeeRate,
		Volume24h:   volume,
	}, nil
}
