package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dex-route-engine/internal/domain"
)

// Fetch error taxonomy. Per-source failures are absorbed by the
// aggregation pass and reported on the error channel, never escalated
// to the caller.
var (
	// ErrSourceTimeout marks a fetch that exceeded its deadline after
	// all retries.
	ErrSourceTimeout = errors.New("source timeout")
	// ErrSourceRateLimited marks a request pre-empted by the local
	// sliding-window limiter before it was issued.
	ErrSourceRateLimited = errors.New("source rate limited")
	// ErrSourceUnavailable marks a non-timeout transport or protocol
	// failure after all retries.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Default fetcher configuration.
const (
	DefaultTimeout       = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryBase     = 200 * time.Millisecond
)

// Fetcher issues quote requests to venues with bounded timeouts and
// per-attempt backoff (delay = base * attempt).
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	attempts int
	base     time.Duration
	logger   *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.timeout = d }
}

// WithRetryAttempts sets the total number of attempts per fetch.
func WithRetryAttempts(n int) FetcherOption {
	return func(f *Fetcher) { f.attempts = n }
}

// WithRetryBase sets the backoff base delay.
func WithRetryBase(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.base = d }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a quote fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{},
		timeout:  DefaultTimeout,
		attempts: DefaultRetryAttempts,
		base:     DefaultRetryBase,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch requests one quote from the venue described by entry. The
// quote is validated against the domain invariants before acceptance.
func (f *Fetcher) Fetch(ctx context.Context, entry *Entry, req QuoteRequest) (*domain.Quote, error) {
	var lastErr error

	for attempt := 1; attempt <= f.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.base * time.Duration(attempt-1)):
			}
		}

		quote, err := f.fetchOnce(ctx, entry, req)
		if err == nil {
			return quote, nil
		}
		lastErr = err

		// Invalid payloads will not improve on retry.
		if errors.Is(err, domain.ErrInvalidQuote) {
			return nil, err
		}

		f.logger.Debug("quote fetch attempt failed",
			zap.String("source", entry.Config.Name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			break
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceTimeout, entry.Config.Name, lastErr)
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, entry.Config.Name, lastErr)
}

// fetchOnce performs a single bounded attempt.
func (f *Fetcher) fetchOnce(ctx context.Context, entry *Entry, req QuoteRequest) (*domain.Quote, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	httpReq, err := entry.Adapter.BuildRequest(attemptCtx, entry.Config.Endpoint, req)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(body, 120))
	}

	quote, err := entry.Adapter.ParseResponse(body, req)
	if err != nil {
		return nil, err
	}
	if err := quote.Validate(); err != nil {
		return nil, err
	}

	// Scale confidence by the source's configured reliability weight.
	if entry.Config.Weight > 0 && entry.Config.Weight < 1 {
		quote.Confidence *= entry.Config.Weight
	}
	return quote, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
