// Package stub provides a simulated exchange for tests and the demo
// server. It serves the common quote API over HTTP and an optional
// push feed over websocket, with deterministic configurable prices, so
// engine logic can be exercised without real exchange connectivity.
package stub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Venue is one simulated exchange.
type Venue struct {
	name string

	mu        sync.RWMutex
	price     decimal.Decimal
	liquidity decimal.Decimal
	gas       int64
	impact    float64
	fee       float64

	server   *httptest.Server
	upgrader websocket.Upgrader

	feedMu    sync.Mutex
	feedConns []*websocket.Conn
}

// NewVenue starts a simulated exchange serving /quote and /feed.
func NewVenue(name string, price float64, liquidityUSD float64) *Venue {
	v := &Venue{
		name:      name,
		price:     decimal.NewFromFloat(price),
		liquidity: decimal.NewFromFloat(liquidityUSD),
		gas:       150_000,
		impact:    0.3,
		fee:       0.003,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/quote", v.handleQuote)
	mux.HandleFunc("/feed", v.handleFeed)
	v.server = httptest.NewServer(mux)
	return v
}

// URL returns the HTTP endpoint of the venue.
func (v *Venue) URL() string { return v.server.URL }

// FeedURL returns the websocket feed endpoint.
func (v *Venue) FeedURL() string {
	return "ws" + strings.TrimPrefix(v.server.URL, "http") + "/feed"
}

// SetPrice changes the quoted unit price.
func (v *Venue) SetPrice(price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.price = decimal.NewFromFloat(price)
}

// SetGas changes the quoted gas estimate.
func (v *Venue) SetGas(gas int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gas = gas
}

// Close shuts the venue down.
func (v *Venue) Close() {
	v.feedMu.Lock()
	for _, conn := range v.feedConns {
		conn.Close()
	}
	v.feedConns = nil
	v.feedMu.Unlock()
	v.server.Close()
}

// PushUpdate broadcasts a price update on the feed and makes /quote
// serve the new price from now on.
func (v *Venue) PushUpdate(pairKey string, price float64) {
	v.SetPrice(price)

	msg := map[string]interface{}{
		"type":      "price",
		"source":    v.name,
		"pair":      pairKey,
		"price":     fmt.Sprintf("%g", price),
		"timestamp": time.Now().UnixMilli(),
	}

	v.feedMu.Lock()
	defer v.feedMu.Unlock()
	for _, conn := range v.feedConns {
		conn.WriteJSON(msg)
	}
}

// DropFeeds closes all live feed connections without stopping the
// venue, simulating a feed outage.
func (v *Venue) DropFeeds() {
	v.feedMu.Lock()
	defer v.feedMu.Unlock()
	for _, conn := range v.feedConns {
		conn.Close()
	}
	v.feedConns = nil
}

func (v *Venue) handleQuote(w http.ResponseWriter, r *http.Request) {
	amountIn, err := decimal.NewFromString(r.URL.Query().Get("amountIn"))
	if err != nil {
		http.Error(w, "bad amountIn", http.StatusBadRequest)
		return
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	payload := map[string]interface{}{
		"price":       v.price.String(),
		"amountOut":   amountIn.Mul(v.price).String(),
		"priceImpact": v.impact,
		"liquidity":   v.liquidity.String(),
		"gasEstimate": v.gas,
		"confidence":  95.0,
		"poolAddress": "0x" + v.name,
		"fee":         v.fee,
		"volume24h":   "1000000",
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (v *Venue) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	v.feedMu.Lock()
	v.feedConns = append(v.feedConns, conn)
	v.feedMu.Unlock()

	// Drain client messages (subscribes, pongs) until the peer goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
