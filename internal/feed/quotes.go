// Package feed holds the latest traded price per symbol for the live risk
// loop.
package feed

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/quantguard/internal/core"
)

// Quote is the last observed price of a symbol
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// Quotes is an in-memory quote board. It satisfies risk.PriceFeed.
type Quotes struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	maxAge time.Duration
	clock  core.Clock
}

// NewQuotes creates a board. Quotes older than maxAge are reported absent;
// zero keeps them forever.
func NewQuotes(clock core.Clock, maxAge time.Duration) *Quotes {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Quotes{
		quotes: make(map[string]Quote),
		maxAge: maxAge,
		clock:  clock,
	}
}

// Set records a price. Older observations than the stored one are ignored.
func (q *Quotes) Set(symbol string, price float64, at time.Time) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("symbol is required"))
	}
	if price <= 0 {
		return core.WrapError(core.ErrInvalidInput, fmt.Errorf("price must be positive, got %v", price))
	}
	if at.IsZero() {
		at = q.clock.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if prev, ok := q.quotes[symbol]; ok && at.Before(prev.At) {
		return nil
	}
	q.quotes[symbol] = Quote{Symbol: symbol, Price: price, At: at}
	return nil
}

// CurrentPrice returns the latest fresh price for symbol
func (q *Quotes) CurrentPrice(symbol string) (float64, bool) {
	quote, ok := q.Get(symbol)
	if !ok {
		return 0, false
	}
	return quote.Price, true
}

// Get returns the latest fresh quote for symbol
func (q *Quotes) Get(symbol string) (Quote, bool) {
	q.mu.RLock()
	quote, ok := q.quotes[symbol]
	q.mu.RUnlock()
	if !ok {
		return Quote{}, false
	}
	if q.maxAge > 0 && q.clock.Now().Sub(quote.At) > q.maxAge {
		return Quote{}, false
	}
	return quote, true
}

// All returns every stored quote sorted by symbol, stale ones included
func (q *Quotes) All() []Quote {
	q.mu.RLock()
	out := make([]Quote, 0, len(q.quotes))
	for _, quote := range q.quotes {
		out = append(out, quote)
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
