// Package collector supplies price history to the backtester from bar files
// on disk.
package collector

import (
	"context"
	"time"

	"github.com/newthinker/quantguard/internal/core"
)

// Source returns the bars of one symbol and interval within [start, end].
// A zero start or end leaves that side unbounded.
type Source interface {
	GetBars(ctx context.Context, symbol, interval string, start, end time.Time) (core.Series, error)
}

// Loader decodes one bar file format
type Loader interface {
	// Format is the file extension the loader handles, without the dot
	Format() string
	Load(path string) ([]core.Bar, error)
}
