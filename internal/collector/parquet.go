package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/newthinker/quantguard/internal/core"
	"github.com/parquet-go/parquet-go"
)

// BarRow is the on-disk Parquet layout of one bar. Timestamps are unix
// milliseconds.
type BarRow struct {
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    int64   `parquet:"v"`
}

// ParquetLoader reads BarRow files
type ParquetLoader struct{}

func (ParquetLoader) Format() string { return "parquet" }

func (ParquetLoader) Load(path string) ([]core.Bar, error) {
	rows, err := parquet.ReadFile[BarRow](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	bars := make([]core.Bar, len(rows))
	for i, r := range rows {
		bars[i] = core.Bar{
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}

// WriteParquet stores bars at path in BarRow layout
func WriteParquet(path string, bars []core.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rows := make([]BarRow, len(bars))
	for i, b := range bars {
		rows[i] = BarRow{
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, rows)
}
