package collector

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantguard/internal/core"
)

// CSVLoader reads bars from CSV with columns time,open,high,low,close[,volume].
// A header row is optional.
type CSVLoader struct{}

func (CSVLoader) Format() string { return "csv" }

func (CSVLoader) Load(path string) ([]core.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBarsCSV(f)
}

// ReadBarsCSV decodes bars from r
func ReadBarsCSV(r io.Reader) ([]core.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []core.Bar
	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: %w", line, err))
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && isHeader(row[0]) {
			continue
		}
		if len(row) < 5 {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: expected at least 5 columns, got %d", line, len(row)))
		}

		bar, err := parseBarRow(row)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: %w", line, err))
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func isHeader(first string) bool {
	switch strings.ToLower(strings.TrimSpace(first)) {
	case "time", "timestamp", "date", "datetime", "t":
		return true
	}
	return false
}

func parseBarRow(row []string) (core.Bar, error) {
	ts, err := ParseTime(row[0])
	if err != nil {
		return core.Bar{}, err
	}
	var ohlc [4]float64
	for i := range ohlc {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		ohlc[i] = v
	}

	var volume int64
	if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("volume: %w", err)
		}
		volume = int64(v)
	}

	return core.Bar{
		Time:   ts,
		Open:   ohlc[0],
		High:   ohlc[1],
		Low:    ohlc[2],
		Close:  ohlc[3],
		Volume: volume,
	}, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC3339, date-time and date strings (UTC), and unix
// epochs in seconds or milliseconds
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
