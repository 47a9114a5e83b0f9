package collector

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantguard/internal/core"
)

// Tick is one recorded price observation
type Tick struct {
	Time   time.Time
	Symbol string
	Price  float64
}

// ReadTicksCSV decodes time,symbol,price rows. A header row is optional.
func ReadTicksCSV(r io.Reader) ([]Tick, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var ticks []Tick
	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return ticks, nil
		}
		line++
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: %w", line, err))
		}
		if line == 1 && isHeader(row[0]) {
			continue
		}
		if len(row) < 3 {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: expected time,symbol,price", line))
		}

		ts, err := ParseTime(row[0])
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: %w", line, err))
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("line %d: price: %w", line, err))
		}
		ticks = append(ticks, Tick{Time: ts, Symbol: strings.TrimSpace(row[1]), Price: price})
	}
}
