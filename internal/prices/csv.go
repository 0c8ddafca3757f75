package prices

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportCSV loads a wide CSV (first column date, then one column per symbol,
// header row with symbol names) into the store. Empty cells are skipped.
// Returns the number of closes written.
func (s *SQLiteStore) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	series, err := ReadCSV(r)
	if err != nil {
		return 0, err
	}
	total := 0
	for symbol, points := range series {
		if err := s.UpsertPrices(ctx, symbol, points); err != nil {
			return total, err
		}
		total += len(points)
	}
	s.log.Info().Int("closes", total).Int("symbols", len(series)).Msg("Imported CSV prices")
	return total, nil
}

// ReadCSV parses a wide price CSV into per-symbol points.
func ReadCSV(r io.Reader) (map[string][]Point, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("csv header needs a date column and at least one symbol")
	}
	symbols := make([]string, len(header)-1)
	for i, h := range header[1:] {
		symbols[i] = strings.TrimSpace(h)
	}

	out := make(map[string][]Point, len(symbols))
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		date, err := ParseDate(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad date %q", line, record[0])
		}
		for i, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d: bad value %q for %s", line, cell, symbols[i])
			}
			out[symbols[i]] = append(out[symbols[i]], Point{Date: date, Close: v})
		}
	}
	return out, nil
}
