// Package prices holds the aligned daily close matrix the engine runs on and
// the stores it is loaded from.
package prices

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the wire and storage format for trading dates.
const DateLayout = "2006-01-02"

// Matrix is an aligned table of daily closes: one row per trading date, one
// column per asset, plus the market proxy and the optional risk-free yield.
// A Matrix is never mutated after construction.
type Matrix struct {
	Dates    []time.Time
	Tickers  []string
	Values   [][]float64 // Values[row][col]
	Market   []float64
	RiskFree []float64 // yield in percent, NaN where unknown; nil when not loaded
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	return len(m.Dates)
}

// Validate checks the alignment invariants.
func (m *Matrix) Validate() error {
	n := len(m.Dates)
	if len(m.Values) != n || len(m.Market) != n {
		return fmt.Errorf("matrix: misaligned lengths (dates=%d values=%d market=%d)", n, len(m.Values), len(m.Market))
	}
	if m.RiskFree != nil && len(m.RiskFree) != n {
		return fmt.Errorf("matrix: risk-free length %d, want %d", len(m.RiskFree), n)
	}
	for i := 1; i < n; i++ {
		if !m.Dates[i].After(m.Dates[i-1]) {
			return fmt.Errorf("matrix: dates not strictly ascending at %s", m.Dates[i].Format(DateLayout))
		}
	}
	for i, row := range m.Values {
		if len(row) != len(m.Tickers) {
			return fmt.Errorf("matrix: row %d has %d columns, want %d", i, len(row), len(m.Tickers))
		}
		for j, v := range row {
			if !validPrice(v) {
				return fmt.Errorf("matrix: invalid price %v for %s on %s", v, m.Tickers[j], m.Dates[i].Format(DateLayout))
			}
		}
		if !validPrice(m.Market[i]) {
			return fmt.Errorf("matrix: invalid market price %v on %s", m.Market[i], m.Dates[i].Format(DateLayout))
		}
	}
	return nil
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ColumnIndex returns the column of ticker, or -1.
func (m *Matrix) ColumnIndex(ticker string) int {
	for j, t := range m.Tickers {
		if t == ticker {
			return j
		}
	}
	return -1
}

// Column returns a copy of one asset's closes.
func (m *Matrix) Column(ticker string) ([]float64, bool) {
	j := m.ColumnIndex(ticker)
	if j < 0 {
		return nil, false
	}
	out := make([]float64, len(m.Values))
	for i, row := range m.Values {
		out[i] = row[j]
	}
	return out, true
}

// AssetSeries returns the closes column-major: out[col][row].
func (m *Matrix) AssetSeries() [][]float64 {
	out := make([][]float64, len(m.Tickers))
	for j := range m.Tickers {
		col := make([]float64, len(m.Values))
		for i, row := range m.Values {
			col[i] = row[j]
		}
		out[j] = col
	}
	return out
}

// Slice returns rows [from, to) as an independent Matrix.
func (m *Matrix) Slice(from, to int) *Matrix {
	if from < 0 {
		from = 0
	}
	if to > m.Len() {
		to = m.Len()
	}
	if to < from {
		to = from
	}
	out := &Matrix{
		Dates:   append([]time.Time(nil), m.Dates[from:to]...),
		Tickers: append([]string(nil), m.Tickers...),
		Values:  make([][]float64, 0, to-from),
		Market:  append([]float64(nil), m.Market[from:to]...),
	}
	for _, row := range m.Values[from:to] {
		out.Values = append(out.Values, append([]float64(nil), row...))
	}
	if m.RiskFree != nil {
		out.RiskFree = append([]float64(nil), m.RiskFree[from:to]...)
	}
	return out
}

// IndexAtOrBefore returns the last row dated on or before t, or -1.
func (m *Matrix) IndexAtOrBefore(t time.Time) int {
	i := sort.Search(len(m.Dates), func(i int) bool { return m.Dates[i].After(t) })
	return i - 1
}

// IndexNearest returns the row whose date is closest to t. Ties resolve to the
// earlier row. Returns -1 for an empty matrix.
func (m *Matrix) IndexNearest(t time.Time) int {
	n := len(m.Dates)
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return !m.Dates[i].Before(t) })
	switch {
	case i == 0:
		return 0
	case i == n:
		return n - 1
	}
	if t.Sub(m.Dates[i-1]) <= m.Dates[i].Sub(t) {
		return i - 1
	}
	return i
}

// LastDate returns the date of the final row, zero time when empty.
func (m *Matrix) LastDate() time.Time {
	if len(m.Dates) == 0 {
		return time.Time{}
	}
	return m.Dates[len(m.Dates)-1]
}

// Version is a content hash identifying this exact matrix.
func (m *Matrix) Version() string {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, t := range m.Tickers {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}
	for i, d := range m.Dates {
		binary.LittleEndian.PutUint64(buf, uint64(d.Unix()))
		h.Write(buf)
		for _, v := range m.Values[i] {
			writeFloat(v)
		}
		writeFloat(m.Market[i])
		if m.RiskFree != nil {
			writeFloat(m.RiskFree[i])
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
