package prices

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/sectorbl/internal/config"
	"github.com/aristath/sectorbl/internal/engine"
)

// Table is raw, possibly gappy store output: the union of all dates and one
// column per symbol with NaN where the symbol has no close.
type Table struct {
	Dates   []time.Time
	Columns map[string][]float64
}

// NewTable builds a Table from per-symbol observations keyed by date.
func NewTable(series map[string]map[time.Time]float64) *Table {
	dateSet := make(map[time.Time]struct{})
	for _, points := range series {
		for d := range points {
			dateSet[d] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	t := &Table{Dates: dates, Columns: make(map[string][]float64, len(series))}
	for symbol, points := range series {
		col := make([]float64, len(dates))
		for i, d := range dates {
			if v, ok := points[d]; ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		t.Columns[symbol] = col
	}
	return t
}

// Prepare turns a raw table into an aligned Matrix:
// proxies fill gaps of their primary (rescaled at the first overlap),
// rows missing any asset or the market are dropped, and the risk-free yield
// is forward-filled.
func Prepare(t *Table, cfg config.Engine) (*Matrix, error) {
	if t == nil || len(t.Dates) == 0 {
		return nil, engine.DataInsufficient("no price data loaded")
	}
	n := len(t.Dates)

	cols := make(map[string][]float64, len(cfg.Tickers))
	for _, ticker := range cfg.Tickers {
		col := cloneOrNaN(t.Columns[ticker], n)
		cols[ticker] = col
	}
	for _, fill := range cfg.ProxyFills {
		primary, ok := cols[fill.Primary]
		if !ok {
			continue
		}
		proxy, ok := t.Columns[fill.Proxy]
		if !ok {
			continue
		}
		fillFromProxy(primary, proxy)
	}

	market := t.Columns[cfg.MarketSymbol]
	if market == nil {
		return nil, engine.DataInsufficient("market series %s missing", cfg.MarketSymbol)
	}

	var riskFree []float64
	if rf, ok := t.Columns[cfg.RiskFreeSymbol]; ok && cfg.RiskFreeSymbol != "" {
		riskFree = forwardFill(rf)
	}

	m := &Matrix{Tickers: append([]string(nil), cfg.Tickers...)}
	if riskFree != nil {
		m.RiskFree = []float64{}
	}
	for i, d := range t.Dates {
		if !validPrice(market[i]) {
			continue
		}
		row := make([]float64, len(cfg.Tickers))
		complete := true
		for j, ticker := range cfg.Tickers {
			v := cols[ticker][i]
			if !validPrice(v) {
				complete = false
				break
			}
			row[j] = v
		}
		if !complete {
			continue
		}
		m.Dates = append(m.Dates, d)
		m.Values = append(m.Values, row)
		m.Market = append(m.Market, market[i])
		if riskFree != nil {
			m.RiskFree = append(m.RiskFree, riskFree[i])
		}
	}

	if m.Len() < 2 {
		return nil, engine.DataInsufficient("only %d complete rows after alignment", m.Len())
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func cloneOrNaN(col []float64, n int) []float64 {
	out := make([]float64, n)
	if col == nil {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	copy(out, col)
	return out
}

// fillFromProxy fills missing primary closes from the proxy, scaled so the two
// series agree on their first common date. Without an overlap the proxy is used as is.
func fillFromProxy(primary, proxy []float64) {
	scale := 1.0
	for i := range primary {
		if validPrice(primary[i]) && validPrice(proxy[i]) {
			scale = primary[i] / proxy[i]
			break
		}
	}
	for i := range primary {
		if !validPrice(primary[i]) && validPrice(proxy[i]) {
			primary[i] = proxy[i] * scale
		}
	}
}

func forwardFill(col []float64) []float64 {
	out := make([]float64, len(col))
	last := math.NaN()
	for i, v := range col {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			last = v
		}
		out[i] = last
	}
	return out
}
