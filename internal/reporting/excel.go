// Package reporting renders backtest results as spreadsheets and console
// tables, and archives reports to object storage.
package reporting

import (
	"fmt"
	"io"
	"sort"

	"github.com/aristath/sectorbl/internal/modules/backtest"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the MIME type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	summarySheet    = "Summary"
	equitySheet     = "Equity"
	yearlySheet     = "Yearly"
	rebalancesSheet = "Rebalances"
)

type excelStyles struct {
	header  int
	percent int
	money   int
}

// WriteXLSX writes a workbook with Summary, Equity, Yearly and Rebalances sheets.
func WriteXLSX(w io.Writer, res *backtest.BacktestResult) error {
	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("failed to rename default sheet: %w", err)
	}
	for _, name := range []string{equitySheet, yearlySheet, rebalancesSheet} {
		if _, err := fx.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	styles, err := createStyles(fx)
	if err != nil {
		return err
	}

	if err := writeSummary(fx, res, styles); err != nil {
		return err
	}
	if err := writeEquity(fx, res, styles); err != nil {
		return err
	}
	if err := writeYearly(fx, res, styles); err != nil {
		return err
	}
	if err := writeRebalances(fx, res, styles); err != nil {
		return err
	}

	if _, err := fx.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, fmt.Errorf("failed to create header style: %w", err)
	}

	// built-in format 10 is 0.00%
	styles.percent, err = fx.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		return styles, fmt.Errorf("failed to create percent style: %w", err)
	}

	// built-in format 4 is #,##0.00
	styles.money, err = fx.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return styles, fmt.Errorf("failed to create money style: %w", err)
	}
	return styles, nil
}

func writeHeader(fx *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return fx.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(fx *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return fx.SetSheetRow(sheet, cell, &values)
}

func writeSummary(fx *excelize.File, res *backtest.BacktestResult, styles excelStyles) error {
	if err := writeHeader(fx, summarySheet, []string{"Metric", "Portfolio", "SPY"}, styles.header); err != nil {
		return err
	}
	m := res.Metrics
	rows := [][]interface{}{
		{"Total return", m.TotalReturn, m.BenchmarkTotalReturn},
		{"Sharpe", m.Sharpe, m.BenchmarkSharpe},
		{"Max drawdown", m.MaxDrawdown, m.BenchmarkMaxDrawdown},
		{"Volatility", m.Volatility, m.BenchmarkVolatility},
	}
	for i, r := range rows {
		if err := writeRow(fx, summarySheet, i+2, r); err != nil {
			return err
		}
	}
	// Sharpe is a ratio, the rest are fractions
	for _, row := range []int{2, 4, 5} {
		from, _ := excelize.CoordinatesToCellName(2, row)
		to, _ := excelize.CoordinatesToCellName(3, row)
		if err := fx.SetCellStyle(summarySheet, from, to, styles.percent); err != nil {
			return err
		}
	}

	meta := [][]interface{}{
		{"Run ID", res.RunID},
		{"Rebalances", len(res.Rebalances)},
	}
	if len(res.Dates) > 0 {
		meta = append(meta,
			[]interface{}{"First date", res.Dates[0]},
			[]interface{}{"Last date", res.Dates[len(res.Dates)-1]},
		)
	}
	for i, r := range meta {
		if err := writeRow(fx, summarySheet, len(rows)+3+i, r); err != nil {
			return err
		}
	}
	return fx.SetColWidth(summarySheet, "A", "C", 16)
}

func writeEquity(fx *excelize.File, res *backtest.BacktestResult, styles excelStyles) error {
	if err := writeHeader(fx, equitySheet, []string{"Date", "Portfolio", "SPY"}, styles.header); err != nil {
		return err
	}
	for i, d := range res.Dates {
		var port, spy interface{}
		if i < len(res.Portfolio) {
			port = res.Portfolio[i]
		}
		if i < len(res.Benchmark) {
			spy = res.Benchmark[i]
		}
		if err := writeRow(fx, equitySheet, i+2, []interface{}{d, port, spy}); err != nil {
			return err
		}
	}
	if len(res.Dates) > 0 {
		last, _ := excelize.CoordinatesToCellName(3, len(res.Dates)+1)
		if err := fx.SetCellStyle(equitySheet, "B2", last, styles.money); err != nil {
			return err
		}
	}
	return fx.SetColWidth(equitySheet, "A", "C", 14)
}

func writeYearly(fx *excelize.File, res *backtest.BacktestResult, styles excelStyles) error {
	headers := []string{"Year", "Portfolio", "SPY", "Diff", "Top Holdings"}
	if err := writeHeader(fx, yearlySheet, headers, styles.header); err != nil {
		return err
	}
	for i, y := range res.YearlyTable {
		if err := writeRow(fx, yearlySheet, i+2, []interface{}{y.Year, y.Portfolio, y.Benchmark, y.Diff, y.TopHoldings}); err != nil {
			return err
		}
	}
	if n := len(res.YearlyTable); n > 0 {
		last, _ := excelize.CoordinatesToCellName(4, n+1)
		if err := fx.SetCellStyle(yearlySheet, "B2", last, styles.percent); err != nil {
			return err
		}
	}
	if err := fx.SetColWidth(yearlySheet, "A", "D", 12); err != nil {
		return err
	}
	return fx.SetColWidth(yearlySheet, "E", "E", 40)
}

func writeRebalances(fx *excelize.File, res *backtest.BacktestResult, styles excelStyles) error {
	tickers := rebalanceTickers(res.Rebalances)
	headers := []string{"Date", "Active From", "Volatility", "Concentrated", "Delta", "ML Prob", "Views", "Turnover", "Cost", "Skipped", "Fallback"}
	fixed := len(headers)
	headers = append(headers, tickers...)
	if err := writeHeader(fx, rebalancesSheet, headers, styles.header); err != nil {
		return err
	}

	for i, ev := range res.Rebalances {
		var prob interface{}
		if ev.Probability != nil {
			prob = *ev.Probability
		}
		values := []interface{}{
			ev.Date, ev.ActiveFrom, ev.Volatility, ev.Concentrated, ev.Delta, prob,
			ev.Views, ev.Turnover, ev.Cost, ev.Skipped, ev.Fallback,
		}
		for _, t := range tickers {
			values = append(values, ev.Weights[t])
		}
		if err := writeRow(fx, rebalancesSheet, i+2, values); err != nil {
			return err
		}
	}

	if n := len(res.Rebalances); n > 0 && len(tickers) > 0 {
		from, _ := excelize.CoordinatesToCellName(fixed+1, 2)
		to, _ := excelize.CoordinatesToCellName(len(headers), n+1)
		if err := fx.SetCellStyle(rebalancesSheet, from, to, styles.percent); err != nil {
			return err
		}
	}
	return fx.SetColWidth(rebalancesSheet, "A", "B", 12)
}

func rebalanceTickers(events []backtest.RebalanceEvent) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range events {
		for t := range ev.Weights {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}
