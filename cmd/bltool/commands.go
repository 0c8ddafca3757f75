package main

import (
	"fmt"
	"os"

	"github.com/aristath/sectorbl/internal/modules/backtest"
	"github.com/aristath/sectorbl/internal/modules/simulation"
	"github.com/aristath/sectorbl/internal/reporting"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import daily closes from a wide CSV into the prices database",
		RunE:  runImport,
	}
	cmd.Flags().String("csv", "", "CSV file with a date column followed by one column per symbol")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("csv")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	c, err := openContainer(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.Store.ImportCSV(cmd.Context(), f)
	if err != nil {
		return fmt.Errorf("import failed after %d closes: %w", n, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d closes from %s\n", n, path)
	return nil
}

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Recommend weights for one date under optional manual views",
		RunE:  runScenario,
	}
	cmd.Flags().String("date", "", "As-of date (YYYY-MM-DD), defaults to the last loaded date")
	cmd.Flags().StringArray("view", nil, "Manual view TICKER:VALUE[:CONFIDENCE], repeatable")
	return cmd
}

func runScenario(cmd *cobra.Command, args []string) error {
	date, _ := cmd.Flags().GetString("date")
	viewSpecs, _ := cmd.Flags().GetStringArray("view")

	manual, err := parseViews(viewSpecs)
	if err != nil {
		return err
	}

	c, err := openContainer(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer c.Close()

	req := backtest.ScenarioRequest{Views: manual}
	if date != "" {
		req.Date = &date
	}
	res, err := c.Service.Scenario(cmd.Context(), req)
	if err != nil {
		return err
	}
	reporting.RenderScenario(cmd.OutOrStdout(), res)
	return nil
}

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run the walk-forward backtest against the benchmark",
		RunE:  runBacktest,
	}
	cmd.Flags().String("start", "", "First date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().StringArray("view", nil, "Manual view TICKER:VALUE[:CONFIDENCE], repeatable")
	cmd.Flags().String("xlsx", "", "Also write the report workbook to this file")
	cmd.Flags().Bool("archive", false, "Upload the report workbook to the configured bucket")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func runBacktest(cmd *cobra.Command, args []string) error {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	viewSpecs, _ := cmd.Flags().GetStringArray("view")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")
	archive, _ := cmd.Flags().GetBool("archive")

	manual, err := parseViews(viewSpecs)
	if err != nil {
		return err
	}

	c, err := openContainer(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer c.Close()

	if archive && c.Archiver == nil {
		return fmt.Errorf("--archive needs REPORT_S3_BUCKET to be set")
	}

	progress := backtest.WithProgress(func(ev backtest.RebalanceEvent) {
		log.Debug().Int("index", ev.Index).Str("date", ev.Date).Bool("skipped", ev.Skipped).Float64("turnover", ev.Turnover).Msg("Rebalance")
	})
	res, cached, err := c.Service.Backtest(cmd.Context(), backtest.BacktestRequest{
		Start: start,
		End:   end,
		Views: manual,
	}, progress)
	if err != nil {
		return err
	}
	if cached {
		log.Info().Str("run_id", res.RunID).Msg("Served from result cache")
	}

	reporting.RenderTables(cmd.OutOrStdout(), res)

	if xlsxPath != "" {
		if err := writeWorkbook(xlsxPath, res); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Workbook written to %s\n", xlsxPath)
	}

	if archive {
		key, err := reporting.ArchiveBacktest(cmd.Context(), c.Archiver, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report archived as %s\n", key)
	}
	return nil
}

func writeWorkbook(path string, res *backtest.BacktestResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := reporting.WriteXLSX(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newMonteCarloCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "Project value percentiles under geometric Brownian motion",
		RunE:  runMonteCarlo,
	}
	cmd.Flags().Float64("mu", 0, "Annualized drift")
	cmd.Flags().Float64("sigma", 0, "Annualized volatility")
	cmd.Flags().Int("days", 0, "Trading days to simulate (default 252)")
	cmd.Flags().Int("paths", 0, "Number of paths (default 5000)")
	cmd.Flags().Uint64("seed", 0, "Random seed, drawn when not set")
	_ = cmd.MarkFlagRequired("mu")
	_ = cmd.MarkFlagRequired("sigma")
	return cmd
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	params := simulation.Params{}
	params.Mu, _ = cmd.Flags().GetFloat64("mu")
	params.Sigma, _ = cmd.Flags().GetFloat64("sigma")
	params.Days, _ = cmd.Flags().GetInt("days")
	params.Paths, _ = cmd.Flags().GetInt("paths")
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		params.Seed = &seed
	}

	res, err := simulation.Simulate(params)
	if err != nil {
		return err
	}
	reporting.RenderMonteCarlo(cmd.OutOrStdout(), res)
	return nil
}
