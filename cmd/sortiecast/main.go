package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/straitwatch/sortiecast/internal/config"
	"github.com/straitwatch/sortiecast/internal/metrics"
	"github.com/straitwatch/sortiecast/internal/pipeline"
	"github.com/straitwatch/sortiecast/internal/validate"
)

const (
	appName = "sortiecast"
	version = "v2.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Seven-day military aircraft sortie forecaster",
		Version: version,
		Long: `sortiecast trains a quantile gradient boosting ensemble on the daily
sortie series and publishes a recursive 7-day forecast with uncertainty
bands, high-activity risk levels and a walk-forward validation score.`,
	}

	var (
		cfgPath     string
		paths       pipeline.Paths
		dsn         string
		metricsAddr string
		seed        int64
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline and update the forecast ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath, cmd.Flags().Changed("seed"), seed)
			if err != nil {
				return err
			}
			collector := metrics.NewCollector()
			if metricsAddr != "" {
				collector.Serve(metricsAddr)
			}
			p := pipeline.New(cfg, paths, collector, dsn, log.Logger)
			res, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			printForecast(res)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Run walk-forward validation only",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath, cmd.Flags().Changed("seed"), seed)
			if err != nil {
				return err
			}
			p := pipeline.New(cfg, paths, nil, "", log.Logger)
			report, err := p.Validate(cmd.Context())
			if err != nil {
				return err
			}
			printValidation(report)
			return nil
		},
	}

	for _, cmd := range []*cobra.Command{runCmd, validateCmd} {
		cmd.Flags().StringVar(&cfgPath, "config", "", "YAML config file, defaults apply when omitted")
		cmd.Flags().StringVar(&paths.Series, "series", "data/sorties.csv", "Primary sortie series CSV")
		cmd.Flags().StringVar(&paths.Events, "events", "", "Political statement table CSV, optional")
		cmd.Flags().StringVar(&paths.News, "news", "", "Classified news table CSV, optional")
		cmd.Flags().StringVar(&paths.Weather, "weather", "", "Weather risk table CSV, optional")
		cmd.Flags().StringVar(&paths.Holidays, "holidays", "", "Holiday date file, builtin table when omitted")
		cmd.Flags().StringVar(&paths.TargetColumn, "target-column", pipeline.DefaultTargetColumn, "Sortie count column name")
		cmd.Flags().Int64Var(&seed, "seed", 42, "Deterministic training seed")
	}
	runCmd.Flags().StringVar(&paths.Output, "output", "data/forecast_ledger.csv", "Forecast ledger CSV")
	runCmd.Flags().StringVar(&dsn, "db-dsn", "", "Postgres DSN for the ledger mirror, optional")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus listen address, e.g. :9090")

	rootCmd.AddCommand(runCmd, validateCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func loadConfig(path string, seedSet bool, seed int64) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if seedSet {
		cfg.Seed = seed
	}
	return cfg, nil
}

func printForecast(res *pipeline.Result) {
	fmt.Printf("run %s: %d forecast days, ledger rows %d\n", res.RunID, len(res.Rows), res.LedgerRows)
	for _, row := range res.Rows {
		fmt.Printf("  %s  day+%d  %6.1f  [%5.1f, %5.1f]  p(high)=%.2f  %s\n",
			row.Date.Format("2006-01-02"), row.DayOffset, row.Predicted,
			row.Lower, row.Upper, row.HighProbability, row.Risk)
	}
	if res.Validation.OverallMAE != validate.SentinelScore {
		fmt.Printf("walk-forward MAE: %.2f over %d folds\n",
			res.Validation.OverallMAE, res.Validation.FoldsValid)
	}
}

func printValidation(report *validate.Report) {
	fmt.Printf("embargo %d days, folds %d/%d valid\n",
		report.EmbargoDays, report.FoldsValid, report.FoldsAttempted)
	for i, mae := range report.PerHorizonMAE {
		if math.IsNaN(mae) {
			fmt.Printf("  day+%d: no scored folds\n", i+1)
			continue
		}
		fmt.Printf("  day+%d: MAE %.2f\n", i+1, mae)
	}
	if report.OverallMAE == validate.SentinelScore {
		fmt.Println("overall: sentinel (no fold validated)")
	} else {
		fmt.Printf("overall MAE: %.2f\n", report.OverallMAE)
	}
}
