// Package pipeline wires the full forecasting run: load, walk-forward
// validation, training, the recursive forecast and the ledger merge.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/straitwatch/sortiecast/internal/calendar"
	"github.com/straitwatch/sortiecast/internal/config"
	"github.com/straitwatch/sortiecast/internal/dataset"
	"github.com/straitwatch/sortiecast/internal/features"
	"github.com/straitwatch/sortiecast/internal/forecast"
	"github.com/straitwatch/sortiecast/internal/ledger"
	"github.com/straitwatch/sortiecast/internal/metrics"
	"github.com/straitwatch/sortiecast/internal/model"
	"github.com/straitwatch/sortiecast/internal/persistence"
	"github.com/straitwatch/sortiecast/internal/validate"
)

// ModelVersion is stamped onto every ledger row a run produces.
const ModelVersion = "2.3.0"

// DefaultTargetColumn is the sortie count column in the published series.
const DefaultTargetColumn = "pla_aircraft_sorties"

const dbTimeout = 10 * time.Second

// Paths names the run's input and output files. Only Series and Output are
// required; the side-channel tables degrade to empty when absent.
type Paths struct {
	Series       string
	Events       string
	News         string
	Weather      string
	Holidays     string
	Output       string
	TargetColumn string
}

// Pipeline owns one run's configuration and collaborators.
type Pipeline struct {
	cfg       *config.Config
	paths     Paths
	collector *metrics.Collector
	dsn       string
	logger    zerolog.Logger
}

// New builds a pipeline. collector may be nil when metrics are disabled;
// dsn empty disables the database mirror.
func New(cfg *config.Config, paths Paths, collector *metrics.Collector, dsn string, logger zerolog.Logger) *Pipeline {
	if paths.TargetColumn == "" {
		paths.TargetColumn = DefaultTargetColumn
	}
	return &Pipeline{
		cfg:       cfg,
		paths:     paths,
		collector: collector,
		dsn:       dsn,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Result summarizes a completed run for the CLI.
type Result struct {
	RunID      string
	Rows       []forecast.Row
	Validation validate.Report
	LedgerRows int
}

// Run executes the full pipeline. Load failures are fatal: a FAILED row is
// written to the output ledger and the error is returned. Validation never
// blocks the forecast; its score degrades to the sentinel.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	started := time.Now()
	logger := p.logger.With().Str("run_id", runID).Logger()

	res, err := p.run(ctx, runID, logger)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		if werr := ledger.WriteFailure(p.paths.Output, runID, err); werr != nil {
			logger.Error().Err(werr).Msg("could not write failure artifact")
		}
	}
	if p.collector != nil {
		p.collector.ObserveRun(outcome, time.Since(started))
	}
	logger.Info().Str("outcome", outcome).Dur("elapsed", time.Since(started)).Msg("run finished")
	return res, err
}

func (p *Pipeline) run(ctx context.Context, runID string, logger zerolog.Logger) (*Result, error) {
	series, engineer, err := p.loadInputs(logger)
	if err != nil {
		return nil, err
	}

	report := validate.New(p.cfg, engineer, logger).Run(series)
	logger.Info().Int("folds_valid", report.FoldsValid).Float64("overall_mae", report.OverallMAE).
		Msg("walk-forward validation done")
	p.publishValidation(report)

	samples := engineer.BuildTraining(series)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no trainable rows after feature lookback of %d days", features.MaxLookback())
	}
	tc := model.TrainConfigFrom(p.cfg)
	tc.ApplyBoost = true
	models, err := model.Train(samples, tc, logger)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	weather := dataset.LoadWeather(p.paths.Weather)
	fc := forecast.New(engineer, models, weather, p.cfg.WeatherCities,
		p.cfg.Horizon, p.cfg.WindowSize, p.cfg.BandGrowth, logger)
	rows, err := fc.Forecast(series)
	if err != nil {
		return nil, fmt.Errorf("forecast failed: %w", err)
	}
	if p.collector != nil {
		for _, row := range rows {
			p.collector.SetForecast(row.DayOffset, row.Predicted)
		}
	}

	// The dashboard expects a blank cv_mae when validation produced nothing,
	// not the sentinel value.
	var cvMAE *float64
	if report.OverallMAE != validate.SentinelScore {
		v := report.OverallMAE
		cvMAE = &v
	}

	led := ledger.Load(p.paths.Output)
	led.MergeForecast(rows, ledger.Meta{
		GeneratedAt:  time.Now().UTC(),
		ModelVersion: ModelVersion,
		DataLatest:   series.LastDate(),
		CVMAE:        cvMAE,
		RunID:        runID,
	})
	led.Backfill(series)
	if err := led.Write(); err != nil {
		return nil, fmt.Errorf("ledger write failed: %w", err)
	}
	logger.Info().Int("rows", led.Len()).Str("path", p.paths.Output).Msg("ledger written")

	p.mirrorLedger(ctx, led, logger)

	return &Result{
		RunID:      runID,
		Rows:       rows,
		Validation: report,
		LedgerRows: led.Len(),
	}, nil
}

// Validate runs only the walk-forward pass, for the validate subcommand.
func (p *Pipeline) Validate(ctx context.Context) (*validate.Report, error) {
	series, engineer, err := p.loadInputs(p.logger)
	if err != nil {
		return nil, err
	}
	report := validate.New(p.cfg, engineer, p.logger).Run(series)
	p.publishValidation(report)
	return &report, nil
}

// loadInputs reads the primary series and the side-channel tables, then
// builds the shared feature engineer. Only the series is mandatory.
func (p *Pipeline) loadInputs(logger zerolog.Logger) (dataset.Series, *features.Engineer, error) {
	series, err := dataset.LoadSeries(p.paths.Series, p.paths.TargetColumn, p.cfg.MinSamples)
	if err != nil {
		return nil, nil, fmt.Errorf("series load failed: %w", err)
	}
	logger.Info().Int("rows", len(series)).
		Str("latest", series.LastDate().Format("2006-01-02")).Msg("series loaded")

	cal := calendar.Builtin()
	if p.paths.Holidays != "" {
		cal = calendar.Load(p.paths.Holidays)
	}
	events := dataset.LoadEvents(p.paths.Events, p.cfg.EventTextColumn)
	news := dataset.LoadNews(p.paths.News)

	engineer := features.NewEngineer(series, cal, events, news, p.cfg.StatementKeywords)
	return series, engineer, nil
}

func (p *Pipeline) publishValidation(report validate.Report) {
	if p.collector == nil {
		return
	}
	for i, mae := range report.PerHorizonMAE {
		if !math.IsNaN(mae) {
			p.collector.SetCVMAE(i+1, mae)
		}
	}
}

// mirrorLedger upserts the ledger into Postgres when a DSN is configured.
// Mirror failures are logged but never fail the run; the CSV is the source
// of truth.
func (p *Pipeline) mirrorLedger(ctx context.Context, led *ledger.Ledger, logger zerolog.Logger) {
	if p.dsn == "" {
		return
	}
	store, err := persistence.Open(ctx, p.dsn, dbTimeout)
	if err != nil {
		logger.Warn().Err(err).Msg("ledger mirror unavailable")
		return
	}
	defer store.Close()
	if err := store.UpsertEntries(ctx, led.Entries()); err != nil {
		logger.Warn().Err(err).Msg("ledger mirror upsert failed")
		return
	}
	logger.Info().Int("rows", led.Len()).Msg("ledger mirrored to database")
}
