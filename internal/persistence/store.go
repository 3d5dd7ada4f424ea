// Package persistence mirrors the forecast ledger into Postgres for
// dashboards that query SQL instead of the CSV artifact. The mirror is
// optional and best-effort: the CSV ledger remains the source of truth.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/straitwatch/sortiecast/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS forecast_ledger (
	day                DATE PRIMARY KEY,
	day_of_week        TEXT,
	predicted_sorties  DOUBLE PRECISION,
	lower_bound        DOUBLE PRECISION,
	upper_bound        DOUBLE PRECISION,
	high_probability   DOUBLE PRECISION,
	risk_level         TEXT,
	is_holiday         BOOLEAN NOT NULL DEFAULT FALSE,
	day_offset         INTEGER,
	weather_adjustment DOUBLE PRECISION,
	actual_sorties     DOUBLE PRECISION,
	prediction_error   DOUBLE PRECISION,
	model_version      TEXT,
	cv_mae             DOUBLE PRECISION,
	run_id             TEXT,
	status             TEXT,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertQuery = `
INSERT INTO forecast_ledger
	(day, day_of_week, predicted_sorties, lower_bound, upper_bound,
	 high_probability, risk_level, is_holiday, day_offset, weather_adjustment,
	 actual_sorties, prediction_error, model_version, cv_mae, run_id, status,
	 updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
ON CONFLICT (day) DO UPDATE SET
	day_of_week        = EXCLUDED.day_of_week,
	predicted_sorties  = EXCLUDED.predicted_sorties,
	lower_bound        = EXCLUDED.lower_bound,
	upper_bound        = EXCLUDED.upper_bound,
	high_probability   = EXCLUDED.high_probability,
	risk_level         = EXCLUDED.risk_level,
	is_holiday         = EXCLUDED.is_holiday,
	day_offset         = EXCLUDED.day_offset,
	weather_adjustment = EXCLUDED.weather_adjustment,
	actual_sorties     = EXCLUDED.actual_sorties,
	prediction_error   = EXCLUDED.prediction_error,
	model_version      = EXCLUDED.model_version,
	cv_mae             = EXCLUDED.cv_mae,
	run_id             = EXCLUDED.run_id,
	status             = EXCLUDED.status,
	updated_at         = NOW()`

// LedgerStore is the Postgres ledger mirror.
type LedgerStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects and ensures the ledger table exists.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*LedgerStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	store := &LedgerStore{db: db, timeout: timeout}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *LedgerStore) ensureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure forecast_ledger schema: %w", err)
	}
	return nil
}

// UpsertEntries mirrors ledger rows keyed by day. Safe to re-run with the
// same batch.
func (s *LedgerStore) UpsertEntries(ctx context.Context, entries []ledger.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger mirror tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if e.Status == "FAILED" {
			continue
		}
		_, err := tx.ExecContext(ctx, upsertQuery,
			e.Date, e.DayOfWeek, e.Predicted, e.Lower, e.Upper,
			e.HighProbPct, e.Risk, e.Holiday == 1, e.DayOffset, e.WeatherFactor,
			e.Actual, e.PredError, e.ModelVersion, e.CVMAE, e.RunID, e.Status)
		if err != nil {
			return fmt.Errorf("failed to upsert ledger row %s: %w",
				e.Date.Format("2006-01-02"), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger mirror: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *LedgerStore) Close() error { return s.db.Close() }
