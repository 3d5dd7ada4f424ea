package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straitwatch/sortiecast/internal/dataset"
	"github.com/straitwatch/sortiecast/internal/forecast"
)

func forecastBatch(start time.Time, n int) []forecast.Row {
	rows := make([]forecast.Row, n)
	for i := range rows {
		rows[i] = forecast.Row{
			Date:            start.AddDate(0, 0, i+1),
			DayOffset:       i + 1,
			Predicted:       30 + float64(i),
			Lower:           20 + float64(i),
			Upper:           45 + float64(i),
			HighProbability: 0.42,
			Risk:            forecast.RiskMediumHigh,
			WeatherFactor:   1.0,
		}
	}
	return rows
}

func testMeta(runID string) Meta {
	return Meta{
		GeneratedAt:  time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC),
		ModelVersion: "2.3.0",
		DataLatest:   time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		CVMAE:        optOf(6.4),
		RunID:        runID,
	}
}

func TestMergeForecast_MissingCVMAEStaysBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	start := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	meta := testMeta("run-1")
	meta.CVMAE = nil // validation had too little history to score
	l := Load(path)
	l.MergeForecast(forecastBatch(start, 2), meta)
	for _, e := range l.Entries() {
		assert.Nil(t, e.CVMAE)
	}
	require.NoError(t, l.Write())

	reloaded := Load(path)
	for _, e := range reloaded.Entries() {
		assert.Nil(t, e.CVMAE, "cv_mae column must round-trip as empty")
	}
}

func TestMergeForecast_UpsertsByDate(t *testing.T) {
	start := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	l := Load(filepath.Join(t.TempDir(), "ledger.csv"))

	l.MergeForecast(forecastBatch(start, 7), testMeta("run-1"))
	require.Equal(t, 7, l.Len())

	// A second run over overlapping dates replaces rather than appends.
	l.MergeForecast(forecastBatch(start.AddDate(0, 0, 3), 7), testMeta("run-2"))
	assert.Equal(t, 10, l.Len())

	entries := l.Entries()
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, "run-2", entries[9].RunID)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].Date.Before(entries[i].Date))
	}
}

func TestMergeForecast_Idempotent(t *testing.T) {
	start := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	l := Load(filepath.Join(t.TempDir(), "ledger.csv"))

	batch := forecastBatch(start, 7)
	meta := testMeta("run-1")
	l.MergeForecast(batch, meta)
	first := l.Entries()
	l.MergeForecast(batch, meta)
	assert.Equal(t, first, l.Entries())
}

func TestMergeForecast_ProbabilityStoredAsPercent(t *testing.T) {
	start := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	l := Load(filepath.Join(t.TempDir(), "ledger.csv"))
	l.MergeForecast(forecastBatch(start, 1), testMeta("run-1"))

	e := l.Entries()[0]
	require.NotNil(t, e.HighProbPct)
	assert.Equal(t, 42.0, *e.HighProbPct)
	assert.Equal(t, "ok", e.Status)
	assert.Equal(t, "Saturday", e.DayOfWeek)
}

func TestBackfill_FillsActualsAndError(t *testing.T) {
	start := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	l := Load(filepath.Join(t.TempDir(), "ledger.csv"))
	l.MergeForecast(forecastBatch(start, 3), testMeta("run-1"))

	series := dataset.Series{
		{Date: start.AddDate(0, 0, 1), Sorties: 25},
		{Date: start.AddDate(0, 0, 2), Sorties: 36.5},
	}
	l.Backfill(series)

	entries := l.Entries()
	require.NotNil(t, entries[0].Actual)
	assert.Equal(t, 25.0, *entries[0].Actual)
	require.NotNil(t, entries[0].PredError) // predicted 30, actual 25
	assert.Equal(t, -5.0, *entries[0].PredError)
	require.NotNil(t, entries[1].PredError) // predicted 31, actual 36.5
	assert.Equal(t, 5.5, *entries[1].PredError)
	assert.Nil(t, entries[2].Actual, "unobserved day stays blank")

	// Re-running with the same series changes nothing.
	l.Backfill(series)
	assert.Equal(t, entries, l.Entries())
}

func TestWriteLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	start := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	l := Load(path)
	l.MergeForecast(forecastBatch(start, 7), testMeta("run-1"))
	l.Backfill(dataset.Series{{Date: start.AddDate(0, 0, 1), Sorties: 28}})
	require.NoError(t, l.Write())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, raw[:3], "dashboard expects a UTF-8 BOM")

	reloaded := Load(path)
	assert.Equal(t, l.Entries(), reloaded.Entries())
}

func TestLoad_MissingFileStartsEmpty(t *testing.T) {
	l := Load(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Zero(t, l.Len())
}

func TestWriteFailure_ProducesFailedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, WriteFailure(path, "run-9", errors.New("series load failed")))

	l := Load(path)
	require.Equal(t, 1, l.Len())
	e := l.Entries()[0]
	assert.Equal(t, "FAILED", e.Status)
	assert.Equal(t, "ERROR", e.Risk)
	assert.Equal(t, "run-9", e.RunID)
	assert.Equal(t, "series load failed", e.ErrorMsg)
	assert.Nil(t, e.Predicted)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 31.4, round1(31.44))
	assert.Equal(t, 31.5, round1(31.46))
	assert.Equal(t, -5.5, round1(-5.45))
	assert.Equal(t, 0.0, round1(0.04))
}
