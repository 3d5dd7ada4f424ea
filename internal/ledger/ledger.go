// Package ledger maintains the forecast history CSV consumed by the
// downstream dashboard: forecast rows are upserted by date, and realized
// observations back-fill actuals and errors once they arrive.
package ledger

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/straitwatch/sortiecast/internal/dataset"
	"github.com/straitwatch/sortiecast/internal/forecast"
)

const dateLayout = "2006-01-02"

var header = []string{
	"date", "day_of_week", "predicted_sorties", "lower_bound", "upper_bound",
	"high_probability", "risk_level", "is_holiday", "day_offset",
	"weather_adjustment", "actual_sorties", "prediction_error",
	"generated_at", "model_version", "data_latest_date", "cv_mae", "run_id",
	"status", "error",
}

// Entry is one ledger row. Optional numeric fields are pointers so absent
// values round-trip as blanks.
type Entry struct {
	Date          time.Time
	DayOfWeek     string
	Predicted     *float64
	Lower         *float64
	Upper         *float64
	HighProbPct   *float64 // percent, matching the published history format
	Risk          string
	Holiday       int
	DayOffset     int
	WeatherFactor *float64
	Actual        *float64
	PredError     *float64
	GeneratedAt   string
	ModelVersion  string
	DataLatest    string
	CVMAE         *float64
	RunID         string
	Status        string
	ErrorMsg      string
}

// Meta is stamped onto every row of a forecast batch.
type Meta struct {
	GeneratedAt  time.Time
	ModelVersion string
	DataLatest   time.Time
	CVMAE        *float64 // nil when validation degraded to the sentinel
	RunID        string
}

// Ledger is the date-keyed forecast history. Mutated only through merge
// operations; Write persists it sorted by date.
type Ledger struct {
	path    string
	entries map[string]*Entry
}

// Load reads an existing ledger; a missing or unreadable file starts an
// empty one rather than failing, because the ledger is an output artifact.
func Load(path string) *Ledger {
	l := &Ledger{path: path, entries: make(map[string]*Entry)}

	f, err := os.Open(path)
	if err != nil {
		return l
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil || len(records) < 2 {
		return l
	}

	idx := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		idx[trimBOM(col)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	for _, rec := range records[1:] {
		date, err := time.Parse(dateLayout, field(rec, "date"))
		if err != nil {
			continue
		}
		e := &Entry{
			Date:          date,
			DayOfWeek:     field(rec, "day_of_week"),
			Predicted:     parseOpt(field(rec, "predicted_sorties")),
			Lower:         parseOpt(field(rec, "lower_bound")),
			Upper:         parseOpt(field(rec, "upper_bound")),
			HighProbPct:   parseOpt(field(rec, "high_probability")),
			Risk:          field(rec, "risk_level"),
			WeatherFactor: parseOpt(field(rec, "weather_adjustment")),
			Actual:        parseOpt(field(rec, "actual_sorties")),
			PredError:     parseOpt(field(rec, "prediction_error")),
			GeneratedAt:   field(rec, "generated_at"),
			ModelVersion:  field(rec, "model_version"),
			DataLatest:    field(rec, "data_latest_date"),
			CVMAE:         parseOpt(field(rec, "cv_mae")),
			RunID:         field(rec, "run_id"),
			Status:        field(rec, "status"),
			ErrorMsg:      field(rec, "error"),
		}
		if v, err := strconv.Atoi(field(rec, "is_holiday")); err == nil {
			e.Holiday = v
		}
		if v, err := strconv.Atoi(field(rec, "day_offset")); err == nil {
			e.DayOffset = v
		}
		l.entries[date.Format(dateLayout)] = e
	}
	return l
}

// MergeForecast upserts a forecast batch: any existing row for an
// overlapping date is replaced. Applying the same batch twice yields the
// same ledger state.
func (l *Ledger) MergeForecast(rows []forecast.Row, meta Meta) {
	for _, row := range rows {
		holiday := 0
		if row.Holiday {
			holiday = 1
		}
		e := &Entry{
			Date:          row.Date,
			DayOfWeek:     row.Date.Weekday().String(),
			Predicted:     optOf(round1(row.Predicted)),
			Lower:         optOf(round1(row.Lower)),
			Upper:         optOf(round1(row.Upper)),
			HighProbPct:   optOf(round1(row.HighProbability * 100)),
			Risk:          string(row.Risk),
			Holiday:       holiday,
			DayOffset:     row.DayOffset,
			WeatherFactor: optOf(row.WeatherFactor),
			GeneratedAt:   meta.GeneratedAt.UTC().Format("2006-01-02 15:04:05"),
			ModelVersion:  meta.ModelVersion,
			DataLatest:    meta.DataLatest.Format(dateLayout),
			CVMAE:         meta.CVMAE,
			RunID:         meta.RunID,
			Status:        "ok",
		}
		l.entries[row.Date.Format(dateLayout)] = e
	}
}

// Backfill fills actual_sorties and prediction_error for every ledger date
// whose observation has since arrived. Idempotent.
func (l *Ledger) Backfill(series dataset.Series) {
	actuals := make(map[string]float64, len(series))
	for _, obs := range series {
		actuals[obs.Date.Format(dateLayout)] = obs.Sorties
	}
	filled := 0
	for key, e := range l.entries {
		actual, ok := actuals[key]
		if !ok {
			continue
		}
		e.Actual = optOf(actual)
		if e.Predicted != nil {
			e.PredError = optOf(round1(actual - *e.Predicted))
		}
		filled++
	}
	log.Debug().Int("rows", filled).Msg("ledger actuals backfilled")
}

// Len returns the number of ledger rows.
func (l *Ledger) Len() int { return len(l.entries) }

// Entries returns the rows sorted by date.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Write persists the ledger as BOM-tagged UTF-8 CSV, sorted by date.
func (l *Ledger) Write() error {
	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range l.Entries() {
		rec := []string{
			e.Date.Format(dateLayout),
			e.DayOfWeek,
			formatOpt(e.Predicted),
			formatOpt(e.Lower),
			formatOpt(e.Upper),
			formatOpt(e.HighProbPct),
			e.Risk,
			strconv.Itoa(e.Holiday),
			strconv.Itoa(e.DayOffset),
			formatOpt(e.WeatherFactor),
			formatOpt(e.Actual),
			formatOpt(e.PredError),
			e.GeneratedAt,
			e.ModelVersion,
			e.DataLatest,
			formatOpt(e.CVMAE),
			e.RunID,
			e.Status,
			e.ErrorMsg,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	log.Info().Str("path", l.path).Int("rows", l.Len()).Msg("ledger written")
	return nil
}

// WriteFailure writes a minimal schema-compatible FAILED row so automated
// consumers never find a missing or malformed file after a fatal error.
func WriteFailure(path, runID string, failure error) error {
	l := &Ledger{path: path, entries: map[string]*Entry{
		"failed": {
			Date:     time.Now().UTC().Truncate(24 * time.Hour),
			Risk:     "ERROR",
			RunID:    runID,
			Status:   "FAILED",
			ErrorMsg: failure.Error(),
		},
	}}
	return l.Write()
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}

func parseOpt(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func formatOpt(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optOf(v float64) *float64 { return &v }

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
