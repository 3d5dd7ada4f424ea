package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"
)

// Load-failure classes. These are fatal for the primary series and recoverable
// (degrade to empty) for the side tables.
var (
	ErrUnreadable    = errors.New("source file unreadable")
	ErrMissingColumn = errors.New("required column missing")
	ErrTooFewRows    = errors.New("too few usable rows")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"2006-01-02 15:04:05",
}

// decodeRecords reads a CSV file through an ordered list of encoding probes:
// UTF-8 with BOM, plain UTF-8, then Latin-1. The first probe that yields
// valid UTF-8 and parseable CSV wins; exhausting the list is an explicit
// failure, not an exception fallthrough.
func decodeRecords(path string) ([][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	probes := []struct {
		name   string
		decode func([]byte) ([]byte, bool)
	}{
		{"utf-8-sig", func(b []byte) ([]byte, bool) {
			if !bytes.HasPrefix(b, utf8BOM) {
				return nil, false
			}
			b = bytes.TrimPrefix(b, utf8BOM)
			return b, utf8.Valid(b)
		}},
		{"utf-8", func(b []byte) ([]byte, bool) {
			return b, utf8.Valid(b)
		}},
		{"latin-1", func(b []byte) ([]byte, bool) {
			decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
			return decoded, err == nil
		}},
	}

	for _, probe := range probes {
		decoded, ok := probe.decode(raw)
		if !ok {
			continue
		}
		reader := csv.NewReader(bytes.NewReader(decoded))
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		records, err := reader.ReadAll()
		if err != nil || len(records) == 0 {
			continue
		}
		log.Debug().Str("path", path).Str("encoding", probe.name).Msg("decoded CSV")
		return records, nil
	}
	return nil, fmt.Errorf("%w: %s: no encoding probe produced parseable CSV", ErrUnreadable, path)
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i
		}
	}
	return -1
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// LoadSeries loads the primary sortie series. Rows with unparseable dates or
// targets are dropped; the result is sorted by date and must clear minRows.
func LoadSeries(path, targetColumn string, minRows int) (Series, error) {
	records, err := decodeRecords(path)
	if err != nil {
		return nil, err
	}

	header := records[0]
	dateIdx := columnIndex(header, "date")
	targetIdx := columnIndex(header, targetColumn)
	if dateIdx < 0 {
		return nil, fmt.Errorf("%w: date (available: %s)", ErrMissingColumn, strings.Join(header, ","))
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrMissingColumn, targetColumn, strings.Join(header, ","))
	}
	carrierIdx := columnIndex(header, "carrier")
	if carrierIdx < 0 {
		carrierIdx = columnIndex(header, "航母活動")
	}

	dropped := 0
	byDate := make(map[time.Time]DailyObservation)
	for _, rec := range records[1:] {
		if dateIdx >= len(rec) || targetIdx >= len(rec) {
			dropped++
			continue
		}
		date, ok := parseDate(rec[dateIdx])
		if !ok {
			dropped++
			continue
		}
		target, err := strconv.ParseFloat(strings.TrimSpace(rec[targetIdx]), 64)
		if err != nil {
			dropped++
			continue
		}
		obs := DailyObservation{Date: date, Sorties: target}
		if carrierIdx >= 0 && carrierIdx < len(rec) {
			if c, err := strconv.ParseFloat(strings.TrimSpace(rec[carrierIdx]), 64); err == nil {
				obs.Carrier = c
			}
		}
		// Last write wins on duplicate dates.
		byDate[date] = obs
	}

	series := make(Series, 0, len(byDate))
	for _, obs := range byDate {
		series = append(series, obs)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

	if len(series) < minRows {
		return nil, fmt.Errorf("%w: %d usable of %d total (need %d)",
			ErrTooFewRows, len(series), len(records)-1, minRows)
	}

	log.Info().Str("path", path).Int("rows", len(series)).Int("dropped", dropped).
		Str("latest", series.LastDate().Format("2006-01-02")).Msg("sortie series loaded")
	return series, nil
}

// LoadEvents loads the political statement table. Any failure degrades to an
// empty table so the derived features default to zero.
func LoadEvents(path, textColumn string) EventTable {
	if path == "" {
		return nil
	}
	records, err := decodeRecords(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("event table unavailable, features default to zero")
		return nil
	}
	header := records[0]
	dateIdx := columnIndex(header, "date")
	textIdx := columnIndex(header, textColumn)
	if dateIdx < 0 || textIdx < 0 {
		log.Warn().Str("path", path).Str("column", textColumn).
			Msg("event table missing columns, features default to zero")
		return nil
	}

	var table EventTable
	for _, rec := range records[1:] {
		if dateIdx >= len(rec) || textIdx >= len(rec) {
			continue
		}
		date, ok := parseDate(rec[dateIdx])
		if !ok {
			continue
		}
		table = append(table, Event{Date: date, Text: rec[textIdx]})
	}
	log.Info().Str("path", path).Int("rows", len(table)).Msg("political event table loaded")
	return table
}

// LoadNews loads the classified news table (date, category, optional
// sentiment). Failures degrade to an empty table.
func LoadNews(path string) NewsTable {
	if path == "" {
		return nil
	}
	records, err := decodeRecords(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("news table unavailable, features default to zero")
		return nil
	}
	header := records[0]
	dateIdx := columnIndex(header, "date")
	if dateIdx < 0 {
		log.Warn().Str("path", path).Msg("news table missing date column, features default to zero")
		return nil
	}
	catIdx := columnIndex(header, "category")
	sentIdx := columnIndex(header, "sentiment")

	var table NewsTable
	for _, rec := range records[1:] {
		if dateIdx >= len(rec) {
			continue
		}
		date, ok := parseDate(rec[dateIdx])
		if !ok {
			continue
		}
		item := NewsItem{Date: date}
		if catIdx >= 0 && catIdx < len(rec) {
			item.Category = strings.TrimSpace(rec[catIdx])
		}
		if sentIdx >= 0 && sentIdx < len(rec) {
			if s, err := strconv.ParseFloat(strings.TrimSpace(rec[sentIdx]), 64); err == nil {
				item.Sentiment = s
				item.HasScore = true
			}
		}
		table = append(table, item)
	}
	log.Info().Str("path", path).Int("rows", len(table)).Msg("news table loaded")
	return table
}

// LoadWeather loads the airport weather forecast table. Failures degrade to
// the identity adjustment.
func LoadWeather(path string) WeatherTable {
	if path == "" {
		return nil
	}
	records, err := decodeRecords(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("weather table unavailable, adjustment is identity")
		return nil
	}
	header := records[0]
	dateIdx := columnIndex(header, "date")
	riskIdx := columnIndex(header, "risk_level")
	if dateIdx < 0 || riskIdx < 0 {
		log.Warn().Str("path", path).Msg("weather table missing columns, adjustment is identity")
		return nil
	}
	cityIdx := columnIndex(header, "city")

	var table WeatherTable
	for _, rec := range records[1:] {
		if dateIdx >= len(rec) || riskIdx >= len(rec) {
			continue
		}
		date, ok := parseDate(rec[dateIdx])
		if !ok {
			continue
		}
		row := WeatherRow{Date: date, RiskLevel: rec[riskIdx]}
		if cityIdx >= 0 && cityIdx < len(rec) {
			row.City = rec[cityIdx]
		}
		table = append(table, row)
	}
	log.Info().Str("path", path).Int("rows", len(table)).Msg("weather table loaded")
	return table
}
