// Package dataset ingests the CSV inputs the forecasting pipeline consumes:
// the daily sortie series plus the optional political event, news and weather
// side tables.
package dataset

import (
	"strings"
	"time"
)

// DailyObservation is one observed day of the target series. Immutable once
// loaded.
type DailyObservation struct {
	Date    time.Time
	Sorties float64
	Carrier float64 // exogenous carrier-activity count, 0 when the column is absent
}

// Series is the daily observation series, sorted ascending by date with no
// duplicate dates.
type Series []DailyObservation

// Values returns the target counts in date order.
func (s Series) Values() []float64 {
	vals := make([]float64, len(s))
	for i, obs := range s {
		vals[i] = obs.Sorties
	}
	return vals
}

// LastDate returns the most recent observed date.
func (s Series) LastDate() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Date
}

// Event is one row of the political statement table.
type Event struct {
	Date time.Time
	Text string
}

// EventTable holds date-indexed free-text event rows. A nil or empty table is
// valid and yields zero counts.
type EventTable []Event

// CountMatching counts rows in [from, to) whose text contains any of the
// keywords.
func (t EventTable) CountMatching(from, to time.Time, keywords []string) int {
	n := 0
	for _, ev := range t {
		if ev.Date.Before(from) || !ev.Date.Before(to) {
			continue
		}
		for _, kw := range keywords {
			if kw != "" && strings.Contains(ev.Text, kw) {
				n++
				break
			}
		}
	}
	return n
}

// NewsItem is one classified news row with an optional sentiment score.
type NewsItem struct {
	Date      time.Time
	Category  string
	Sentiment float64
	HasScore  bool
}

// notRelevantCategory is the upstream classifier's discard label. Rows
// carrying it are kept in the table but excluded from the derived features.
const notRelevantCategory = "not_relevant"

func (n NewsItem) relevant() bool {
	return !strings.EqualFold(strings.TrimSpace(n.Category), notRelevantCategory)
}

// NewsTable holds date-indexed classified news rows.
type NewsTable []NewsItem

// CountWindow counts relevant news rows dated in [from, to).
func (t NewsTable) CountWindow(from, to time.Time) int {
	n := 0
	for _, item := range t {
		if item.relevant() && !item.Date.Before(from) && item.Date.Before(to) {
			n++
		}
	}
	return n
}

// MeanSentiment averages sentiment scores of relevant rows over [from, to);
// rows without a score are excluded and an empty window yields 0.
func (t NewsTable) MeanSentiment(from, to time.Time) float64 {
	sum, n := 0.0, 0
	for _, item := range t {
		if !item.relevant() || !item.HasScore || item.Date.Before(from) || !item.Date.Before(to) {
			continue
		}
		sum += item.Sentiment
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// WeatherRow is one forecast row of the airport weather table.
type WeatherRow struct {
	Date      time.Time
	City      string
	RiskLevel string
}

// WeatherTable maps forecast dates to a multiplicative adjustment applied to
// the predicted value and band.
type WeatherTable []WeatherRow

// Adjustment returns the factor for a date, preferring rows whose city matches
// one of the preferred stations. Absent data is the identity factor.
func (t WeatherTable) Adjustment(date time.Time, preferredCities []string) (float64, string) {
	day := date.Format("2006-01-02")
	var fallback *WeatherRow
	for i := range t {
		row := &t[i]
		if row.Date.Format("2006-01-02") != day {
			continue
		}
		if cityMatches(row.City, preferredCities) {
			return riskFactor(row.RiskLevel)
		}
		if fallback == nil {
			fallback = row
		}
	}
	if fallback != nil {
		return riskFactor(fallback.RiskLevel)
	}
	return 1.0, "N/A"
}

func cityMatches(city string, preferred []string) bool {
	lower := strings.ToLower(city)
	for _, p := range preferred {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func riskFactor(level string) (float64, string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "HIGH":
		return 0.75, "High weather risk"
	case "MEDIUM":
		return 0.9, "Medium weather risk"
	default:
		return 1.0, "Good weather"
	}
}
