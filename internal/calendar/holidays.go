// Package calendar provides the regional holiday lookup used as a model feature.
package calendar

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

// Calendar is an immutable set of holiday dates, keyed by ISO date string.
type Calendar struct {
	dates map[string]struct{}
}

// Contains reports whether the given day is a holiday.
func (c *Calendar) Contains(d time.Time) bool {
	_, ok := c.dates[d.Format(dateLayout)]
	return ok
}

// Len returns the number of holiday dates loaded.
func (c *Calendar) Len() int { return len(c.dates) }

// Load reads a flat file of ISO dates (one per line, blank lines and #-comments
// ignored) and merges it over the builtin table. A missing or unreadable file
// degrades to the builtin table alone.
func Load(path string) *Calendar {
	cal := Builtin()
	if path == "" {
		return cal
	}
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("holiday file unavailable, using builtin table")
		return cal
	}
	defer f.Close()

	added := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := time.Parse(dateLayout, line); err != nil {
			log.Warn().Str("entry", line).Msg("skipping unparseable holiday date")
			continue
		}
		cal.dates[line] = struct{}{}
		added++
	}
	log.Debug().Int("file_dates", added).Int("total", cal.Len()).Msg("holiday calendar loaded")
	return cal
}

// Builtin returns the 2020-2026 mainland holiday table (New Year, Spring
// Festival, Qingming, Labour Day, Dragon Boat, Mid-Autumn, National Day).
func Builtin() *Calendar {
	cal := &Calendar{dates: make(map[string]struct{})}

	add := func(dates ...string) {
		for _, d := range dates {
			cal.dates[d] = struct{}{}
		}
	}
	addRange := func(year, month, first, last int) {
		for day := first; day <= last; day++ {
			d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			cal.dates[d.Format(dateLayout)] = struct{}{}
		}
	}

	// 2020
	add("2020-01-01")
	addRange(2020, 1, 24, 31)
	addRange(2020, 2, 1, 2)
	addRange(2020, 4, 4, 6)
	addRange(2020, 5, 1, 5)
	addRange(2020, 6, 25, 27)
	addRange(2020, 10, 1, 8)

	// 2021
	addRange(2021, 1, 1, 3)
	addRange(2021, 2, 11, 17)
	addRange(2021, 4, 3, 5)
	addRange(2021, 5, 1, 5)
	addRange(2021, 6, 12, 14)
	addRange(2021, 9, 19, 21)
	addRange(2021, 10, 1, 7)

	// 2022
	addRange(2022, 1, 1, 3)
	add("2022-01-31")
	addRange(2022, 2, 1, 6)
	addRange(2022, 4, 3, 5)
	add("2022-04-30")
	addRange(2022, 5, 1, 4)
	addRange(2022, 6, 3, 5)
	addRange(2022, 9, 10, 12)
	addRange(2022, 10, 1, 7)

	// 2023
	add("2022-12-31")
	addRange(2023, 1, 1, 2)
	addRange(2023, 1, 21, 27)
	add("2023-04-05", "2023-04-29", "2023-04-30")
	addRange(2023, 5, 1, 3)
	addRange(2023, 6, 22, 24)
	add("2023-09-29", "2023-09-30")
	addRange(2023, 10, 1, 6)

	// 2024
	add("2023-12-30", "2023-12-31", "2024-01-01")
	addRange(2024, 2, 10, 17)
	addRange(2024, 4, 4, 6)
	addRange(2024, 5, 1, 5)
	addRange(2024, 6, 8, 10)
	addRange(2024, 9, 15, 17)
	addRange(2024, 10, 1, 7)

	// 2025
	add("2025-01-01")
	addRange(2025, 1, 28, 31)
	addRange(2025, 2, 1, 4)
	addRange(2025, 4, 4, 6)
	addRange(2025, 5, 1, 5)
	add("2025-05-31")
	addRange(2025, 6, 1, 2)
	addRange(2025, 10, 1, 8)

	// 2026
	addRange(2026, 1, 1, 3)
	addRange(2026, 2, 15, 23)
	addRange(2026, 4, 4, 6)
	addRange(2026, 5, 1, 5)
	addRange(2026, 6, 19, 21)
	addRange(2026, 9, 25, 27)
	addRange(2026, 10, 1, 7)

	return cal
}
