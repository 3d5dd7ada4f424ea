package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuiltin_KnownHolidays(t *testing.T) {
	cal := Builtin()
	require.Greater(t, cal.Len(), 100)

	assert.True(t, cal.Contains(day(2024, time.October, 1)), "National Day")
	assert.True(t, cal.Contains(day(2024, time.February, 10)), "Spring Festival")
	assert.True(t, cal.Contains(day(2025, time.May, 1)), "Labour Day")
	assert.True(t, cal.Contains(day(2026, time.April, 5)), "Qingming")

	assert.False(t, cal.Contains(day(2024, time.March, 13)))
	assert.False(t, cal.Contains(day(2024, time.October, 8)), "2024 break ends Oct 7")
}

func TestLoad_MergesFileOverBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.txt")
	content := "# extra closures\n2024-03-13\n\nnot-a-date\n2024-03-14\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cal := Load(path)
	assert.True(t, cal.Contains(day(2024, time.March, 13)))
	assert.True(t, cal.Contains(day(2024, time.March, 14)))
	assert.True(t, cal.Contains(day(2024, time.October, 1)), "builtin table kept")
}

func TestLoad_MissingFileDegradesToBuiltin(t *testing.T) {
	cal := Load(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Equal(t, Builtin().Len(), cal.Len())
}
