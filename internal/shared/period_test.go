package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2026-03")
	require.NoError(t, err)
	require.Equal(t, 2026, p.Year)
	require.Equal(t, time.March, p.Month)
	require.Equal(t, "2026-03", p.String())

	for _, bad := range []string{"", "2026", "2026-13", "03-2026", "2026-3"} {
		_, err := ParsePeriod(bad)
		require.ErrorIs(t, err, ErrInvalidPeriod, "input %q", bad)
	}
}

func TestPeriodWindow(t *testing.T) {
	p := Period{Year: 2026, Month: time.December}
	require.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), p.Start())
	require.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), p.End())

	require.True(t, p.Contains(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)))
	require.False(t, p.Contains(p.End()))
	require.False(t, p.Contains(time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC)))
}

func TestPeriodPrevAcrossYear(t *testing.T) {
	p := Period{Year: 2026, Month: time.January}.Prev()
	require.Equal(t, Period{Year: 2025, Month: time.December}, p)
}

func TestPeriodOf(t *testing.T) {
	p := PeriodOf(time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC))
	require.Equal(t, Period{Year: 2026, Month: time.August}, p)
}
