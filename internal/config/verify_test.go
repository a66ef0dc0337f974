package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays("mon-fri")
	require.NoError(t, err)
	assert.Len(t, days, 5)
	assert.False(t, days[time.Saturday])

	days, err = ParseWeekdays("fri-mon")
	require.NoError(t, err)
	assert.Equal(t, map[time.Weekday]bool{time.Friday: true, time.Saturday: true, time.Sunday: true, time.Monday: true}, days)

	days, err = ParseWeekdays("lun, mie ,vie")
	require.NoError(t, err)
	assert.Len(t, days, 3)

	_, err = ParseWeekdays("funday")
	assert.Error(t, err)
}

func TestParseHourRange(t *testing.T) {
	a, b, err := ParseHourRange("8-18")
	require.NoError(t, err)
	assert.Equal(t, []int{8, 18}, []int{a, b})
	for _, bad := range []string{"18-8", "8", "x-9", "0-25"} {
		_, _, err := ParseHourRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestVerifyWindowOpen(t *testing.T) {
	lima, err := time.LoadLocation("America/Lima")
	require.NoError(t, err)
	days, _ := ParseWeekdays("mon-fri")
	w := VerifyWindowConfig{Enabled: true, Days: days, StartHour: 8, EndHour: 18, Location: lima}

	// Wednesday 2024-10-16 10:00 Lima is 15:00 UTC
	assert.True(t, w.Open(time.Date(2024, 10, 16, 15, 0, 0, 0, time.UTC)))
	// 18:00 Lima is closed
	assert.False(t, w.Open(time.Date(2024, 10, 16, 23, 0, 0, 0, time.UTC)))
	// Saturday
	assert.False(t, w.Open(time.Date(2024, 10, 19, 15, 0, 0, 0, time.UTC)))

	w.Enabled = false
	assert.True(t, w.Open(time.Date(2024, 10, 19, 15, 0, 0, 0, time.UTC)))
}

func TestLoadVerifyWindowConfig(t *testing.T) {
	t.Setenv("VERIFY_WINDOW_ENABLED", "true")
	t.Setenv("VERIFY_WINDOW_DAYS", "sat-sun")
	t.Setenv("VERIFY_WINDOW_HOURS", "bogus")
	t.Setenv("VERIFY_WINDOW_TZ", "UTC")
	w := LoadVerifyWindowConfig()
	assert.True(t, w.Enabled)
	assert.True(t, w.Days[time.Sunday])
	assert.False(t, w.Days[time.Monday])
	assert.Equal(t, 8, w.StartHour)
	assert.Equal(t, 18, w.EndHour)
	assert.Equal(t, "UTC", w.Location.String())
}
