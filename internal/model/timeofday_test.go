package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"9:30", 0, true},
		{"0930", 0, true},
		{"", 0, true},
		{"noon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOfDayRoundTrip(t *testing.T) {
	parsed, err := ParseTimeOfDay("14:05")
	require.NoError(t, err)
	assert.Equal(t, "14:05", parsed.String())
	assert.Equal(t, 845, parsed.Minutes())
}

func TestTimeOfDayScan(t *testing.T) {
	var tod TimeOfDay

	// TIME columns come back with seconds
	require.NoError(t, tod.Scan("09:30:00"))
	assert.Equal(t, "09:30", tod.String())

	require.NoError(t, tod.Scan([]byte("18:45")))
	assert.Equal(t, "18:45", tod.String())

	require.NoError(t, tod.Scan(time.Date(2026, 3, 1, 7, 15, 0, 0, time.UTC)))
	assert.Equal(t, "07:15", tod.String())

	assert.Error(t, tod.Scan(42))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-15")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", d.String())

	_, err = ParseDate("15-03-2026")
	assert.Error(t, err)

	_, err = ParseDate("2026-02-30")
	assert.Error(t, err)
}

func TestDateAt(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	d, err := ParseDate("2026-03-15")
	require.NoError(t, err)

	tod, err := ParseTimeOfDay("14:30")
	require.NoError(t, err)

	at := d.At(tod, ist)
	assert.Equal(t, 14, at.Hour())
	assert.Equal(t, 30, at.Minute())
	assert.Equal(t, ist, at.Location())
}

func TestWeekdayOf(t *testing.T) {
	d, err := ParseDate("2026-03-16")
	require.NoError(t, err)
	assert.Equal(t, Monday, WeekdayOf(d))

	d, err = ParseDate("2026-03-15")
	require.NoError(t, err)
	assert.Equal(t, Sunday, WeekdayOf(d))
}
