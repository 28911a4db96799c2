package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 30, 45, 500, time.FixedZone("CET", 3600))
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	wallNow := time.Date(2024, 3, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		period string
		start  time.Time
	}{
		{"", today},
		{PeriodToday, today},
		{"LAST7", today.AddDate(0, 0, -7)},
		{PeriodLast30, today.AddDate(0, 0, -30)},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			w, err := PresetWindow(tt.period, now, time.Time{}, time.Time{})
			require.NoError(t, err)
			assert.Equal(t, tt.start, w.Start)
			assert.Equal(t, wallNow, w.End)
		})
	}
}

func TestPresetWindowCustom(t *testing.T) {
	from := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	w, err := PresetWindow(PeriodCustom, time.Time{}, from, to)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 1, 2, 23, 59, 59, 0, time.UTC), w.End)

	_, err = PresetWindow(PeriodCustom, time.Time{}, to.AddDate(0, 0, 1), from)
	assert.Error(t, err)

	_, err = PresetWindow(PeriodCustom, time.Time{}, time.Time{}, to)
	assert.Error(t, err)

	_, err = PresetWindow("fortnight", time.Now(), time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestScanWindowContainsIsClosed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	w := ScanWindow{Start: start, End: end}

	require.NoError(t, w.Validate())
	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(end))
	assert.False(t, w.Contains(start.Add(-time.Second)))
	assert.False(t, w.Contains(end.Add(time.Nanosecond)))

	assert.Error(t, ScanWindow{Start: end, End: start}.Validate())
	assert.Error(t, ScanWindow{End: end}.Validate())
}

func TestCaseKeyString(t *testing.T) {
	assert.Equal(t, "INS 12925/2022", CaseKey{Kind: "INS", Number: 12925, Year: 2022}.String())
}
