package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		delta time.Duration
		want  string
	}{
		{"zero", 0, "0s"},
		{"sub second truncates", 900 * time.Millisecond, "0s"},
		{"59 seconds", 59 * time.Second, "59s"},
		{"60 seconds", 60 * time.Second, "1m"},
		{"61 seconds", 61 * time.Second, "1m"},
		{"119 seconds truncates", 119 * time.Second, "1m"},
		{"3599 seconds", 3599 * time.Second, "59m"},
		{"one hour", time.Hour, "1h"},
		{"just under a day", 86399 * time.Second, "23h"},
		{"one day", 24 * time.Hour, "1d"},
		{"six days", 6*24*time.Hour + 23*time.Hour, "6d"},
		{"one week", 604800 * time.Second, "1w"},
		{"never switches to months", 400 * 24 * time.Hour, "57w"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeTime(now.Add(-tt.delta), now))
		})
	}
}

func TestRelativeTime_FutureEventClampsToZero(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "0s", RelativeTime(now.Add(5*time.Second), now))
	assert.Equal(t, "0s", RelativeTime(now.Add(72*time.Hour), now))
}

func TestRelativeTime_IgnoresTimeZones(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	loc := time.FixedZone("UTC+9", 9*60*60)
	event := now.Add(-90 * time.Minute).In(loc)

	assert.Equal(t, "1h", RelativeTime(event, now))
}
