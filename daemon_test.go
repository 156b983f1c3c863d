package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationToNextEpoch(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	interval := time.Minute

	testCases := []struct {
		name           string
		now            time.Time
		nextEpochPoint time.Time
		expectedDur    time.Duration
	}{
		{"epoch point already passed", base, base.Add(-time.Hour), 0},
		{"exactly at epoch point", base, base, 0},
		{"30s out - sleep right up to it", base, base.Add(30 * time.Second), 30 * time.Second},
		{"one interval out", base, base.Add(time.Minute), time.Minute},
		{"far out - clamped to check interval", base, base.Add(6 * time.Hour), time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actualDur := durationToNextEpoch(tc.now, tc.nextEpochPoint, interval)
			assert.Equal(t, tc.expectedDur, actualDur)
		})
	}
}

func TestParseAmount(t *testing.T) {
	testCases := []struct {
		in       string
		expected string // 18-decimal fixed, as decimal string
		wantErr  bool
	}{
		{"1", "1000000000000000000", false},
		{"0.5", "500000000000000000", false},
		{"12.25", "12250000000000000000", false},
		{".75", "750000000000000000", false},
		{"0", "0", false},
		{"1.0000000000000000005", "", true}, // 19 decimal places
		{"-3", "", true},
		{"abc", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			v, err := parseAmount(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, v.Dec())
			// round trip through the display form
			back, err := parseAmount(formatAmount(v))
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, back.Dec())
		})
	}
}
