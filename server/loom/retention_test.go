package loom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetentionRuleCutoff(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		unit RetentionUnit
		n    int
		want time.Time
	}{
		{RetentionUnitMinutes, 90, now.Add(-90 * time.Minute)},
		{RetentionUnitHours, 12, now.Add(-12 * time.Hour)},
		{RetentionUnitDays, 30, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{RetentionUnitWeeks, 2, time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC)},
		{RetentionUnitMonths, 1, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)}, // calendar arithmetic, not 30 days
		{RetentionUnitYears, 1, time.Date(2023, 3, 31, 12, 0, 0, 0, time.UTC)},
	} {
		t.Run(string(tc.unit), func(t *testing.T) {
			rule := RetentionRule{MaxRetention: tc.n, RetentionUnit: tc.unit}
			got, err := rule.Cutoff(now)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRetentionRuleCutoffUnknownUnit(t *testing.T) {
	rule := RetentionRule{MaxRetention: 1, RetentionUnit: "fortnights"}
	_, err := rule.Cutoff(time.Now())
	require.Error(t, err)
}
