package schedule_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		expr  string
		field string
	}{
		{"", ""},
		{"0 9 * * 1", ""},
		{"*/15 8-18 * * 1-5", ""},
		{"0 0 1 jan *", ""},
		{"@daily", ""},
		{"99 9 * * 1", "minute"},
		{"0 24 * * *", "hour"},
		{"0 9 32 * *", "day-of-month"},
		{"0 9 * 13 *", "month"},
		{"0 9 * * 7", ""},
		{"0 9 * * 5-7", ""},
		{"0 9 * * 8", "day-of-week"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := schedule.Validate(tt.expr)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var fe *schedule.FieldError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestValidate_WrongFieldCount(t *testing.T) {
	var fe *schedule.FieldError
	require.ErrorAs(t, schedule.Validate("0 9 * *"), &fe)
	assert.Equal(t, -1, fe.Position)
	assert.Contains(t, fe.Error(), "expected 5 fields")
}

func TestValidate_MinuteReport(t *testing.T) {
	err := schedule.Validate("99 9 * * 1")
	var fe *schedule.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, fe.Position)
	assert.Equal(t, "99", fe.Value)
	assert.Contains(t, err.Error(), "minute")
}

func TestNext_MondayMorning(t *testing.T) {
	for _, loc := range []*time.Location{time.UTC, time.Local} {
		// Wednesday.
		now := time.Date(2024, time.January, 3, 10, 30, 0, 0, loc)
		next, err := schedule.Next("0 9 * * 1", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.January, 8, 9, 0, 0, 0, loc), next)
		assert.Equal(t, time.Monday, next.Weekday())
	}
}

func TestNext_SevenIsSunday(t *testing.T) {
	friday := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)

	next, err := schedule.Next("0 9 * * 7", friday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC), next)

	times, err := schedule.NextN("0 9 * * 6-7", friday, 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}, times)

	assert.Equal(t, "every Sunday at 09:00", schedule.Describe("0 9 * * 7"))
}

func TestNext_StrictlyAfter(t *testing.T) {
	now := time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)
	next, err := schedule.Next("0 9 * * 1", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 7), next)
}

func TestNext_EmptyNeverFires(t *testing.T) {
	next, err := schedule.Next("", time.Now())
	require.NoError(t, err)
	assert.True(t, next.IsZero())

	_, err = schedule.NextN(" ", time.Now(), 3)
	assert.ErrorIs(t, err, schedule.ErrNever)

	_, err = schedule.Next("61 * * * *", time.Now())
	assert.Error(t, err)
}

func TestNextN(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	times, err := schedule.NextN("0 */6 * * *", now, 3)
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.Equal(t, 6, times[0].Hour())
	assert.Equal(t, 12, times[1].Hour())
	assert.Equal(t, 18, times[2].Hour())
}

func TestDescribe(t *testing.T) {
	tests := map[string]string{
		"":             "never (manual trigger only)",
		"* * * * *":    "every minute",
		"*/5 * * * *":  "every 5 minutes",
		"15 * * * *":   "hourly at :15",
		"0 9 * * *":    "daily at 09:00",
		"30 8 * * 1-5": "weekdays at 08:30",
		"0 17 * * 5":   "every Friday at 17:00",
		"0 9 1 * *":    "monthly on day 1 at 09:00",
		"0 9 * 6 *":    "0 9 * 6 *",
		"5,35 * * * *": "5,35 * * * *",
		"bogus":        "bogus",
	}
	for expr, want := range tests {
		assert.Equal(t, want, schedule.Describe(expr), expr)
	}
}

func TestPresets(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range schedule.Presets {
		assert.NoError(t, schedule.Validate(p.Expr), p.ID)
		assert.False(t, seen[p.ID], "duplicate preset %s", p.ID)
		seen[p.ID] = true
	}
	p, ok := schedule.PresetByID("every-friday-5pm")
	require.True(t, ok)
	assert.Equal(t, "every Friday at 17:00", schedule.Describe(p.Expr))

	_, ok = schedule.PresetByID("never")
	assert.False(t, ok)
}
