package challenge

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushupChallengeAPI/internal/timezone"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestDaysInChallengeYear(t *testing.T) {
	for _, y := range []int{2000, 2020, 2024} {
		assert.Equal(t, 366, DaysInChallengeYear(date(y, time.June, 1)), "year %d", y)
	}
	for _, y := range []int{1900, 2021, 2022, 2023} {
		assert.Equal(t, 365, DaysInChallengeYear(date(y, time.June, 1)), "year %d", y)
	}
}

func TestParseStartDate(t *testing.T) {
	d, err := ParseStartDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), d)

	for _, bad := range []string{"", "2023-02-29", "2024-13-01", "2024-1-1", "yesterday"} {
		_, err := ParseStartDate(bad)
		assert.ErrorIs(t, err, ErrInvalidStartDate, bad)
	}
}

func TestGenerateSchedule(t *testing.T) {
	starts := []civil.Date{
		date(2024, time.March, 1),
		date(2023, time.January, 1),
		date(2024, time.February, 29),
		date(1999, time.December, 31),
	}

	for _, start := range starts {
		t.Run(start.String(), func(t *testing.T) {
			logs := GenerateSchedule(start)
			require.Len(t, logs, DaysInChallengeYear(start))

			for i, l := range logs {
				assert.Equal(t, i+1, l.DayOfChallenge)
				assert.Equal(t, l.DayOfChallenge, l.Goal)
				assert.Equal(t, 0, l.PushupsDone)
				assert.Equal(t, StatusPending, l.Status)
				assert.Equal(t, DateForChallengeDay(l.DayOfChallenge, start), l.Date)
				require.NoError(t, l.Validate())
				if i > 0 {
					assert.True(t, logs[i-1].Date.Before(l.Date))
				}
			}
			assert.Equal(t, start, logs[0].Date)
			assert.Equal(t, LastDay(start), logs[len(logs)-1].Date)
		})
	}
}

func TestDateForChallengeDayCrossesLeapDay(t *testing.T) {
	start := date(2024, time.February, 28)
	assert.Equal(t, date(2024, time.February, 29), DateForChallengeDay(2, start))
	assert.Equal(t, date(2024, time.March, 1), DateForChallengeDay(3, start))
	assert.Equal(t, 3, DayOfChallenge(date(2024, time.March, 1), start))
}

func TestDayInfo(t *testing.T) {
	start := date(2024, time.March, 1)
	cal := NewCalendar(timezone.NewClock("UTC"))

	t.Run("not configured", func(t *testing.T) {
		info := cal.DayInfo(nil, time.Now())
		assert.Equal(t, DayInfo{ChallengeDay: 0, Phase: PhaseNotConfigured, TimeUntilStartMs: -1, DaysInChallenge: 365}, info)
	})

	t.Run("first and second day", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		info := cal.DayInfo(&start, now)
		assert.Equal(t, 1, info.ChallengeDay)
		assert.Equal(t, PhaseActive, info.Phase)
		assert.Equal(t, int64(0), info.TimeUntilStartMs)
		assert.Equal(t, 366, info.DaysInChallenge)

		info = cal.DayInfo(&start, now.AddDate(0, 0, 1))
		assert.Equal(t, 2, info.ChallengeDay)

		info = cal.DayInfo(&start, now.Add(24*time.Hour-time.Nanosecond))
		assert.Equal(t, 1, info.ChallengeDay)
	})

	t.Run("pending counts down", func(t *testing.T) {
		startInstant := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		prev := int64(-1)
		for _, before := range []time.Duration{72 * time.Hour, 25 * time.Hour, time.Hour, time.Millisecond} {
			info := cal.DayInfo(&start, startInstant.Add(-before))
			assert.Equal(t, PhasePending, info.Phase)
			assert.Equal(t, 0, info.ChallengeDay)
			assert.Equal(t, before.Milliseconds(), info.TimeUntilStartMs)
			assert.Greater(t, info.TimeUntilStartMs, int64(0))
			if prev >= 0 {
				assert.Less(t, info.TimeUntilStartMs, prev)
			}
			prev = info.TimeUntilStartMs
		}
	})

	t.Run("last day and finished", func(t *testing.T) {
		last := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
		info := cal.DayInfo(&start, last)
		assert.Equal(t, PhaseActive, info.Phase)
		assert.Equal(t, 366, info.ChallengeDay)

		info = cal.DayInfo(&start, last.Add(time.Minute))
		assert.Equal(t, PhaseFinished, info.Phase)
		assert.Equal(t, -1, info.ChallengeDay)
		assert.Equal(t, int64(0), info.TimeUntilStartMs)
	})
}

func TestDayInfoFollowsConfiguredZone(t *testing.T) {
	start := date(2024, time.March, 1)
	// 02:00 UTC on March 1 is still February 29 in Halifax.
	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	halifax := NewCalendar(timezone.NewClock("America/Halifax"))
	info := halifax.DayInfo(&start, now)
	assert.Equal(t, PhasePending, info.Phase)
	assert.Equal(t, (2 * time.Hour).Milliseconds(), info.TimeUntilStartMs)

	tokyo := NewCalendar(timezone.NewClock("Asia/Tokyo"))
	assert.Equal(t, 1, tokyo.DayInfo(&start, now).ChallengeDay)
}

func TestDayInfoAcrossDST(t *testing.T) {
	start := date(2024, time.March, 9)
	cal := NewCalendar(timezone.NewClock("America/New_York"))

	// 23:30 local on March 10, after clocks sprang forward.
	now := time.Date(2024, 3, 11, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, 2, cal.DayInfo(&start, now).ChallengeDay)

	// 00:30 local on March 11.
	now = time.Date(2024, 3, 11, 4, 30, 0, 0, time.UTC)
	assert.Equal(t, 3, cal.DayInfo(&start, now).ChallengeDay)
}
