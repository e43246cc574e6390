// Package challenge holds the challenge-calendar engine: day indexing, phases,
// schedule generation and the per-day status machine.
package challenge

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"
)

type Phase string

const (
	PhaseNotConfigured Phase = "not-configured"
	PhasePending       Phase = "pending"
	PhaseActive        Phase = "active"
	PhaseFinished      Phase = "finished"
)

// Config is the singleton challenge configuration. A nil StartDate means the
// challenge has not been configured yet.
type Config struct {
	StartDate  *civil.Date `json:"challengeStartDate"`
	TimezoneID *string     `json:"timezoneId"`
}

func (c Config) Configured() bool {
	return c.StartDate != nil
}

type DayInfo struct {
	ChallengeDay     int   `json:"challengeDay"`
	Phase            Phase `json:"phase"`
	TimeUntilStartMs int64 `json:"timeUntilStartMs"`
	DaysInChallenge  int   `json:"daysInChallenge"`
}

// Active reports whether the challenge is running, i.e. ChallengeDay is in
// [1, DaysInChallenge].
func (d DayInfo) Active() bool {
	return d.Phase == PhaseActive
}

// Clock converts between civil dates in the configured timezone and instants.
type Clock interface {
	CivilDateToInstant(d civil.Date) time.Time
	InstantToCivilDate(t time.Time) civil.Date
}

// ParseStartDate parses a YYYY-MM-DD string, rejecting dates that do not exist.
func ParseStartDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil || !d.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrInvalidStartDate, s)
	}
	return d, nil
}

func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysInChallengeYear is 366 when the start date's civil year is a leap year
// and 365 otherwise.
func DaysInChallengeYear(start civil.Date) int {
	if IsLeapYear(start.Year) {
		return 366
	}
	return 365
}

// DateForChallengeDay is start advanced by day-1 civil days. Day 1 is start.
func DateForChallengeDay(day int, start civil.Date) civil.Date {
	return start.AddDays(day - 1)
}

// LastDay is the final civil date of the challenge year.
func LastDay(start civil.Date) civil.Date {
	return DateForChallengeDay(DaysInChallengeYear(start), start)
}

// DayOfChallenge maps a civil date back to its 1-based day index. The result
// is outside [1, DaysInChallengeYear] for dates outside the challenge.
func DayOfChallenge(d, start civil.Date) int {
	return d.DaysSince(start) + 1
}

// GenerateSchedule emits one pending entry per challenge day, goal = day.
func GenerateSchedule(start civil.Date) []LogEntry {
	n := DaysInChallengeYear(start)
	logs := make([]LogEntry, 0, n)
	for day := 1; day <= n; day++ {
		logs = append(logs, NewLogEntry(day, start))
	}
	return logs
}

// Calendar answers "which challenge day is it" for the clock's timezone.
type Calendar struct {
	clock Clock
}

func NewCalendar(clock Clock) *Calendar {
	return &Calendar{clock: clock}
}

// DayInfo computes the challenge day and phase for now. All comparisons are
// made between civil dates in the configured zone, never raw UTC instants.
func (c *Calendar) DayInfo(start *civil.Date, now time.Time) DayInfo {
	if start == nil {
		return DayInfo{
			ChallengeDay:     0,
			Phase:            PhaseNotConfigured,
			TimeUntilStartMs: -1,
			DaysInChallenge:  365,
		}
	}

	days := DaysInChallengeYear(*start)
	today := c.clock.InstantToCivilDate(now)

	switch {
	case today.Before(*start):
		ms := c.clock.CivilDateToInstant(*start).Sub(now).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return DayInfo{Phase: PhasePending, TimeUntilStartMs: ms, DaysInChallenge: days}
	case today.After(LastDay(*start)):
		return DayInfo{ChallengeDay: -1, Phase: PhaseFinished, DaysInChallenge: days}
	default:
		return DayInfo{
			ChallengeDay:    DayOfChallenge(today, *start),
			Phase:           PhaseActive,
			DaysInChallenge: days,
		}
	}
}

// Today is the civil date of now in the configured zone.
func (c *Calendar) Today(now time.Time) civil.Date {
	return c.clock.InstantToCivilDate(now)
}
