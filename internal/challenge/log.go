package challenge

import (
	"fmt"
	"math"

	"github.com/golang-sql/civil"
)

// MaxPushups bounds a day's total so it fits the INTEGER log columns.
const MaxPushups = math.MaxInt32

type Status string

const (
	StatusPending      Status = "pending"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusOverAchieved Status = "over_achieved"
	StatusBreak        Status = "break"

	// Display-only, never stored.
	StatusMissed Status = "missed"
	StatusToday  Status = "today"
)

// Stored reports whether s may be persisted on a log entry.
func (s Status) Stored() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverAchieved, StatusBreak:
		return true
	}
	return false
}

// LogEntry is one user's record for one challenge day. Date is derived from
// DayOfChallenge and the start date and is rewritten on every regeneration.
type LogEntry struct {
	DayOfChallenge int        `json:"dayOfChallenge"`
	Date           civil.Date `json:"date"`
	PushupsDone    int        `json:"pushupsDone"`
	Goal           int        `json:"goal"`
	Status         Status     `json:"status"`
}

func NewLogEntry(day int, start civil.Date) LogEntry {
	return LogEntry{
		DayOfChallenge: day,
		Date:           DateForChallengeDay(day, start),
		Goal:           day,
		Status:         StatusPending,
	}
}

// StatusFor derives the push-up based status. Break is never derived.
func StatusFor(pushups, goal int) Status {
	switch {
	case pushups <= 0:
		return StatusPending
	case pushups < goal:
		return StatusInProgress
	case pushups == goal:
		return StatusCompleted
	default:
		return StatusOverAchieved
	}
}

func rank(s Status) int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusOverAchieved:
		return 2
	default:
		return 0
	}
}

// MonthIndex is the zero-based calendar month of the entry's date, used to
// charge break days.
func (l *LogEntry) MonthIndex() int {
	return int(l.Date.Month) - 1
}

// AddPushups accumulates n push-ups on the day.
func (l *LogEntry) AddPushups(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	if l.Status == StatusBreak {
		return ErrDayOnBreak
	}
	if n > MaxPushups-l.PushupsDone {
		return fmt.Errorf("%w: %d more would exceed %d", ErrInvalidCount, n, MaxPushups)
	}
	l.PushupsDone += n
	l.Status = StatusFor(l.PushupsDone, l.Goal)
	return nil
}

// MarkBreak turns an untouched pending day into a break day.
func (l *LogEntry) MarkBreak() error {
	if l.Status == StatusBreak {
		return ErrDayOnBreak
	}
	if l.Status != StatusPending || l.PushupsDone != 0 {
		return ErrBreakNotAllowed
	}
	l.Status = StatusBreak
	return nil
}

// CorrectPushups overwrites the count. Corrections may move a day forward or
// sideways but never back toward pending.
func (l *LogEntry) CorrectPushups(n int) error {
	if n < 0 || n > MaxPushups {
		return fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	if l.Status == StatusBreak {
		return ErrDayOnBreak
	}
	next := StatusFor(n, l.Goal)
	if rank(next) < rank(l.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, l.Status, next)
	}
	l.PushupsDone = n
	l.Status = next
	return nil
}

// Validate checks the stored fields agree with each other.
func (l *LogEntry) Validate() error {
	switch {
	case l.DayOfChallenge < 1:
		return fmt.Errorf("day %d: day of challenge must be positive", l.DayOfChallenge)
	case l.Goal != l.DayOfChallenge:
		return fmt.Errorf("day %d: goal %d does not match day", l.DayOfChallenge, l.Goal)
	case l.PushupsDone < 0 || l.PushupsDone > MaxPushups:
		return fmt.Errorf("day %d: push-up count %d out of range", l.DayOfChallenge, l.PushupsDone)
	case !l.Status.Stored():
		return fmt.Errorf("day %d: status %q cannot be stored", l.DayOfChallenge, l.Status)
	case l.Status == StatusBreak:
		if l.PushupsDone != 0 {
			return fmt.Errorf("day %d: break day has push-ups", l.DayOfChallenge)
		}
	case l.Status != StatusFor(l.PushupsDone, l.Goal):
		return fmt.Errorf("day %d: status %s does not match %d/%d", l.DayOfChallenge, l.Status, l.PushupsDone, l.Goal)
	}
	return nil
}

// Editable reports whether the entry's day has started in info's view of
// the calendar. Finished challenges keep every day editable.
func (l *LogEntry) Editable(info DayInfo) bool {
	switch info.Phase {
	case PhaseActive:
		return l.DayOfChallenge <= info.ChallengeDay
	case PhaseFinished:
		return true
	default:
		return false
	}
}

// DisplayStatus is the status a client renders for the entry. Missed and
// today only exist here.
func DisplayStatus(l LogEntry, info DayInfo) Status {
	current := info.ChallengeDay
	if info.Phase == PhaseFinished {
		current = info.DaysInChallenge + 1
	}
	isToday := info.Phase == PhaseActive && l.DayOfChallenge == current
	isPast := l.DayOfChallenge < current

	switch {
	case l.Status == StatusBreak:
		return StatusBreak
	case l.PushupsDone > l.Goal:
		return StatusOverAchieved
	case l.Status == StatusCompleted:
		return StatusCompleted
	case isToday:
		return StatusToday
	case l.Status == StatusPending && isPast:
		return StatusMissed
	default:
		return l.Status
	}
}

