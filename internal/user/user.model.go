package user

import (
	"time"

	"pushupChallengeAPI/internal/challenge"
)

const MaxBreakDaysPerMonth = 1

// BreakDays counts break days used per zero-based calendar month.
type BreakDays [12]int

func (b BreakDays) Available(month int) bool {
	return month >= 0 && month < len(b) && b[month] < MaxBreakDaysPerMonth
}

func (b BreakDays) Total() int {
	total := 0
	for _, n := range b {
		total += n
	}
	return total
}

type User struct {
	Initials      string    `json:"initials"`
	Pin           string    `json:"-"`
	BreakDaysUsed BreakDays `json:"breakDaysUsed"`
	CreatedAt     time.Time `json:"createdAt"`
}

type UserWithLogs struct {
	*User
	Logs []challenge.LogEntry `json:"logs"`
}
