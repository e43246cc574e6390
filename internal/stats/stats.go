package stats

import (
	"math"

	"pushupChallengeAPI/internal/challenge"
)

type UserStats struct {
	ChallengeDay      int     `json:"challenge_day"`
	CompletedDays     int     `json:"completed_days"`
	TotalGoalToDate   int     `json:"total_goal_to_date"`
	TotalActualToDate int     `json:"total_actual_to_date"`
	CompletionRate    float64 `json:"completion_rate"`
	BreakDaysTaken    int     `json:"break_days_taken"`
	CurrentStreak     int     `json:"current_streak"`
	LongestStreak     int     `json:"longest_streak"`
}

// Compute summarizes logs up to and including the current challenge day.
// A finished challenge counts every day, a pending one none.
func Compute(logs []challenge.LogEntry, info challenge.DayInfo) *UserStats {
	upTo := info.ChallengeDay
	if info.Phase == challenge.PhaseFinished {
		upTo = info.DaysInChallenge
	}
	if upTo < 0 {
		upTo = 0
	}

	s := &UserStats{ChallengeDay: upTo}
	byDay := make(map[int]challenge.LogEntry, len(logs))
	for _, l := range logs {
		byDay[l.DayOfChallenge] = l
	}

	streak := 0
	for day := 1; day <= upTo; day++ {
		l, ok := byDay[day]
		if !ok {
			streak = 0
			continue
		}
		s.TotalGoalToDate += l.Goal
		s.TotalActualToDate += l.PushupsDone

		switch {
		case done(l):
			s.CompletedDays++
			streak++
		case l.Status == challenge.StatusBreak:
			s.BreakDaysTaken++
			// Breaks neither extend nor reset a streak.
		case day == upTo && info.Phase == challenge.PhaseActive:
			// Today is still open.
		default:
			streak = 0
		}
		if streak > s.LongestStreak {
			s.LongestStreak = streak
		}
	}
	s.CurrentStreak = streak

	if upTo > 0 {
		s.CompletionRate = math.Round(float64(s.CompletedDays)/float64(upTo)*1000) / 10
	}
	return s
}

func done(l challenge.LogEntry) bool {
	return l.Status == challenge.StatusCompleted ||
		l.Status == challenge.StatusOverAchieved ||
		(l.Status != challenge.StatusBreak && l.PushupsDone >= l.Goal)
}
