package calendar

import (
	"github.com/golang-sql/civil"

	"pushupChallengeAPI/internal/challenge"
)

type CalendarDay struct {
	Date           civil.Date       `json:"date"`
	DayOfChallenge int              `json:"day_of_challenge"`
	Goal           int              `json:"goal"`
	PushupsDone    int              `json:"pushups_done"`
	Status         challenge.Status `json:"status"`
	IsToday        bool             `json:"is_today"`
	InChallenge    bool             `json:"in_challenge"`
}

type CalendarResponse struct {
	Year              int            `json:"year"`
	Month             int            `json:"month"`
	BreakDayAvailable bool           `json:"break_day_available"`
	Days              []*CalendarDay `json:"days"`
}
