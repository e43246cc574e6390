package user

import "pushupChallengeAPI/internal/challenge"

type LoginRequest struct {
	Initials string `json:"initials" validate:"required,alpha,min=1,max=4"`
	Pin      string `json:"pin" validate:"required,numeric,min=1,max=8"`
}

type LogPushupsRequest struct {
	Day   int `json:"day" validate:"required,min=1"`
	Count int `json:"count" validate:"required,min=1,max=100000"`
}

type BreakDayRequest struct {
	Day int `json:"day" validate:"required,min=1"`
}

type CorrectProgressRequest struct {
	Day   int  `json:"day" validate:"required,min=1"`
	Count *int `json:"count" validate:"required,gte=0,max=100000"`
}

type UpdatePinRequest struct {
	Pin string `json:"pin" validate:"required,numeric,min=1,max=8"`
}

type BreakDayResponse struct {
	Success bool                `json:"success"`
	Reason  string              `json:"reason,omitempty"`
	Log     *challenge.LogEntry `json:"log,omitempty"`
}
