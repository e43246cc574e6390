package challenge

import "errors"

var (
	ErrChallengeNotConfigured = errors.New("challenge start date is not configured")
	ErrBreakDayExhausted      = errors.New("break day already used this month")
	ErrLogNotFound            = errors.New("log not found")
	ErrDayOnBreak             = errors.New("day is marked as a break")
	ErrBreakNotAllowed        = errors.New("only untouched pending days can become a break")
	ErrStatusRegression       = errors.New("correction would move the day back to an earlier status")
	ErrInvalidCount           = errors.New("invalid push-up count")
	ErrDayInFuture            = errors.New("day has not started yet")
	ErrInvalidStartDate       = errors.New("invalid start date")
)
