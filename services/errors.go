package services

import "errors"

var (
	ErrInvalidPin       = errors.New("invalid PIN")
	ErrChallengeStarted = errors.New("cannot create new users after the challenge has started")
	ErrInvalidMonth     = errors.New("month must be between 1 and 12")
)
