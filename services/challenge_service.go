package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-sql/civil"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/metrics"
	"pushupChallengeAPI/internal/store"
	"pushupChallengeAPI/internal/timezone"
	"pushupChallengeAPI/internal/user"
)

type ChallengeService struct {
	store    store.Store
	clock    *timezone.Clock
	calendar *challenge.Calendar
	log      logger.Logger
}

func NewChallengeService(st store.Store, clock *timezone.Clock, log logger.Logger) *ChallengeService {
	return &ChallengeService{
		store:    st,
		clock:    clock,
		calendar: challenge.NewCalendar(clock),
		log:      log,
	}
}

type ConfigureRequest struct {
	StartDate  string `json:"startDate" validate:"required"`
	TimezoneID string `json:"timezoneId"`
}

type ChallengeState struct {
	challenge.Config
	Timezone string            `json:"timezone"`
	Today    civil.Date        `json:"today"`
	DayInfo  challenge.DayInfo `json:"dayInfo"`
}

type AppData struct {
	ChallengeState
	CurrentYear int                  `json:"currentYear"`
	Users       []*user.UserWithLogs `json:"users"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

func (s *ChallengeService) State(ctx context.Context) (*ChallengeState, error) {
	cfg, err := s.store.GetChallenge(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	now := s.clock.Now()
	return &ChallengeState{
		Config:   cfg,
		Timezone: s.clock.Timezone(),
		Today:    s.calendar.Today(now),
		DayInfo:  s.calendar.DayInfo(cfg.StartDate, now),
	}, nil
}

// Configure sets the start date and timezone and regenerates every user's
// schedule. Progress and break days are lost.
func (s *ChallengeService) Configure(ctx context.Context, req ConfigureRequest) (*ChallengeState, error) {
	start, err := challenge.ParseStartDate(req.StartDate)
	if err != nil {
		return nil, err
	}

	tz := req.TimezoneID
	if tz == "" {
		tz = s.clock.Timezone()
	}
	if !timezone.ValidTimezone(tz) {
		return nil, fmt.Errorf("%w: %q", timezone.ErrInvalidTimezone, tz)
	}

	cfg := challenge.Config{StartDate: &start, TimezoneID: &tz}
	if err := s.store.ReplaceChallenge(ctx, cfg, challenge.GenerateSchedule(start)); err != nil {
		return nil, fmt.Errorf("failed to configure challenge: %w", err)
	}
	if err := s.clock.SetTimezone(ctx, tz); err != nil {
		return nil, err
	}
	metrics.Reconfigurations.Inc()
	s.log.Infof("Challenge configured: start %s, timezone %s", start, tz)

	return s.State(ctx)
}

// RestoreTimezone points the clock at the zone stored with a configured
// challenge. override only decides the zone before the first Configure; once
// a challenge exists a disagreeing override is logged and ignored.
func (s *ChallengeService) RestoreTimezone(ctx context.Context, override string) error {
	cfg, err := s.store.GetChallenge(ctx)
	if err != nil {
		return fmt.Errorf("failed to load challenge: %w", err)
	}
	if !cfg.Configured() || cfg.TimezoneID == nil {
		return nil
	}

	stored := *cfg.TimezoneID
	if !timezone.ValidTimezone(stored) {
		s.log.Errorf("Stored challenge timezone %q is unusable, keeping %s", stored, s.clock.Timezone())
		return fmt.Errorf("%w: %q", timezone.ErrInvalidTimezone, stored)
	}
	if override != "" && override != stored {
		s.log.Warnf("APP_TIMEZONE=%s ignored: the challenge is configured for %s", override, stored)
	}
	if s.clock.Timezone() == stored {
		return nil
	}
	s.log.Infof("Restoring challenge timezone %s (was %s)", stored, s.clock.Timezone())
	return s.clock.SetTimezone(ctx, stored)
}

// Data is the full snapshot clients load on startup.
func (s *ChallengeService) Data(ctx context.Context) (*AppData, error) {
	state, err := s.State(ctx)
	if err != nil {
		return nil, err
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	logs, err := s.store.ListAllLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}

	out := &AppData{
		ChallengeState: *state,
		CurrentYear:    state.Today.Year,
		Users:          make([]*user.UserWithLogs, 0, len(users)),
		LastUpdated:    s.clock.Now().UTC(),
	}
	if state.StartDate != nil {
		out.CurrentYear = state.StartDate.Year
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Initials < users[j].Initials })
	for _, u := range users {
		entries := logs[u.Initials]
		if entries == nil {
			entries = []challenge.LogEntry{}
		}
		out.Users = append(out.Users, &user.UserWithLogs{User: u, Logs: entries})
	}
	return out, nil
}

// DayInfo is used by the background ticker.
func (s *ChallengeService) DayInfo(ctx context.Context) (challenge.DayInfo, error) {
	state, err := s.State(ctx)
	if err != nil {
		return challenge.DayInfo{}, err
	}
	return state.DayInfo, nil
}

func (s *ChallengeService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return errors.Join(errors.New("store unreachable"), err)
	}
	return nil
}
