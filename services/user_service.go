package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/metrics"
	"pushupChallengeAPI/internal/stats"
	"pushupChallengeAPI/internal/store"
	"pushupChallengeAPI/internal/timezone"
	"pushupChallengeAPI/internal/types/calendar"
	"pushupChallengeAPI/internal/user"
)

type UserService struct {
	store    store.Store
	clock    *timezone.Clock
	calendar *challenge.Calendar
	log      logger.Logger
}

func NewUserService(st store.Store, clock *timezone.Clock, log logger.Logger) *UserService {
	return &UserService{
		store:    st,
		clock:    clock,
		calendar: challenge.NewCalendar(clock),
		log:      log,
	}
}

func NormalizeInitials(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Login signs in an existing user or creates a new one. New users cannot
// join once the challenge is running.
func (s *UserService) Login(ctx context.Context, req *user.LoginRequest) (*user.UserWithLogs, bool, error) {
	initials := NormalizeInitials(req.Initials)

	u, err := s.Authenticate(ctx, initials, req.Pin)
	switch {
	case err == nil:
		out, err := s.withLogs(ctx, u)
		return out, false, err
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, false, err
	}

	// The join check and the schedule are evaluated against the configuration
	// the store holds while the user is inserted.
	var schedule []challenge.LogEntry
	plan := func(cfg challenge.Config) ([]challenge.LogEntry, error) {
		if s.calendar.DayInfo(cfg.StartDate, s.clock.Now()).Active() {
			return nil, ErrChallengeStarted
		}
		if cfg.Configured() {
			schedule = challenge.GenerateSchedule(*cfg.StartDate)
		}
		return schedule, nil
	}

	u = &user.User{
		Initials:  initials,
		Pin:       req.Pin,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u, plan); err != nil {
		switch {
		case errors.Is(err, ErrChallengeStarted):
			return nil, false, err
		case errors.Is(err, store.ErrUserExists):
			// Lost a race with a concurrent create; treat as a login.
			u, err := s.Authenticate(ctx, initials, req.Pin)
			if err != nil {
				return nil, false, err
			}
			out, err := s.withLogs(ctx, u)
			return out, false, err
		default:
			return nil, false, fmt.Errorf("failed to create user: %w", err)
		}
	}
	s.log.Infof("User created: %s", initials)

	if schedule == nil {
		schedule = []challenge.LogEntry{}
	}
	return &user.UserWithLogs{User: u, Logs: schedule}, true, nil
}

// Authenticate checks the PIN of an existing user.
func (s *UserService) Authenticate(ctx context.Context, initials, pin string) (*user.User, error) {
	u, err := s.store.GetUser(ctx, NormalizeInitials(initials))
	if err != nil {
		return nil, err
	}
	if u.Pin != pin {
		return nil, ErrInvalidPin
	}
	return u, nil
}

func (s *UserService) GetUserWithLogs(ctx context.Context, initials string) (*user.UserWithLogs, error) {
	u, err := s.store.GetUser(ctx, NormalizeInitials(initials))
	if err != nil {
		return nil, err
	}
	return s.withLogs(ctx, u)
}

func (s *UserService) withLogs(ctx context.Context, u *user.User) (*user.UserWithLogs, error) {
	logs, err := s.store.ListLogs(ctx, u.Initials)
	if err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}
	if logs == nil {
		logs = []challenge.LogEntry{}
	}
	return &user.UserWithLogs{User: u, Logs: logs}, nil
}

func (s *UserService) dayInfo(ctx context.Context) (challenge.Config, challenge.DayInfo, error) {
	cfg, err := s.store.GetChallenge(ctx)
	if err != nil {
		return cfg, challenge.DayInfo{}, fmt.Errorf("failed to load challenge: %w", err)
	}
	return cfg, s.calendar.DayInfo(cfg.StartDate, s.clock.Now()), nil
}

// editableDay rejects days the user may not touch yet.
func (s *UserService) editableDay(ctx context.Context, day int) error {
	cfg, info, err := s.dayInfo(ctx)
	if err != nil {
		return err
	}
	if !cfg.Configured() {
		return challenge.ErrChallengeNotConfigured
	}
	if day < 1 || day > info.DaysInChallenge {
		return fmt.Errorf("%w: day %d", challenge.ErrLogNotFound, day)
	}
	probe := challenge.LogEntry{DayOfChallenge: day}
	if !probe.Editable(info) {
		return fmt.Errorf("%w: day %d", challenge.ErrDayInFuture, day)
	}
	return nil
}

// LogPushups adds count push-ups to the user's day.
func (s *UserService) LogPushups(ctx context.Context, initials string, req *user.LogPushupsRequest) (challenge.LogEntry, error) {
	if err := s.editableDay(ctx, req.Day); err != nil {
		return challenge.LogEntry{}, err
	}

	entry, err := s.store.UpdateDay(ctx, NormalizeInitials(initials), req.Day, func(_ *user.User, l *challenge.LogEntry) error {
		return l.AddPushups(req.Count)
	})
	if err != nil {
		return challenge.LogEntry{}, err
	}

	metrics.PushupsLogged.Add(float64(req.Count))
	metrics.DayTransitions.WithLabelValues("log", string(entry.Status)).Inc()
	return entry, nil
}

// UseBreakDay marks the day as a break and charges the allowance of the
// month the day falls in.
func (s *UserService) UseBreakDay(ctx context.Context, initials string, req *user.BreakDayRequest) (challenge.LogEntry, error) {
	if err := s.editableDay(ctx, req.Day); err != nil {
		return challenge.LogEntry{}, err
	}

	entry, err := s.store.UpdateDay(ctx, NormalizeInitials(initials), req.Day, func(u *user.User, l *challenge.LogEntry) error {
		month := l.MonthIndex()
		if !u.BreakDaysUsed.Available(month) {
			return challenge.ErrBreakDayExhausted
		}
		if err := l.MarkBreak(); err != nil {
			return err
		}
		u.BreakDaysUsed[month]++
		return nil
	})
	if err != nil {
		if errors.Is(err, challenge.ErrBreakDayExhausted) {
			metrics.BreakDaysRejected.Inc()
		}
		return challenge.LogEntry{}, err
	}

	metrics.DayTransitions.WithLabelValues("break", string(entry.Status)).Inc()
	return entry, nil
}

func (s *UserService) Stats(ctx context.Context, initials string) (*stats.UserStats, error) {
	_, info, err := s.dayInfo(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, NormalizeInitials(initials)); err != nil {
		return nil, err
	}
	logs, err := s.store.ListLogs(ctx, NormalizeInitials(initials))
	if err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}
	return stats.Compute(logs, info), nil
}

// Calendar renders one civil month for the user. Zero year or month means
// the current month in the challenge timezone.
func (s *UserService) Calendar(ctx context.Context, initials string, year, month int) (*calendar.CalendarResponse, error) {
	if month < 0 || month > 12 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}

	u, err := s.store.GetUser(ctx, NormalizeInitials(initials))
	if err != nil {
		return nil, err
	}
	cfg, info, err := s.dayInfo(ctx)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()
	if year == 0 {
		year = today.Year
	}
	if month == 0 {
		month = int(today.Month)
	}

	logs, err := s.store.ListLogs(ctx, u.Initials)
	if err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}
	byDate := make(map[civil.Date]challenge.LogEntry, len(logs))
	for _, l := range logs {
		byDate[l.Date] = l
	}

	resp := &calendar.CalendarResponse{
		Year:              year,
		Month:             month,
		BreakDayAvailable: u.BreakDaysUsed.Available(month - 1),
	}
	first := civil.Date{Year: year, Month: time.Month(month), Day: 1}
	for d := first; d.Month == first.Month; d = d.AddDays(1) {
		day := &calendar.CalendarDay{Date: d, IsToday: d == today}
		if l, ok := byDate[d]; ok && cfg.Configured() {
			day.InChallenge = true
			day.DayOfChallenge = l.DayOfChallenge
			day.Goal = l.Goal
			day.PushupsDone = l.PushupsDone
			day.Status = challenge.DisplayStatus(l, info)
		}
		resp.Days = append(resp.Days, day)
	}
	return resp, nil
}

// ResetUser regenerates the user's schedule from the configured start date.
func (s *UserService) ResetUser(ctx context.Context, initials string) error {
	cfg, err := s.store.GetChallenge(ctx)
	if err != nil {
		return fmt.Errorf("failed to load challenge: %w", err)
	}
	if !cfg.Configured() {
		return challenge.ErrChallengeNotConfigured
	}
	if err := s.store.ResetUser(ctx, NormalizeInitials(initials), challenge.GenerateSchedule(*cfg.StartDate)); err != nil {
		return err
	}
	s.log.Infof("User reset: %s", NormalizeInitials(initials))
	return nil
}

func (s *UserService) DeleteUser(ctx context.Context, initials string) error {
	if err := s.store.DeleteUser(ctx, NormalizeInitials(initials)); err != nil {
		return err
	}
	s.log.Infof("User deleted: %s", NormalizeInitials(initials))
	return nil
}

func (s *UserService) UpdatePin(ctx context.Context, initials string, req *user.UpdatePinRequest) error {
	return s.store.UpdatePin(ctx, NormalizeInitials(initials), req.Pin)
}

// CorrectProgress overwrites the push-up count of a day, future days
// included.
func (s *UserService) CorrectProgress(ctx context.Context, initials string, req *user.CorrectProgressRequest) (challenge.LogEntry, error) {
	entry, err := s.store.UpdateDay(ctx, NormalizeInitials(initials), req.Day, func(_ *user.User, l *challenge.LogEntry) error {
		return l.CorrectPushups(*req.Count)
	})
	if err != nil {
		return challenge.LogEntry{}, err
	}
	metrics.DayTransitions.WithLabelValues("correct", string(entry.Status)).Inc()
	return entry, nil
}
