package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/store"
	"pushupChallengeAPI/internal/timezone"
	"pushupChallengeAPI/internal/user"
)

type testEnv struct {
	store      store.Store
	clock      *timezone.Clock
	challenges *ChallengeService
	users      *UserService
	now        time.Time
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), ":memory:", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	env := &testEnv{store: st, now: now}
	env.clock = timezone.NewClock("UTC",
		timezone.WithNow(func() time.Time { return env.now }),
		timezone.WithPersister(st),
	)
	env.challenges = NewChallengeService(st, env.clock, logger.Nop())
	env.users = NewUserService(st, env.clock, logger.Nop())
	return env
}

func (e *testEnv) configure(t *testing.T, start, tz string) {
	t.Helper()
	_, err := e.challenges.Configure(context.Background(), ConfigureRequest{StartDate: start, TimezoneID: tz})
	require.NoError(t, err)
}

func (e *testEnv) login(t *testing.T, initials string) *user.UserWithLogs {
	t.Helper()
	u, _, err := e.users.Login(context.Background(), &user.LoginRequest{Initials: initials, Pin: "1234"})
	require.NoError(t, err)
	return u
}

func utc(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestConfigure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))

	t.Run("rejects bad input before persisting", func(t *testing.T) {
		_, err := env.challenges.Configure(ctx, ConfigureRequest{StartDate: "2024-02-30"})
		assert.ErrorIs(t, err, challenge.ErrInvalidStartDate)

		_, err = env.challenges.Configure(ctx, ConfigureRequest{StartDate: "2024-03-01", TimezoneID: "Mars/Olympus"})
		assert.ErrorIs(t, err, timezone.ErrInvalidTimezone)

		cfg, err := env.store.GetChallenge(ctx)
		require.NoError(t, err)
		assert.False(t, cfg.Configured())
		assert.Equal(t, "UTC", env.clock.Timezone())
	})

	env.login(t, "AB")
	state, err := env.challenges.Configure(ctx, ConfigureRequest{StartDate: "2024-03-01", TimezoneID: "America/Halifax"})
	require.NoError(t, err)
	assert.Equal(t, "America/Halifax", state.Timezone)
	assert.Equal(t, challenge.PhasePending, state.DayInfo.Phase)
	assert.Equal(t, 366, state.DayInfo.DaysInChallenge)

	tz, err := env.store.LoadTimezone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "America/Halifax", tz)

	u, err := env.users.GetUserWithLogs(ctx, "AB")
	require.NoError(t, err)
	assert.Len(t, u.Logs, 366)

	t.Run("empty timezone keeps the current zone", func(t *testing.T) {
		state, err := env.challenges.Configure(ctx, ConfigureRequest{StartDate: "2025-01-01"})
		require.NoError(t, err)
		assert.Equal(t, "America/Halifax", *state.TimezoneID)
		assert.Equal(t, 365, state.DayInfo.DaysInChallenge)
	})
}

func TestData(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.March, 2, 12))

	data, err := env.challenges.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, challenge.PhaseNotConfigured, data.DayInfo.Phase)
	assert.Equal(t, 2024, data.CurrentYear)
	assert.Empty(t, data.Users)

	env.login(t, "CD")
	env.login(t, "AB")
	env.configure(t, "2024-03-01", "UTC")

	data, err = env.challenges.Data(ctx)
	require.NoError(t, err)
	require.Len(t, data.Users, 2)
	assert.Equal(t, "AB", data.Users[0].Initials)
	assert.Len(t, data.Users[1].Logs, 366)
	assert.Equal(t, 2, data.DayInfo.ChallengeDay)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))

	t.Run("not configured creates an empty user", func(t *testing.T) {
		u, created, err := env.users.Login(ctx, &user.LoginRequest{Initials: "ab ", Pin: "1234"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "AB", u.Initials)
		assert.Empty(t, u.Logs)
	})

	env.configure(t, "2024-03-01", "UTC")

	t.Run("pending creates with schedule", func(t *testing.T) {
		u, created, err := env.users.Login(ctx, &user.LoginRequest{Initials: "CD", Pin: "42"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Len(t, u.Logs, 366)
	})

	t.Run("existing user logs in", func(t *testing.T) {
		u, created, err := env.users.Login(ctx, &user.LoginRequest{Initials: "ab", Pin: "1234"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Len(t, u.Logs, 366)
	})

	t.Run("wrong pin", func(t *testing.T) {
		_, _, err := env.users.Login(ctx, &user.LoginRequest{Initials: "AB", Pin: "0000"})
		assert.ErrorIs(t, err, ErrInvalidPin)
	})

	t.Run("no new users once active", func(t *testing.T) {
		env.now = utc(2024, time.March, 5, 12)
		_, _, err := env.users.Login(ctx, &user.LoginRequest{Initials: "EF", Pin: "1"})
		assert.ErrorIs(t, err, ErrChallengeStarted)

		_, _, err = env.users.Login(ctx, &user.LoginRequest{Initials: "AB", Pin: "1234"})
		assert.NoError(t, err)
	})
}

func TestLogPushups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))

	_, err := env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 1, Count: 1})
	assert.ErrorIs(t, err, challenge.ErrChallengeNotConfigured)

	env.configure(t, "2024-03-01", "UTC")
	env.login(t, "AB")

	_, err = env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 1, Count: 1})
	assert.ErrorIs(t, err, challenge.ErrDayInFuture, "pending challenge")

	env.now = utc(2024, time.March, 3, 12)

	entry, err := env.users.LogPushups(ctx, "ab", &user.LogPushupsRequest{Day: 3, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusInProgress, entry.Status)

	entry, err = env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 3, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, entry.Status)

	entry, err = env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 3, Count: 5})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusOverAchieved, entry.Status)
	assert.Equal(t, 8, entry.PushupsDone)

	_, err = env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 4, Count: 1})
	assert.ErrorIs(t, err, challenge.ErrDayInFuture)

	_, err = env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 367, Count: 1})
	assert.ErrorIs(t, err, challenge.ErrLogNotFound)

	_, err = env.users.LogPushups(ctx, "ZZ", &user.LogPushupsRequest{Day: 1, Count: 1})
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	t.Run("finished challenge keeps days editable", func(t *testing.T) {
		env.now = utc(2025, time.June, 1, 12)
		entry, err := env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 366, Count: 366})
		require.NoError(t, err)
		assert.Equal(t, challenge.StatusCompleted, entry.Status)
	})
}

func TestConcurrentLogPushups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))
	env.configure(t, "2024-03-01", "UTC")
	env.login(t, "AB")
	env.now = utc(2024, time.March, 25, 12)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 20, Count: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := env.users.GetUserWithLogs(ctx, "AB")
	require.NoError(t, err)
	assert.Equal(t, 20, u.Logs[19].PushupsDone)
	assert.Equal(t, challenge.StatusCompleted, u.Logs[19].Status)
}

func TestUseBreakDay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))
	env.configure(t, "2024-03-01", "UTC")
	env.login(t, "AB")
	env.now = utc(2024, time.April, 10, 12)

	entry, err := env.users.UseBreakDay(ctx, "AB", &user.BreakDayRequest{Day: 5})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusBreak, entry.Status)

	_, err = env.users.UseBreakDay(ctx, "AB", &user.BreakDayRequest{Day: 6})
	assert.ErrorIs(t, err, challenge.ErrBreakDayExhausted)

	_, err = env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 5, Count: 1})
	assert.ErrorIs(t, err, challenge.ErrDayOnBreak)

	// Day 32 is April 1st, a fresh month.
	_, err = env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 32, Count: 1})
	require.NoError(t, err)
	_, err = env.users.UseBreakDay(ctx, "AB", &user.BreakDayRequest{Day: 32})
	assert.ErrorIs(t, err, challenge.ErrBreakNotAllowed)

	entry, err = env.users.UseBreakDay(ctx, "AB", &user.BreakDayRequest{Day: 33})
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.April, Day: 2}, entry.Date)

	u, err := env.store.GetUser(ctx, "AB")
	require.NoError(t, err)
	assert.Equal(t, 1, u.BreakDaysUsed[2])
	assert.Equal(t, 1, u.BreakDaysUsed[3])
	assert.Equal(t, 2, u.BreakDaysUsed.Total())
}

func TestStatsAndCalendar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))
	env.configure(t, "2024-03-01", "UTC")
	env.login(t, "AB")
	env.now = utc(2024, time.March, 4, 12)

	for day := 1; day <= 2; day++ {
		_, err := env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: day, Count: day})
		require.NoError(t, err)
	}
	_, err := env.users.UseBreakDay(ctx, "AB", &user.BreakDayRequest{Day: 3})
	require.NoError(t, err)

	st, err := env.users.Stats(ctx, "AB")
	require.NoError(t, err)
	assert.Equal(t, 4, st.ChallengeDay)
	assert.Equal(t, 2, st.CompletedDays)
	assert.Equal(t, 1, st.BreakDaysTaken)

	_, err = env.users.Stats(ctx, "ZZ")
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	t.Run("current month by default", func(t *testing.T) {
		cal, err := env.users.Calendar(ctx, "AB", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 2024, cal.Year)
		assert.Equal(t, 3, cal.Month)
		assert.False(t, cal.BreakDayAvailable)
		require.Len(t, cal.Days, 31)

		assert.Equal(t, challenge.StatusCompleted, cal.Days[0].Status)
		assert.Equal(t, challenge.StatusBreak, cal.Days[2].Status)
		assert.Equal(t, challenge.StatusToday, cal.Days[3].Status)
		assert.True(t, cal.Days[3].IsToday)
		assert.Equal(t, challenge.StatusPending, cal.Days[4].Status)
		assert.True(t, cal.Days[30].InChallenge)
	})

	t.Run("month outside the challenge", func(t *testing.T) {
		cal, err := env.users.Calendar(ctx, "AB", 2024, 2)
		require.NoError(t, err)
		require.Len(t, cal.Days, 29)
		for _, d := range cal.Days {
			assert.False(t, d.InChallenge)
		}
		assert.True(t, cal.BreakDayAvailable)
	})

	t.Run("missed days show once past", func(t *testing.T) {
		env.now = utc(2024, time.March, 10, 12)
		cal, err := env.users.Calendar(ctx, "AB", 2024, 3)
		require.NoError(t, err)
		assert.Equal(t, challenge.StatusMissed, cal.Days[3].Status)
	})

	_, err = env.users.Calendar(ctx, "AB", 2024, 13)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))

	env.login(t, "AB")
	assert.ErrorIs(t, env.users.ResetUser(ctx, "AB"), challenge.ErrChallengeNotConfigured)

	env.configure(t, "2024-03-01", "UTC")
	env.now = utc(2024, time.March, 5, 12)

	_, err := env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 2, Count: 5})
	require.NoError(t, err)

	t.Run("correct progress", func(t *testing.T) {
		n := 1
		_, err := env.users.CorrectProgress(ctx, "AB", &user.CorrectProgressRequest{Day: 2, Count: &n})
		assert.ErrorIs(t, err, challenge.ErrStatusRegression)

		n = 2
		entry, err := env.users.CorrectProgress(ctx, "AB", &user.CorrectProgressRequest{Day: 2, Count: &n})
		require.NoError(t, err)
		assert.Equal(t, challenge.StatusCompleted, entry.Status)

		n = 50
		entry, err = env.users.CorrectProgress(ctx, "AB", &user.CorrectProgressRequest{Day: 40, Count: &n})
		require.NoError(t, err)
		assert.Equal(t, challenge.StatusOverAchieved, entry.Status)
	})

	t.Run("pin", func(t *testing.T) {
		require.NoError(t, env.users.UpdatePin(ctx, "ab", &user.UpdatePinRequest{Pin: "7777"}))
		_, err := env.users.Authenticate(ctx, "AB", "1234")
		assert.ErrorIs(t, err, ErrInvalidPin)
		_, err = env.users.Authenticate(ctx, "AB", "7777")
		assert.NoError(t, err)
	})

	t.Run("reset", func(t *testing.T) {
		require.NoError(t, env.users.ResetUser(ctx, "AB"))
		u, err := env.users.GetUserWithLogs(ctx, "AB")
		require.NoError(t, err)
		assert.Equal(t, challenge.GenerateSchedule(civil.Date{Year: 2024, Month: time.March, Day: 1}), u.Logs)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, env.users.DeleteUser(ctx, "AB"))
		assert.ErrorIs(t, env.users.DeleteUser(ctx, "AB"), store.ErrUserNotFound)
	})
}

func TestRestoreTimezoneAfterRestart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))
	env.configure(t, "2024-03-01", "America/Halifax")

	// 02:00 UTC on March 1st is still February 29th in Halifax.
	env.now = utc(2024, time.March, 1, 2)

	restart := func(initial string) (*timezone.Clock, *ChallengeService) {
		clock := timezone.NewClock(initial,
			timezone.WithNow(func() time.Time { return env.now }),
			timezone.WithPersister(env.store),
		)
		return clock, NewChallengeService(env.store, clock, logger.Nop())
	}

	t.Run("host zone replaced by the stored zone", func(t *testing.T) {
		clock, challenges := restart("UTC")
		require.NoError(t, challenges.RestoreTimezone(ctx, ""))
		assert.Equal(t, "America/Halifax", clock.Timezone())

		state, err := challenges.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, challenge.PhasePending, state.DayInfo.Phase)
		assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 29}, state.Today)
	})

	t.Run("disagreeing override ignored", func(t *testing.T) {
		clock, challenges := restart("Europe/Berlin")
		require.NoError(t, challenges.RestoreTimezone(ctx, "Europe/Berlin"))
		assert.Equal(t, "America/Halifax", clock.Timezone())
	})

	t.Run("override kept before configuration", func(t *testing.T) {
		fresh := newTestEnv(t, utc(2024, time.February, 20, 12))
		fresh.clock = timezone.NewClock("Europe/Berlin", timezone.WithPersister(fresh.store))
		challenges := NewChallengeService(fresh.store, fresh.clock, logger.Nop())
		require.NoError(t, challenges.RestoreTimezone(ctx, "Europe/Berlin"))
		assert.Equal(t, "Europe/Berlin", fresh.clock.Timezone())
	})
}

func TestLogPushupsRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, utc(2024, time.February, 20, 12))
	env.configure(t, "2024-03-01", "UTC")
	env.login(t, "AB")
	env.now = utc(2024, time.March, 3, 12)

	entry, err := env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 3, Count: challenge.MaxPushups})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusOverAchieved, entry.Status)

	_, err = env.users.LogPushups(ctx, "AB", &user.LogPushupsRequest{Day: 3, Count: 1})
	assert.ErrorIs(t, err, challenge.ErrInvalidCount)

	u, err := env.users.GetUserWithLogs(ctx, "AB")
	require.NoError(t, err)
	assert.Equal(t, challenge.MaxPushups, u.Logs[2].PushupsDone)
}

// reconfiguringStore commits a Configure right before each user insert.
type reconfiguringStore struct {
	store.Store
	before func()
}

func (s reconfiguringStore) CreateUser(ctx context.Context, u *user.User, plan store.ScheduleFunc) error {
	s.before()
	return s.Store.CreateUser(ctx, u, plan)
}

func TestLoginSeesConcurrentConfigure(t *testing.T) {
	ctx := context.Background()

	t.Run("new schedule", func(t *testing.T) {
		env := newTestEnv(t, utc(2024, time.February, 20, 12))
		users := NewUserService(reconfiguringStore{Store: env.store, before: func() {
			env.configure(t, "2024-03-01", "UTC")
		}}, env.clock, logger.Nop())

		u, created, err := users.Login(ctx, &user.LoginRequest{Initials: "AB", Pin: "1234"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Len(t, u.Logs, 366)

		stored, err := env.store.ListLogs(ctx, "AB")
		require.NoError(t, err)
		assert.Len(t, stored, 366)
	})

	t.Run("challenge already running", func(t *testing.T) {
		env := newTestEnv(t, utc(2024, time.February, 20, 12))
		users := NewUserService(reconfiguringStore{Store: env.store, before: func() {
			env.configure(t, "2024-02-01", "UTC")
		}}, env.clock, logger.Nop())

		_, _, err := users.Login(ctx, &user.LoginRequest{Initials: "AB", Pin: "1234"})
		assert.ErrorIs(t, err, ErrChallengeStarted)

		_, err = env.store.GetUser(ctx, "AB")
		assert.ErrorIs(t, err, store.ErrUserNotFound)
	})
}
