package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/config"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/user"
)

// setupPostgres connects to TEST_DATABASE_URL and empties the tables.
func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewPostgresStore(ctx, config.DatabaseConfig{
		Backend:         "postgres",
		URL:             url,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.db.Exec(ctx, `DELETE FROM users`)
	require.NoError(t, err)
	_, err = s.db.Exec(ctx, `UPDATE challenge SET start_date = NULL, timezone_id = NULL WHERE id = 1`)
	require.NoError(t, err)
	return s
}

func TestPostgresIntegrationFlow(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	schedule := challenge.GenerateSchedule(testStart)

	tz := "America/Halifax"
	require.NoError(t, s.ReplaceChallenge(ctx, challenge.Config{StartDate: &testStart, TimezoneID: &tz}, schedule))
	require.NoError(t, s.CreateUser(ctx, newUser("AB"), fixed(schedule)))
	assert.ErrorIs(t, s.CreateUser(ctx, newUser("AB"), fixed(schedule)), ErrUserExists)

	cfg, err := s.GetChallenge(ctx)
	require.NoError(t, err)
	assert.Equal(t, testStart, *cfg.StartDate)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateDay(ctx, "AB", 20, func(_ *user.User, l *challenge.LogEntry) error {
				return l.AddPushups(1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	logs, err := s.ListLogs(ctx, "AB")
	require.NoError(t, err)
	require.Len(t, logs, 366)
	assert.Equal(t, 20, logs[19].PushupsDone)
	assert.Equal(t, challenge.StatusCompleted, logs[19].Status)
	assert.Equal(t, schedule[365].Date, logs[365].Date)

	require.NoError(t, s.ReplaceChallenge(ctx, cfg, schedule))
	logs, err = s.ListLogs(ctx, "AB")
	require.NoError(t, err)
	assert.Equal(t, schedule, logs)

	require.NoError(t, s.DeleteUser(ctx, "AB"))
	all, err := s.ListAllLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
