package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/config"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/user"
)

const uniqueViolation = "23505"

// pgxPool is the part of *pgxpool.Pool the store uses. pgxmock satisfies it.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type PostgresStore struct {
	db  pgxPool
	log logger.Logger
}

var logColumns = []string{"user_initials", "day_of_challenge", "log_date", "pushups_done", "goal", "status"}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// goose needs database/sql; borrow the pool for the duration of the run.
	sqlDB := stdlib.OpenDBFromPool(pool)
	err = runMigrations(ctx, goose.DialectPostgres, sqlDB, "postgres", log)
	sqlDB.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Info("Store: connected to PostgreSQL")
	return newPostgresStore(pool, log), nil
}

func newPostgresStore(db pgxPool, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) LoadTimezone(ctx context.Context) (string, error) {
	var tz *string
	if err := s.db.QueryRow(ctx, `SELECT timezone_id FROM challenge WHERE id = 1`).Scan(&tz); err != nil {
		return "", fmt.Errorf("failed to load timezone: %w", err)
	}
	if tz == nil {
		return "", nil
	}
	return *tz, nil
}

func (s *PostgresStore) SaveTimezone(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `UPDATE challenge SET timezone_id = $1, updated_at = NOW() WHERE id = 1`, id)
	if err != nil {
		return fmt.Errorf("failed to save timezone: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context) (challenge.Config, error) {
	return scanChallenge(s.db.QueryRow(ctx, `
		SELECT to_char(start_date, 'YYYY-MM-DD'), timezone_id
		FROM challenge WHERE id = 1`))
}

func scanChallenge(row pgx.Row) (challenge.Config, error) {
	var start, tz *string
	if err := row.Scan(&start, &tz); err != nil {
		return challenge.Config{}, fmt.Errorf("failed to get challenge: %w", err)
	}

	var cfg challenge.Config
	if start != nil {
		d, err := civil.ParseDate(*start)
		if err != nil {
			return challenge.Config{}, fmt.Errorf("decoding start date %q: %w", *start, err)
		}
		cfg.StartDate = &d
	}
	cfg.TimezoneID = tz
	return cfg, nil
}

func (s *PostgresStore) ReplaceChallenge(ctx context.Context, cfg challenge.Config, schedule []challenge.LogEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var start *time.Time
	if cfg.StartDate != nil {
		t := cfg.StartDate.In(time.UTC)
		start = &t
	}
	if _, err := tx.Exec(ctx,
		`UPDATE challenge SET start_date = $1, timezone_id = $2, updated_at = NOW() WHERE id = 1`,
		start, cfg.TimezoneID,
	); err != nil {
		return fmt.Errorf("failed to update challenge: %w", err)
	}

	// Lock every user so concurrent log writes wait for the new schedule.
	rows, err := tx.Query(ctx, `SELECT initials FROM users ORDER BY initials FOR UPDATE`)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	initials, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to scan users: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM logs`); err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET break_days_used = $1`, breakDaysToArray(user.BreakDays{})); err != nil {
		return fmt.Errorf("failed to reset break days: %w", err)
	}
	if err := copyLogs(ctx, tx, initials, schedule); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *user.User, plan ScheduleFunc) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// ReplaceChallenge updates this row first, so holding it shared keeps a
	// reconfigure from committing between the read and the insert.
	cfg, err := scanChallenge(tx.QueryRow(ctx, `
		SELECT to_char(start_date, 'YYYY-MM-DD'), timezone_id
		FROM challenge WHERE id = 1 FOR SHARE`))
	if err != nil {
		return err
	}
	schedule, err := plan(cfg)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (initials, pin, break_days_used, created_at)
		VALUES ($1, $2, $3, $4)`,
		u.Initials, u.Pin, breakDaysToArray(u.BreakDaysUsed), u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Initials)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	if err := copyLogs(ctx, tx, []string{u.Initials}, schedule); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, initials string) (*user.User, error) {
	return scanUser(s.db.QueryRow(ctx, `
		SELECT initials, pin, break_days_used, created_at
		FROM users WHERE initials = $1`, initials), initials)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT initials, pin, break_days_used, created_at
		FROM users ORDER BY initials`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows, "")
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) ListLogs(ctx context.Context, initials string) ([]challenge.LogEntry, error) {
	all, err := s.queryLogs(ctx, `
		SELECT user_initials, day_of_challenge, to_char(log_date, 'YYYY-MM-DD'), pushups_done, goal, status
		FROM logs WHERE user_initials = $1 ORDER BY day_of_challenge`, initials)
	if err != nil {
		return nil, err
	}
	return all[initials], nil
}

func (s *PostgresStore) ListAllLogs(ctx context.Context) (map[string][]challenge.LogEntry, error) {
	return s.queryLogs(ctx, `
		SELECT user_initials, day_of_challenge, to_char(log_date, 'YYYY-MM-DD'), pushups_done, goal, status
		FROM logs ORDER BY user_initials, day_of_challenge`)
}

func (s *PostgresStore) queryLogs(ctx context.Context, query string, args ...any) (map[string][]challenge.LogEntry, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]challenge.LogEntry)
	for rows.Next() {
		initials, l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out[initials] = append(out[initials], l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateDay(ctx context.Context, initials string, day int, fn DayMutator) (challenge.LogEntry, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return challenge.LogEntry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	u, err := scanUser(tx.QueryRow(ctx, `
		SELECT initials, pin, break_days_used, created_at
		FROM users WHERE initials = $1 FOR UPDATE`, initials), initials)
	if err != nil {
		return challenge.LogEntry{}, err
	}

	_, entry, err := scanLog(tx.QueryRow(ctx, `
		SELECT user_initials, day_of_challenge, to_char(log_date, 'YYYY-MM-DD'), pushups_done, goal, status
		FROM logs WHERE user_initials = $1 AND day_of_challenge = $2 FOR UPDATE`, initials, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return challenge.LogEntry{}, fmt.Errorf("%w: %s day %d", challenge.ErrLogNotFound, initials, day)
		}
		return challenge.LogEntry{}, err
	}

	if err := fn(u, &entry); err != nil {
		return challenge.LogEntry{}, err
	}
	if err := entry.Validate(); err != nil {
		return challenge.LogEntry{}, fmt.Errorf("refusing to store inconsistent log: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE logs SET pushups_done = $1, status = $2
		WHERE user_initials = $3 AND day_of_challenge = $4`,
		entry.PushupsDone, string(entry.Status), initials, day,
	); err != nil {
		return challenge.LogEntry{}, fmt.Errorf("failed to update log: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET break_days_used = $1 WHERE initials = $2`,
		breakDaysToArray(u.BreakDaysUsed), initials,
	); err != nil {
		return challenge.LogEntry{}, fmt.Errorf("failed to update break days: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return challenge.LogEntry{}, fmt.Errorf("failed to commit log: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) ResetUser(ctx context.Context, initials string, schedule []challenge.LogEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE users SET break_days_used = $1 WHERE initials = $2`,
		breakDaysToArray(user.BreakDays{}), initials)
	if err != nil {
		return fmt.Errorf("failed to reset break days: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, initials)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM logs WHERE user_initials = $1`, initials); err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	if err := copyLogs(ctx, tx, []string{initials}, schedule); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, initials string) error {
	// logs cascade.
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE initials = $1`, initials)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, initials)
	}
	return nil
}

func (s *PostgresStore) UpdatePin(ctx context.Context, initials, pin string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET pin = $1 WHERE initials = $2`, pin, initials)
	if err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, initials)
	}
	return nil
}

func copyLogs(ctx context.Context, tx pgx.Tx, initials []string, schedule []challenge.LogEntry) error {
	if len(initials) == 0 || len(schedule) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(initials)*len(schedule))
	for _, in := range initials {
		for _, l := range schedule {
			rows = append(rows, []any{in, l.DayOfChallenge, l.Date.In(time.UTC), l.PushupsDone, l.Goal, string(l.Status)})
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"logs"}, logColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("failed to copy logs: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row, initials string) (*user.User, error) {
	var (
		u     user.User
		breaks []int32
	)
	if err := row.Scan(&u.Initials, &u.Pin, &breaks, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, initials)
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	for i := 0; i < len(breaks) && i < len(u.BreakDaysUsed); i++ {
		u.BreakDaysUsed[i] = int(breaks[i])
	}
	return &u, nil
}

func scanLog(row pgx.Row) (string, challenge.LogEntry, error) {
	var (
		initials string
		date     string
		status   string
		l        challenge.LogEntry
	)
	if err := row.Scan(&initials, &l.DayOfChallenge, &date, &l.PushupsDone, &l.Goal, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", l, err
		}
		return "", l, fmt.Errorf("failed to scan log: %w", err)
	}
	d, err := civil.ParseDate(date)
	if err != nil {
		return "", l, fmt.Errorf("decoding log date %q: %w", date, err)
	}
	l.Date = d
	l.Status = challenge.Status(status)
	return initials, l, nil
}

func breakDaysToArray(b user.BreakDays) []int32 {
	out := make([]int32, len(b))
	for i, n := range b {
		out[i] = int32(n)
	}
	return out
}
