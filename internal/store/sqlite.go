package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/user"
)

// SQLiteStore keeps everything in one SQLite file. It runs on a single
// connection, so transactions are serialized and ":memory:" databases work.
type SQLiteStore struct {
	db  *sqlx.DB
	log logger.Logger
}

type sqliteLogRow struct {
	Initials       string `db:"user_initials"`
	DayOfChallenge int    `db:"day_of_challenge"`
	LogDate        string `db:"log_date"`
	PushupsDone    int    `db:"pushups_done"`
	Goal           int    `db:"goal"`
	Status         string `db:"status"`
}

type sqliteUserRow struct {
	Initials      string `db:"initials"`
	Pin           string `db:"pin"`
	BreakDaysUsed string `db:"break_days_used"`
	CreatedAt     string `db:"created_at"`
}

// sqlitePragmas run on every new connection the driver opens.
var sqlitePragmas = []string{"journal_mode(WAL)", "foreign_keys(1)", "busy_timeout(5000)"}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func NewSQLiteStore(ctx context.Context, path string, log logger.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite db: %w", err)
	}

	if err := runMigrations(ctx, goose.DialectSQLite3, db.DB, "sqlite", log); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	log.Infof("Store: sqlite ready at %s", path)
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadTimezone(ctx context.Context) (string, error) {
	var tz sql.NullString
	if err := s.db.GetContext(ctx, &tz, "SELECT timezone_id FROM challenge WHERE id = 1"); err != nil {
		return "", fmt.Errorf("failed to load timezone: %w", err)
	}
	return tz.String, nil
}

func (s *SQLiteStore) SaveTimezone(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE challenge SET timezone_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1", id)
	if err != nil {
		return fmt.Errorf("failed to save timezone: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChallenge(ctx context.Context) (challenge.Config, error) {
	return s.getChallenge(ctx, s.db)
}

func (s *SQLiteStore) getChallenge(ctx context.Context, q sqlx.QueryerContext) (challenge.Config, error) {
	var row struct {
		StartDate  sql.NullString `db:"start_date"`
		TimezoneID sql.NullString `db:"timezone_id"`
	}
	if err := sqlx.GetContext(ctx, q, &row, "SELECT start_date, timezone_id FROM challenge WHERE id = 1"); err != nil {
		return challenge.Config{}, fmt.Errorf("failed to get challenge: %w", err)
	}
	return configFromColumns(row.StartDate, row.TimezoneID)
}

func (s *SQLiteStore) ReplaceChallenge(ctx context.Context, cfg challenge.Config, schedule []challenge.LogEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	start, tz := configToColumns(cfg)
	if _, err := tx.ExecContext(ctx,
		"UPDATE challenge SET start_date = ?, timezone_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		start, tz,
	); err != nil {
		return fmt.Errorf("failed to update challenge: %w", err)
	}

	var initials []string
	if err := tx.SelectContext(ctx, &initials, "SELECT initials FROM users ORDER BY initials"); err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM logs"); err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE users SET break_days_used = ?", encodeBreakDays(user.BreakDays{})); err != nil {
		return fmt.Errorf("failed to reset break days: %w", err)
	}
	for _, in := range initials {
		if err := s.insertLogs(ctx, tx, in, schedule); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *user.User, plan ScheduleFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cfg, err := s.getChallenge(ctx, tx)
	if err != nil {
		return err
	}
	schedule, err := plan(cfg)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (initials, pin, break_days_used, created_at) VALUES (?, ?, ?, ?)",
		u.Initials, u.Pin, encodeBreakDays(u.BreakDaysUsed), u.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Initials)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	if err := s.insertLogs(ctx, tx, u.Initials, schedule); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetUser(ctx context.Context, initials string) (*user.User, error) {
	return s.getUser(ctx, s.db, initials)
}

func (s *SQLiteStore) getUser(ctx context.Context, q sqlx.QueryerContext, initials string) (*user.User, error) {
	var row sqliteUserRow
	err := sqlx.GetContext(ctx, q, &row,
		"SELECT initials, pin, break_days_used, created_at FROM users WHERE initials = ?", initials)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, initials)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toUser()
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*user.User, error) {
	var rows []sqliteUserRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT initials, pin, break_days_used, created_at FROM users ORDER BY initials")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]*user.User, 0, len(rows))
	for _, r := range rows {
		u, err := r.toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context, initials string) ([]challenge.LogEntry, error) {
	var rows []sqliteLogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_initials, day_of_challenge, log_date, pushups_done, goal, status
		FROM logs WHERE user_initials = ? ORDER BY day_of_challenge`, initials)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	logs := make([]challenge.LogEntry, 0, len(rows))
	for _, r := range rows {
		l, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (s *SQLiteStore) ListAllLogs(ctx context.Context) (map[string][]challenge.LogEntry, error) {
	var rows []sqliteLogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_initials, day_of_challenge, log_date, pushups_done, goal, status
		FROM logs ORDER BY user_initials, day_of_challenge`)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	out := make(map[string][]challenge.LogEntry)
	for _, r := range rows {
		l, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		out[r.Initials] = append(out[r.Initials], l)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateDay(ctx context.Context, initials string, day int, fn DayMutator) (challenge.LogEntry, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return challenge.LogEntry{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	u, err := s.getUser(ctx, tx, initials)
	if err != nil {
		return challenge.LogEntry{}, err
	}

	var row sqliteLogRow
	err = tx.GetContext(ctx, &row, `
		SELECT user_initials, day_of_challenge, log_date, pushups_done, goal, status
		FROM logs WHERE user_initials = ? AND day_of_challenge = ?`, initials, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return challenge.LogEntry{}, fmt.Errorf("%w: %s day %d", challenge.ErrLogNotFound, initials, day)
		}
		return challenge.LogEntry{}, fmt.Errorf("failed to get log: %w", err)
	}
	entry, err := row.toEntry()
	if err != nil {
		return challenge.LogEntry{}, err
	}

	if err := fn(u, &entry); err != nil {
		return challenge.LogEntry{}, err
	}
	if err := entry.Validate(); err != nil {
		return challenge.LogEntry{}, fmt.Errorf("refusing to store inconsistent log: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE logs SET pushups_done = ?, status = ? WHERE user_initials = ? AND day_of_challenge = ?",
		entry.PushupsDone, string(entry.Status), initials, day,
	); err != nil {
		return challenge.LogEntry{}, fmt.Errorf("failed to update log: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET break_days_used = ? WHERE initials = ?",
		encodeBreakDays(u.BreakDaysUsed), initials,
	); err != nil {
		return challenge.LogEntry{}, fmt.Errorf("failed to update break days: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return challenge.LogEntry{}, fmt.Errorf("committing: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) ResetUser(ctx context.Context, initials string, schedule []challenge.LogEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE users SET break_days_used = ? WHERE initials = ?",
		encodeBreakDays(user.BreakDays{}), initials)
	if err != nil {
		return fmt.Errorf("failed to reset break days: %w", err)
	}
	if err := requireRow(res, initials); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM logs WHERE user_initials = ?", initials); err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	if err := s.insertLogs(ctx, tx, initials, schedule); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, initials string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM logs WHERE user_initials = ?", initials); err != nil {
		return fmt.Errorf("failed to delete logs: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE initials = ?", initials)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := requireRow(res, initials); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdatePin(ctx context.Context, initials, pin string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET pin = ? WHERE initials = ?", pin, initials)
	if err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	return requireRow(res, initials)
}

func (s *SQLiteStore) insertLogs(ctx context.Context, tx *sqlx.Tx, initials string, schedule []challenge.LogEntry) error {
	if len(schedule) == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO logs (user_initials, day_of_challenge, log_date, pushups_done, goal, status)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing log insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range schedule {
		if _, err := stmt.ExecContext(ctx,
			initials, l.DayOfChallenge, l.Date.String(), l.PushupsDone, l.Goal, string(l.Status),
		); err != nil {
			return fmt.Errorf("inserting log %s day %d: %w", initials, l.DayOfChallenge, err)
		}
	}
	return nil
}

func requireRow(res sql.Result, initials string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, initials)
	}
	return nil
}

func (r sqliteUserRow) toUser() (*user.User, error) {
	u := &user.User{Initials: r.Initials, Pin: r.Pin}
	if err := json.Unmarshal([]byte(r.BreakDaysUsed), &u.BreakDaysUsed); err != nil {
		return nil, fmt.Errorf("decoding break days for %s: %w", r.Initials, err)
	}
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("decoding created_at for %s: %w", r.Initials, err)
	}
	u.CreatedAt = created
	return u, nil
}

func (r sqliteLogRow) toEntry() (challenge.LogEntry, error) {
	d, err := civil.ParseDate(r.LogDate)
	if err != nil {
		return challenge.LogEntry{}, fmt.Errorf("decoding log date %q: %w", r.LogDate, err)
	}
	return challenge.LogEntry{
		DayOfChallenge: r.DayOfChallenge,
		Date:           d,
		PushupsDone:    r.PushupsDone,
		Goal:           r.Goal,
		Status:         challenge.Status(r.Status),
	}, nil
}

func encodeBreakDays(b user.BreakDays) string {
	out, _ := json.Marshal(b)
	return string(out)
}

func configToColumns(cfg challenge.Config) (start, tz sql.NullString) {
	if cfg.StartDate != nil {
		start = sql.NullString{String: cfg.StartDate.String(), Valid: true}
	}
	if cfg.TimezoneID != nil {
		tz = sql.NullString{String: *cfg.TimezoneID, Valid: true}
	}
	return start, tz
}

func configFromColumns(start, tz sql.NullString) (challenge.Config, error) {
	var cfg challenge.Config
	if start.Valid && start.String != "" {
		d, err := civil.ParseDate(start.String)
		if err != nil {
			return challenge.Config{}, fmt.Errorf("decoding start date %q: %w", start.String, err)
		}
		cfg.StartDate = &d
	}
	if tz.Valid && tz.String != "" {
		id := tz.String
		cfg.TimezoneID = &id
	}
	return cfg, nil
}
