// Package store persists the challenge configuration, users and their daily
// logs. PostgreSQL and SQLite backends share one interface and one schema.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/config"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/user"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

//go:embed migrations
var migrationsFS embed.FS

// DayMutator edits one user's log entry inside the store transaction. The
// user's break-day counters may be changed too; both are written back only
// when the mutator returns nil.
type DayMutator func(u *user.User, l *challenge.LogEntry) error

// ScheduleFunc builds a new user's logs from the challenge configuration as
// read inside the creating transaction. An error aborts the insert.
type ScheduleFunc func(cfg challenge.Config) ([]challenge.LogEntry, error)

type Store interface {
	Ping(ctx context.Context) error
	Close() error

	LoadTimezone(ctx context.Context) (string, error)
	SaveTimezone(ctx context.Context, id string) error

	GetChallenge(ctx context.Context) (challenge.Config, error)
	// ReplaceChallenge stores cfg and replaces every user's logs with schedule
	// in one transaction. Break-day counters are zeroed.
	ReplaceChallenge(ctx context.Context, cfg challenge.Config, schedule []challenge.LogEntry) error

	// CreateUser inserts u with the logs plan returns. The configuration plan
	// sees cannot be replaced until the user is committed.
	CreateUser(ctx context.Context, u *user.User, plan ScheduleFunc) error
	GetUser(ctx context.Context, initials string) (*user.User, error)
	ListUsers(ctx context.Context) ([]*user.User, error)
	ListLogs(ctx context.Context, initials string) ([]challenge.LogEntry, error)
	ListAllLogs(ctx context.Context) (map[string][]challenge.LogEntry, error)

	// UpdateDay serializes read-modify-write of one user's day.
	UpdateDay(ctx context.Context, initials string, day int, fn DayMutator) (challenge.LogEntry, error)

	ResetUser(ctx context.Context, initials string, schedule []challenge.LogEntry) error
	DeleteUser(ctx context.Context, initials string) error
	UpdatePin(ctx context.Context, initials, pin string) error
}

// New opens the backend named in cfg and brings its schema up to date.
func New(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (Store, error) {
	switch cfg.Backend {
	case "postgres":
		return NewPostgresStore(ctx, cfg, log)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func migrations(dir string) fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations/"+dir)
	if err != nil {
		panic(err)
	}
	return sub
}

func runMigrations(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string, log logger.Logger) error {
	provider, err := goose.NewProvider(dialect, db, migrations(dir))
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		log.Infof("Store: applied migration %s in %s", r.Source.Path, r.Duration)
	}
	return nil
}
