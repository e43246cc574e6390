// Package timezone owns the challenge's configured IANA timezone and converts
// between civil dates in that zone and absolute instants.
package timezone

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/golang-sql/civil"

	"pushupChallengeAPI/internal/logger"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

// Persister stores the configured timezone so it survives restarts.
type Persister interface {
	SaveTimezone(ctx context.Context, id string) error
}

// Clock is the single source of truth for "what civil date is it now" in the
// configured timezone. It is created once by main and passed to whoever needs
// date math.
type Clock struct {
	mu  sync.RWMutex
	id  string
	loc *time.Location

	persister Persister
	log       logger.Logger
	now       func() time.Time
}

type Option func(*Clock)

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

func WithPersister(p Persister) Option {
	return func(c *Clock) { c.persister = p }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Clock) { c.log = l }
}

// NewClock starts with id, or UTC if id does not load.
func NewClock(id string, opts ...Option) *Clock {
	c := &Clock{
		now: time.Now,
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	loc, err := load(id)
	if err != nil {
		id, loc = "UTC", time.UTC
	}
	c.id, c.loc = id, loc
	return c
}

// ValidTimezone reports whether id names a zone in the tz database.
// "Local" and the empty string are rejected: they are not portable ids.
func ValidTimezone(id string) bool {
	_, err := load(id)
	return err == nil
}

func load(id string) (*time.Location, error) {
	if id == "" || id == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, id)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, id, err)
	}
	return loc, nil
}

// SystemTimezone returns the host's zone id, falling back to UTC.
func SystemTimezone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); ValidTimezone(tz) {
		return tz
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			if name := target[i+len("zoneinfo/"):]; ValidTimezone(name) {
				return name
			}
		}
	}
	if name := time.Local.String(); ValidTimezone(name) {
		return name
	}
	return "UTC"
}

// ResolveInitial picks the startup timezone: explicit override, then the
// persisted value, then the host default.
func ResolveInitial(override, persisted string) string {
	switch {
	case ValidTimezone(override):
		return override
	case ValidTimezone(persisted):
		return persisted
	default:
		return SystemTimezone()
	}
}

// Timezone returns the configured zone id. Never empty.
func (c *Clock) Timezone() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Clock) location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loc
}

// SetTimezone switches the clock to id. An invalid id falls back to the host
// default (or keeps the current zone if that is unusable too) and returns
// ErrInvalidTimezone. Persisting is best-effort.
func (c *Clock) SetTimezone(ctx context.Context, id string) error {
	loc, err := load(id)
	if err == nil {
		c.apply(id, loc)
		c.persist(ctx, id)
		return nil
	}

	fallback := SystemTimezone()
	if floc, ferr := load(fallback); ferr == nil {
		c.log.Warnf("TimezoneClock: %q rejected, falling back to %s", id, fallback)
		c.apply(fallback, floc)
		c.persist(ctx, fallback)
	} else {
		c.log.Warnf("TimezoneClock: %q rejected, keeping %s", id, c.Timezone())
	}
	return err
}

func (c *Clock) apply(id string, loc *time.Location) {
	c.mu.Lock()
	c.id, c.loc = id, loc
	c.mu.Unlock()
}

func (c *Clock) persist(ctx context.Context, id string) {
	if c.persister == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("TimezoneClock: persisting %s panicked: %v", id, r)
		}
	}()
	if err := c.persister.SaveTimezone(ctx, id); err != nil {
		c.log.Warnf("TimezoneClock: failed to persist %s: %v", id, err)
	}
}

// Now is the current instant.
func (c *Clock) Now() time.Time {
	return c.now()
}

// Today is the civil date of Now in the configured zone.
func (c *Clock) Today() civil.Date {
	return c.InstantToCivilDate(c.now())
}

// CivilDateToInstant returns local midnight of d in the configured zone.
//
// The offset is looked up at a first guess (d read as UTC midnight) and then
// again at the resulting instant; if the two disagree the second offset wins.
// Offsets never change twice inside that window, so one correction is enough.
// When midnight itself falls in a DST gap the corrected instant lands on the
// previous day, and the first candidate is the start of the day instead.
func (c *Clock) CivilDateToInstant(d civil.Date) time.Time {
	loc := c.location()

	guess := d.In(time.UTC)
	offset := offsetAt(guess, loc)
	first := guess.Add(-offset)

	candidate := first
	if corrected := offsetAt(first, loc); corrected != offset {
		candidate = guess.Add(-corrected)
	}

	switch {
	case startsDay(candidate, d, loc):
		return candidate
	case startsDay(first, d, loc):
		return first
	default:
		return d.In(loc)
	}
}

// startsDay reports whether t is the first instant of d in loc.
func startsDay(t time.Time, d civil.Date, loc *time.Location) bool {
	return civil.DateOf(t.In(loc)) == d &&
		civil.DateOf(t.Add(-time.Nanosecond).In(loc)) == d.AddDays(-1)
}

// InstantToCivilDate is the calendar date of t in the configured zone.
func (c *Clock) InstantToCivilDate(t time.Time) civil.Date {
	return civil.DateOf(t.In(c.location()))
}

// InstantToMonthIndex is the zero-based month of t in the configured zone.
func (c *Clock) InstantToMonthIndex(t time.Time) int {
	return int(t.In(c.location()).Month()) - 1
}

func offsetAt(t time.Time, loc *time.Location) time.Duration {
	_, secs := t.In(loc).Zone()
	return time.Duration(secs) * time.Second
}
