package workers

import (
	"context"
	"time"

	"pushupChallengeAPI/internal/challenge"
	"pushupChallengeAPI/internal/logger"
	"pushupChallengeAPI/internal/metrics"
)

type DaySource interface {
	DayInfo(ctx context.Context) (challenge.DayInfo, error)
}

// DayTracker follows the challenge calendar and publishes the current day.
// It notices day rollovers and phase changes, e.g. after a timezone edit.
type DayTracker struct {
	source   DaySource
	interval time.Duration
	log      logger.Logger
	last     challenge.DayInfo
	started  bool
}

func NewDayTracker(source DaySource, interval time.Duration, log logger.Logger) *DayTracker {
	return &DayTracker{source: source, interval: interval, log: log}
}

// Start runs the tracker in a background routine until ctx is done.
func (t *DayTracker) Start(ctx context.Context) {
	go t.Run(ctx)
}

func (t *DayTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick reads the current day once and reports whether it changed.
func (t *DayTracker) Tick(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	info, err := t.source.DayInfo(ctx)
	if err != nil {
		t.log.Warnf("Day tracker: %v", err)
		return false
	}
	metrics.ChallengeDay.Set(float64(info.ChallengeDay))

	changed := !t.started || info.Phase != t.last.Phase || info.ChallengeDay != t.last.ChallengeDay
	if changed {
		switch info.Phase {
		case challenge.PhaseActive:
			t.log.Infof("Challenge day %d of %d", info.ChallengeDay, info.DaysInChallenge)
		default:
			t.log.Infof("Challenge phase: %s", info.Phase)
		}
	}
	t.last, t.started = info, true
	return changed
}
