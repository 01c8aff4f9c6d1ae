package tally

import (
	"context"
	"time"

	"github.com/discord-voice-wordtally/internal/logging"
)

// Schedule is a daily wall-clock boundary.
type Schedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Next returns the first boundary strictly after now.
func (s Schedule) Next(now time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.Hour, s.Minute, 0, 0, loc)
	}
	return next
}

// Run emits the leaderboard at every boundary until ctx is done.
func (a *Aggregator) Run(ctx context.Context, s Schedule) {
	for {
		now := time.Now()
		next := s.Next(now)
		logging.Debugw("next leaderboard scheduled", "at", next.Format(time.RFC3339))
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := a.Emit(ctx); err != nil {
			logging.Warnw("daily leaderboard not emitted, keeping tally", "err", err)
		}
	}
}
