package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock is a time of day, HH:MM in local time.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses an HH:MM string.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// NextRun returns the first instant strictly after now that falls on at.
func NextRun(now time.Time, at Clock) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunDaily runs job once immediately and then every day at at, until ctx
// is cancelled. Runs never overlap.
func RunDaily(ctx context.Context, at Clock, job func(context.Context)) {
	log.Info().Str("at", at.String()).Msg("Scheduler started")

	job(ctx)

	for {
		next := NextRun(time.Now(), at)
		log.Info().Time("next_run", next).Msg("Waiting for next scheduled run")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Scheduler stopping")
			return
		case <-timer.C:
			job(ctx)
		}
	}
}
