package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval.
type TickFunc func(ctx context.Context, tick time.Time) error

// Options tune the foreground refresh loop.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Loop drives aligned execution of the periodic refresh.
type Loop struct {
	opts   Options
	logger zerolog.Logger
}

// NewLoop constructs a Loop instance.
func NewLoop(opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each aligned interval until ctx
// is cancelled. A failing tick is logged and the cadence continues.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.StartupDelay > 0 {
		timer := time.NewTimer(l.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := l.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = l.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		l.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		l.logger.Debug().Time("tick", next).Msg("executing scheduled tick")
		if err := tick(ctx, next); err != nil {
			l.logger.Error().Err(err).Time("tick", next).Msg("tick execution failed")
		}

		next = next.Add(l.opts.Interval)
	}
}

func (l *Loop) nextTick(now time.Time) time.Time {
	if !l.opts.AlignToStart {
		return now.Add(l.opts.Interval)
	}
	tick := now.Truncate(l.opts.Interval)
	if !tick.After(now) {
		tick = tick.Add(l.opts.Interval)
	}
	return tick
}
