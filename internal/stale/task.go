package stale

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ves-rate-watch/internal/alerting"
	"ves-rate-watch/internal/cache"
	"ves-rate-watch/internal/rates"
)

// Status is the terminal outcome of one task run. The task never raises to
// its scheduler; retries are the scheduler's call.
type Status string

const (
	// StatusPrimed means there was no snapshot to compare against yet; the
	// fresh one was stored for next time.
	StatusPrimed Status = "primed"
	// StatusNotified means exactly one window fired.
	StatusNotified Status = "notified"
	// StatusNoNews is the non-error "nothing to announce" outcome.
	StatusNoNews Status = "no-news"
	// StatusFailed wraps a swallowed fetch failure.
	StatusFailed Status = "failed"
)

// Window is a named business-local hour at which at most one notification
// may fire per calendar day.
type Window struct {
	ID   string
	Hour int
}

// ParseWindows converts "HH:MM" strings into windows keyed by hour.
func ParseWindows(specs []string) ([]Window, error) {
	windows := make([]Window, 0, len(specs))
	for _, spec := range specs {
		hourPart, _, _ := strings.Cut(spec, ":")
		hour, err := strconv.Atoi(strings.TrimSpace(hourPart))
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid notification window %q", spec)
		}
		windows = append(windows, Window{ID: spec, Hour: hour})
	}
	return windows, nil
}

// Sampler is the fetch+aggregate+resolve path the task shares with the
// engine, minus the foreground debounce.
type Sampler interface {
	Sample(ctx context.Context) (rates.RateSnapshot, error)
	CachedSnapshot() (rates.RateSnapshot, bool)
}

// Task is the background staleness check. It runs on a coarse interval,
// diffs fresh data against the cached snapshot, and fires at most one
// notification per window per day.
type Task struct {
	sampler  Sampler
	cache    *cache.Cache
	notifier alerting.Notifier
	windows  []Window
	tz       *time.Location
	clock    func() time.Time
	logger   zerolog.Logger
}

// New assembles the task. notifier may be nil: windows neither fire nor burn
// their markers, but the sampling side effects are kept.
func New(sampler Sampler, c *cache.Cache, notifier alerting.Notifier, windows []Window, tz *time.Location, logger zerolog.Logger) *Task {
	return &Task{
		sampler:  sampler,
		cache:    c,
		notifier: notifier,
		windows:  windows,
		tz:       tz,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "stale_task").Logger(),
	}
}

// SetClock overrides the task clock for tests.
func (t *Task) SetClock(clock func() time.Time) {
	t.clock = clock
}

// Run executes one check. Failures are swallowed into StatusFailed; the
// foreground engine never sees them.
func (t *Task) Run(ctx context.Context) Status {
	prev, hadPrev := t.sampler.CachedSnapshot()

	fresh, err := t.sampler.Sample(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("background sample failed")
		return StatusFailed
	}

	if !hadPrev {
		// Sample already stored the fresh snapshot; nothing to compare yet.
		t.logger.Info().Msg("primed snapshot cache")
		return StatusPrimed
	}

	if t.notifier == nil {
		// Nothing can be delivered; leave the window markers untouched so a
		// later configured notifier can still fire today.
		return StatusNoNews
	}

	now := t.clock().In(t.tz)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, t.tz)

	for _, window := range t.windows {
		if now.Hour() != window.Hour {
			continue
		}
		fired, err := t.cache.WindowFired(window.ID, today)
		if err != nil {
			t.logger.Error().Err(err).Str("window", window.ID).Msg("read window marker")
			continue
		}
		if fired {
			continue
		}

		note := BuildNotification(prev, fresh)
		if err := t.notifier.Notify(ctx, note); err != nil {
			t.logger.Error().Err(err).Str("window", window.ID).Msg("dispatch notification")
			return StatusFailed
		}
		if err := t.cache.MarkWindowFired(window.ID, today); err != nil {
			t.logger.Error().Err(err).Str("window", window.ID).Msg("mark window fired")
		}

		t.logger.Info().Str("window", window.ID).Msg("notification window fired")
		// First match wins; one fire per invocation at most.
		return StatusNotified
	}

	return StatusNoNews
}

// BuildNotification 用当天的官方与平行市场价格渲染推送内容。
func BuildNotification(prev, fresh rates.RateSnapshot) alerting.Notification {
	body := strings.Builder{}
	body.WriteString(fmt.Sprintf("Official: %s Bs/USD · %s Bs/EUR\n",
		fresh.OfficialUSD.StringFixed(2), fresh.OfficialEUR.StringFixed(2)))
	if !fresh.BlendedPeerPrice.IsZero() {
		body.WriteString(fmt.Sprintf("Parallel: %s Bs/USD\n", fresh.BlendedPeerPrice.StringFixed(2)))
	}
	if !fresh.USDDayChangePct.IsZero() {
		body.WriteString(fmt.Sprintf("Day change: %s%%\n", fresh.USDDayChangePct.StringFixed(2)))
	}
	if fresh.NextPeriod != nil {
		body.WriteString(fmt.Sprintf("Published for %s: %s Bs/USD\n",
			fresh.NextPeriod.EffectiveDate.Format("02/01"), fresh.NextPeriod.USD.StringFixed(2)))
	}
	if !prev.OfficialUSD.IsZero() && !fresh.OfficialUSD.Equal(prev.OfficialUSD) {
		body.WriteString(fmt.Sprintf("Previous snapshot: %s Bs/USD\n", prev.OfficialUSD.StringFixed(2)))
	}

	return alerting.Notification{
		Title: "Exchange rate update",
		Body:  strings.TrimRight(body.String(), "\n"),
	}
}
