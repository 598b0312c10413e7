package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/aggregate"
	"ves-rate-watch/internal/cache"
	"ves-rate-watch/internal/fetcher"
	"ves-rate-watch/internal/rates"
	"ves-rate-watch/internal/resolver"
	"ves-rate-watch/internal/storage"
)

// Options tune the freshness controller.
type Options struct {
	// Debounce is the minimum spacing between effectful refreshes
	// regardless of caller.
	Debounce time.Duration
	// MinAutoInterval is the minimum spacing for unforced refreshes.
	MinAutoInterval time.Duration
}

// DefaultOptions are the observed production values.
func DefaultOptions() Options {
	return Options{
		Debounce:        15 * time.Second,
		MinAutoInterval: 120 * time.Second,
	}
}

// Engine is the rate aggregation and caching engine: it owns the refresh
// path (fetch, aggregate, resolve, write-through) and the cache-first read
// surface consumers use.
type Engine struct {
	opts     Options
	official fetcher.OfficialRateFetcher
	peers    []fetcher.PeerRateFetcher
	resolver *resolver.Resolver
	history  storage.RateHistoryStore
	obs      storage.ObservationStore
	cache    *cache.Cache
	probe    ConnectivityProbe
	clock    func() time.Time
	tz       *time.Location
	logger   zerolog.Logger

	// mu serialises refreshes. The lock is held across the network pass so
	// racing callers inside the debounce window observe one winner and one
	// suppression, never two fetches.
	mu          sync.Mutex
	lastAttempt time.Time
	offline     bool
	lastFailed  bool
}

// New wires the engine from its collaborators.
func New(opts Options, official fetcher.OfficialRateFetcher, peers []fetcher.PeerRateFetcher, res *resolver.Resolver, history storage.RateHistoryStore, obs storage.ObservationStore, c *cache.Cache, probe ConnectivityProbe, tz *time.Location, logger zerolog.Logger) *Engine {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.MinAutoInterval <= 0 {
		opts.MinAutoInterval = DefaultOptions().MinAutoInterval
	}
	e := &Engine{
		opts:     opts,
		official: official,
		peers:    peers,
		resolver: res,
		history:  history,
		obs:      obs,
		cache:    c,
		probe:    probe,
		clock:    func() time.Time { return time.Now().UTC() },
		tz:       tz,
		logger:   logger.With().Str("component", "engine").Logger(),
	}

	// The debounce must hold across process restarts: a one-shot refresh in a
	// fresh process counts against the previous process's successful fetch.
	if last, ok, err := c.LastUpdate(); err == nil && ok {
		e.lastAttempt = last
	}
	return e
}

// SetClock overrides the engine clock for tests.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

const snapshotKey = "current"

// CachedSnapshot returns the last persisted snapshot, if any.
func (e *Engine) CachedSnapshot() (rates.RateSnapshot, bool) {
	var snap rates.RateSnapshot
	_, ok, err := e.cache.Get(cache.KindSnapshot, snapshotKey, &snap)
	if err != nil {
		e.logger.Error().Err(err).Msg("read cached snapshot")
		return rates.RateSnapshot{}, false
	}
	return snap, ok
}

// Refresh applies the freshness rules and, when permitted, runs the full
// fetch+aggregate+resolve pass. Suppressed calls return the cached snapshot.
// Exactly three failure shapes reach callers: RateLimitedError (forced call
// inside the debounce window), ErrOffline (forced call without
// connectivity), and a wrapped upstream error; everything else is logged.
func (e *Engine) Refresh(ctx context.Context, force bool) (rates.RateSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	if !e.lastAttempt.IsZero() {
		since := now.Sub(e.lastAttempt)
		if since < e.opts.Debounce {
			cached, _ := e.CachedSnapshot()
			if force {
				return cached, &rates.RateLimitedError{Wait: e.opts.Debounce - since}
			}
			return cached, nil
		}
		if !force && since < e.opts.MinAutoInterval {
			cached, _ := e.CachedSnapshot()
			return cached, nil
		}
	}

	// The attempt counts against the debounce whether or not it succeeds.
	e.lastAttempt = now

	if !e.probe.Online(ctx) {
		e.offline = true
		cached, _ := e.CachedSnapshot()
		if force {
			return cached, rates.ErrOffline
		}
		return cached, nil
	}

	snap, err := e.sampleLocked(ctx, now)
	if err != nil {
		e.lastFailed = true
		e.offline = !e.probe.Online(ctx)
		cached, _ := e.CachedSnapshot()
		return cached, err
	}
	return snap, nil
}

// Sample runs the fetch+aggregate+resolve pass unconditionally, bypassing
// the debounce. The background staleness task uses this path; it is not
// user-initiated and must not fight the foreground cadence.
func (e *Engine) Sample(ctx context.Context) (rates.RateSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleLocked(ctx, e.clock())
}

func (e *Engine) sampleLocked(ctx context.Context, now time.Time) (rates.RateSnapshot, error) {
	official, blended, breakdown, err := e.fetchAll(ctx)
	if err != nil {
		return rates.RateSnapshot{}, err
	}

	// Persist the fresh inputs before resolving so the merge sees them.
	if err := e.history.UpsertOfficialRate(ctx, rates.HistoricalRecord{
		Date:        e.resolver.DayKey(official.AsOf),
		OfficialUSD: official.USD,
		OfficialEUR: official.EUR,
	}); err != nil {
		e.logger.Error().Err(err).Msg("persist official record")
	}

	if !blended.IsZero() {
		raw, marshalErr := json.Marshal(breakdown)
		if marshalErr != nil {
			raw = json.RawMessage("{}")
		}
		if err := e.obs.InsertObservation(ctx, rates.PeerObservation{
			Price:           blended,
			RecordedAt:      now,
			SourceBreakdown: raw,
		}); err != nil {
			e.logger.Error().Err(err).Msg("persist peer observation")
		}
	}

	snap, err := e.resolver.Resolve(ctx, now, blended, breakdown)
	if err != nil {
		return rates.RateSnapshot{}, fmt.Errorf("resolve snapshot: %w", err)
	}

	if err := e.cache.Put(cache.KindSnapshot, snapshotKey, snap); err != nil {
		e.logger.Error().Err(err).Msg("cache snapshot")
	}
	if err := e.cache.SetLastUpdate(now); err != nil {
		e.logger.Error().Err(err).Msg("persist last update timestamp")
	}

	e.offline = false
	e.lastFailed = false
	return snap, nil
}

// fetchAll issues the official call and every peer side concurrently, joins
// them, and aggregates. Peer failures shrink the sample; only an official
// failure fails the pass.
func (e *Engine) fetchAll(ctx context.Context) (rates.OfficialQuote, decimal.Decimal, []rates.SourceAverage, error) {
	var wg sync.WaitGroup

	var official rates.OfficialQuote
	var officialErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		official, officialErr = e.official.FetchOfficial(ctx)
	}()

	type sideResult struct {
		source string
		side   rates.Side
		quotes []rates.Quote
		err    error
	}
	results := make([]sideResult, len(e.peers)*2)

	for i, peer := range e.peers {
		for j, side := range []rates.Side{rates.SideBuy, rates.SideSell} {
			wg.Add(1)
			go func(idx int, p fetcher.PeerRateFetcher, s rates.Side) {
				defer wg.Done()
				quotes, err := p.FetchSide(ctx, s)
				results[idx] = sideResult{source: p.Name(), side: s, quotes: quotes, err: err}
			}(i*2+j, peer, side)
		}
	}

	wg.Wait()

	if officialErr != nil {
		return rates.OfficialQuote{}, decimal.Zero, nil, fmt.Errorf("fetch official rate: %w", officialErr)
	}

	bySource := make(map[string]*aggregate.SourceQuotes, len(e.peers))
	order := make([]string, 0, len(e.peers))
	for _, res := range results {
		if res.err != nil {
			// Excluded from aggregation, not retried within this pass.
			e.logger.Warn().Err(res.err).Str("source", res.source).Str("side", string(res.side)).Msg("peer fetch failed")
			continue
		}
		sq, ok := bySource[res.source]
		if !ok {
			sq = &aggregate.SourceQuotes{Source: res.source}
			bySource[res.source] = sq
			order = append(order, res.source)
		}
		for _, q := range res.quotes {
			if res.side == rates.SideBuy {
				sq.Buy = append(sq.Buy, q.Price)
			} else {
				sq.Sell = append(sq.Sell, q.Price)
			}
		}
	}

	sources := make([]aggregate.SourceQuotes, 0, len(order))
	for _, name := range order {
		sources = append(sources, *bySource[name])
	}

	breakdown := aggregate.Reduce(sources)
	blended := aggregate.Blend(breakdown)
	return official, blended, breakdown, nil
}

// GetHistoricalSeries serves one period bucket of official history,
// cache-first with a 60s-class TTL; misses re-fetch and write through.
func (e *Engine) GetHistoricalSeries(ctx context.Context, period rates.Period) ([]rates.HistoricalRecord, error) {
	var cached []rates.HistoricalRecord
	stale, ok, err := e.cache.Get(cache.KindHistory, string(period), &cached)
	if err != nil {
		e.logger.Error().Err(err).Msg("history cache read")
	}
	if ok && !stale {
		return cached, nil
	}

	lookback, err := period.Duration()
	if err != nil {
		return nil, err
	}

	now := e.clock()
	records, err := e.history.ListBetween(ctx, e.resolver.DayKey(now.Add(-lookback)), e.resolver.DayKey(now))
	if err != nil {
		if ok {
			e.logger.Warn().Err(err).Str("period", string(period)).Msg("serving stale history after store error")
			return cached, nil
		}
		return nil, fmt.Errorf("list history: %w", err)
	}

	if err := e.cache.Put(cache.KindHistory, string(period), records); err != nil {
		e.logger.Error().Err(err).Msg("history cache write")
	}
	return records, nil
}

// GetPeerDailyAverages serves one period bucket of the peer daily-average
// series. Peer averages stay separate from official records; an official
// fixed rate and a floating market mean must not be conflated.
func (e *Engine) GetPeerDailyAverages(ctx context.Context, period rates.Period) ([]rates.PeerDailyAverage, error) {
	var cached []rates.PeerDailyAverage
	stale, ok, err := e.cache.Get(cache.KindPeerDaily, string(period), &cached)
	if err != nil {
		e.logger.Error().Err(err).Msg("peer daily cache read")
	}
	if ok && !stale {
		return cached, nil
	}

	lookback, err := period.Duration()
	if err != nil {
		return nil, err
	}

	now := e.clock()
	obs, err := e.obs.ListObservationsBetween(ctx, now.Add(-lookback), now)
	if err != nil {
		if ok {
			e.logger.Warn().Err(err).Str("period", string(period)).Msg("serving stale peer averages after store error")
			return cached, nil
		}
		return nil, fmt.Errorf("list observations: %w", err)
	}

	averages := aggregate.DailyAverages(obs, e.tz)
	if err := e.cache.Put(cache.KindPeerDaily, string(period), averages); err != nil {
		e.logger.Error().Err(err).Msg("peer daily cache write")
	}
	return averages, nil
}

// GetHourlyPeerSeries serves one day's hourly peer buckets. Empty results
// are returned but never cached, so the next call retries the store.
func (e *Engine) GetHourlyPeerSeries(ctx context.Context, date time.Time) ([]rates.HourlyPoint, error) {
	day := e.resolver.DayKey(date)
	key := day.Format("2006-01-02")

	var cached []rates.HourlyPoint
	stale, ok, err := e.cache.Get(cache.KindHourly, key, &cached)
	if err != nil {
		e.logger.Error().Err(err).Msg("hourly cache read")
	}
	if ok && !stale {
		return cached, nil
	}

	obs, err := e.obs.ListObservationsBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		if ok {
			return cached, nil
		}
		return nil, fmt.Errorf("list hourly observations: %w", err)
	}

	points := aggregate.HourlyPoints(obs, day, e.tz)
	if err := e.cache.Put(cache.KindHourly, key, points); err != nil {
		e.logger.Error().Err(err).Msg("hourly cache write")
	}
	return points, nil
}

// ConnectivityState reports the offline flag, whether the most recent
// effectful refresh errored, and the last-update label. The previous
// snapshot stays cached regardless of either flag.
func (e *Engine) ConnectivityState() rates.ConnectivityState {
	e.mu.Lock()
	offline := e.offline
	failed := e.lastFailed
	e.mu.Unlock()

	label := ""
	if snap, ok := e.CachedSnapshot(); ok {
		label = snap.LastUpdatedLabel
	}
	return rates.ConnectivityState{
		Offline:           offline,
		LastRefreshFailed: failed,
		LastUpdateLabel:   label,
	}
}
