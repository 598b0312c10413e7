package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
	"ves-rate-watch/internal/storage"
)

// recentWindow bounds the unfiltered descending query used for future-rate
// detection and the day-over-day delta.
const recentWindow = 30

var hundred = decimal.NewFromInt(100)

// Resolver reconciles the remote history with the bundled dataset and
// produces a RateSnapshot. It is a pure resolve-and-snapshot step, re-run on
// every refresh; it holds no state between calls.
type Resolver struct {
	store   storage.RateHistoryStore
	bundled map[string]rates.HistoricalRecord
	tz      *time.Location
	logger  zerolog.Logger
}

// New builds a resolver over the given store and business timezone.
func New(store storage.RateHistoryStore, tz *time.Location, logger zerolog.Logger) (*Resolver, error) {
	bundled, err := loadBundled(tz)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		store:   store,
		bundled: bundled,
		tz:      tz,
		logger:  logger.With().Str("component", "resolver").Logger(),
	}, nil
}

// BundledRecords exposes the bundled dataset sorted ascending, for seeding.
func (r *Resolver) BundledRecords() []rates.HistoricalRecord {
	out := make([]rates.HistoricalRecord, 0, len(r.bundled))
	for _, rec := range r.bundled {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// DayKey truncates t to its business-timezone calendar date.
func (r *Resolver) DayKey(t time.Time) time.Time {
	local := t.In(r.tz)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.tz)
}

// Resolve builds the snapshot for today. The blended peer price and its
// breakdown come from the caller's aggregation pass; official figures come
// from the merged remote+bundled history.
//
// A record dated strictly after today is a rate the authority has already
// published for the next period: it is exposed as NextPeriod and excluded
// from the current figures. A date with no record anywhere resolves to the
// explicit zero sentinel, not an error; weekends and holidays are never
// synthesized.
func (r *Resolver) Resolve(ctx context.Context, today time.Time, blended decimal.Decimal, breakdown []rates.SourceAverage) (rates.RateSnapshot, error) {
	today = r.DayKey(today)

	latest, found, err := r.store.LatestOnOrBefore(ctx, today)
	if err != nil {
		return rates.RateSnapshot{}, fmt.Errorf("query latest record: %w", err)
	}

	recent, err := r.store.ListRecent(ctx, recentWindow)
	if err != nil {
		return rates.RateSnapshot{}, fmt.Errorf("query recent records: %w", err)
	}

	var next *rates.NextPeriodRate
	if len(recent) > 0 {
		newest := recent[0]
		if r.DayKey(newest.Date).After(today) {
			next = &rates.NextPeriodRate{
				USD:           newest.OfficialUSD,
				EUR:           newest.OfficialEUR,
				EffectiveDate: r.DayKey(newest.Date),
			}
		}
	}

	merged := r.merge(recent, latest, found)
	current, prev := pickCurrentAndPrevious(merged, today)

	snapshot := rates.RateSnapshot{
		BlendedPeerPrice: blended,
		PerSource:        breakdown,
		NextPeriod:       next,
	}

	if current == nil {
		// Explicit "no data" sentinel; distinct from a fetch failure.
		r.logger.Debug().Time("today", today).Msg("no official record on or before today")
		return snapshot, nil
	}

	snapshot.OfficialUSD = current.OfficialUSD
	snapshot.OfficialEUR = current.OfficialEUR
	snapshot.OfficialDate = current.Date
	snapshot.LastUpdatedLabel = r.FormatUpdateLabel(current.Date, today)

	if prev != nil {
		snapshot.USDDayChangePct = dayChangePct(current.OfficialUSD, prev.OfficialUSD)
		snapshot.EURDayChangePct = dayChangePct(current.OfficialEUR, prev.OfficialEUR)
	}

	return snapshot, nil
}

// merge overlays remote records on the bundled dataset, date-keyed. Remote
// wins per date; the bundled file only fills gaps.
func (r *Resolver) merge(recent []rates.HistoricalRecord, latest rates.HistoricalRecord, latestFound bool) []rates.HistoricalRecord {
	byDate := make(map[string]rates.HistoricalRecord, len(r.bundled)+len(recent)+1)
	for key, rec := range r.bundled {
		byDate[key] = rec
	}
	for _, rec := range recent {
		day := r.DayKey(rec.Date)
		byDate[day.Format("2006-01-02")] = rates.HistoricalRecord{
			Date: day, OfficialUSD: rec.OfficialUSD, OfficialEUR: rec.OfficialEUR,
		}
	}
	if latestFound {
		day := r.DayKey(latest.Date)
		byDate[day.Format("2006-01-02")] = rates.HistoricalRecord{
			Date: day, OfficialUSD: latest.OfficialUSD, OfficialEUR: latest.OfficialEUR,
		}
	}

	merged := make([]rates.HistoricalRecord, 0, len(byDate))
	for _, rec := range byDate {
		merged = append(merged, rec)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.After(merged[j].Date) })
	return merged
}

// pickCurrentAndPrevious walks the date-descending merged sequence and
// returns the newest record on or before today plus its predecessor.
func pickCurrentAndPrevious(merged []rates.HistoricalRecord, today time.Time) (current, prev *rates.HistoricalRecord) {
	for i := range merged {
		if merged[i].Date.After(today) {
			continue
		}
		current = &merged[i]
		if i+1 < len(merged) {
			prev = &merged[i+1]
		}
		return current, prev
	}
	return nil, nil
}

func dayChangePct(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred)
}
