package storage

import (
	"context"
	"time"

	"ves-rate-watch/internal/rates"
)

// RateHistoryStore defines operations over the official rate history table.
// Writes are idempotent upserts keyed by calendar date.
type RateHistoryStore interface {
	UpsertOfficialRate(ctx context.Context, rec rates.HistoricalRecord) error
	LatestOnOrBefore(ctx context.Context, date time.Time) (rates.HistoricalRecord, bool, error)
	ListRecent(ctx context.Context, limit int) ([]rates.HistoricalRecord, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]rates.HistoricalRecord, error)
}

// ObservationStore defines operations over persisted peer price samples.
type ObservationStore interface {
	InsertObservation(ctx context.Context, obs rates.PeerObservation) error
	ListObservationsBetween(ctx context.Context, from, to time.Time) ([]rates.PeerObservation, error)
}
