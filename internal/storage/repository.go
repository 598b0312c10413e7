package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertOfficialRateSQL = `INSERT INTO official_rate_history (
        rate_date,
        usd,
        eur
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (rate_date) DO UPDATE
    SET
        usd = EXCLUDED.usd,
        eur = EXCLUDED.eur;`

	latestOnOrBeforeSQL = `SELECT rate_date, usd, eur
    FROM official_rate_history
    WHERE rate_date <= $1
    ORDER BY rate_date DESC
    LIMIT 1;`

	listRecentRatesSQL = `SELECT rate_date, usd, eur
    FROM official_rate_history
    ORDER BY rate_date DESC
    LIMIT $1;`

	listRatesBetweenSQL = `SELECT rate_date, usd, eur
    FROM official_rate_history
    WHERE rate_date >= $1
      AND rate_date <= $2
    ORDER BY rate_date;`

	insertObservationSQL = `INSERT INTO peer_price_observations (
        price,
        recorded_at,
        source_breakdown
    ) VALUES (
        $1,$2,$3
    );`

	listObservationsBetweenSQL = `SELECT price, recorded_at, source_breakdown
    FROM peer_price_observations
    WHERE recorded_at >= $1
      AND recorded_at < $2
    ORDER BY recorded_at;`
)

// Store aggregates Postgres access to rate history and peer observations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertOfficialRate persists one official record keyed by date. Re-writing
// an unchanged value is a no-op from the caller's perspective.
func (s *Store) UpsertOfficialRate(ctx context.Context, rec rates.HistoricalRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertOfficialRateSQL,
		rec.Date,
		rec.OfficialUSD.String(),
		rec.OfficialEUR.String(),
	)
	if execErr != nil {
		return fmt.Errorf("upsert official rate: %w", execErr)
	}
	return nil
}

// LatestOnOrBefore returns the most recent record with date <= the given
// date, reporting absence without error.
func (s *Store) LatestOnOrBefore(ctx context.Context, date time.Time) (rates.HistoricalRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return rates.HistoricalRecord{}, false, err
	}

	rec, scanErr := scanHistoricalRecord(pool.QueryRow(ctx, latestOnOrBeforeSQL, date))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return rates.HistoricalRecord{}, false, nil
		}
		return rates.HistoricalRecord{}, false, fmt.Errorf("latest on or before: %w", scanErr)
	}
	return rec, true, nil
}

// ListRecent returns the newest records descending by date, unfiltered.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]rates.HistoricalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRatesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent rates: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows, limit)
}

// ListBetween returns records within an inclusive date range ascending.
func (s *Store) ListBetween(ctx context.Context, from, to time.Time) ([]rates.HistoricalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRatesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list rates between: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows, 0)
}

// InsertObservation persists one blended peer price sample with its
// per-source breakdown JSON.
func (s *Store) InsertObservation(ctx context.Context, obs rates.PeerObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	breakdown := obs.SourceBreakdown
	if len(breakdown) == 0 {
		breakdown = json.RawMessage("{}")
	}

	_, execErr := pool.Exec(ctx, insertObservationSQL,
		obs.Price.String(),
		obs.RecordedAt,
		[]byte(breakdown),
	)
	if execErr != nil {
		return fmt.Errorf("insert observation: %w", execErr)
	}
	return nil
}

// ListObservationsBetween returns samples recorded in [from, to) ascending.
func (s *Store) ListObservationsBetween(ctx context.Context, from, to time.Time) ([]rates.PeerObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	obs := make([]rates.PeerObservation, 0)
	for rows.Next() {
		var (
			priceStr   string
			recordedAt time.Time
			breakdown  json.RawMessage
		)
		if err := rows.Scan(&priceStr, &recordedAt, &breakdown); err != nil {
			return nil, err
		}

		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse observation price: %w", convErr)
		}

		obs = append(obs, rates.PeerObservation{
			Price:           price,
			RecordedAt:      recordedAt,
			SourceBreakdown: breakdown,
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return obs, nil
}

func collectRecords(rows pgx.Rows, hint int) ([]rates.HistoricalRecord, error) {
	records := make([]rates.HistoricalRecord, 0, hint)
	for rows.Next() {
		rec, scanErr := scanHistoricalRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanHistoricalRecord(row pgx.Row) (rates.HistoricalRecord, error) {
	var (
		date   time.Time
		usdStr string
		eurStr string
	)
	if err := row.Scan(&date, &usdStr, &eurStr); err != nil {
		return rates.HistoricalRecord{}, err
	}

	usd, err := decimal.NewFromString(usdStr)
	if err != nil {
		return rates.HistoricalRecord{}, fmt.Errorf("parse usd rate: %w", err)
	}
	eur, err := decimal.NewFromString(eurStr)
	if err != nil {
		return rates.HistoricalRecord{}, fmt.Errorf("parse eur rate: %w", err)
	}

	return rates.HistoricalRecord{Date: date, OfficialUSD: usd, OfficialEUR: eur}, nil
}

var (
	_ RateHistoryStore = (*Store)(nil)
	_ ObservationStore = (*Store)(nil)
)
