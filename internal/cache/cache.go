package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

// Kind names one cached dataset. Each kind carries its own TTL and keys are
// independent: there is no cross-kind locking.
type Kind string

const (
	// KindSnapshot has no TTL; the freshness controller's interval rules
	// decide when it is re-validated.
	KindSnapshot Kind = "snapshot"
	// KindHistory holds one official history series per period bucket.
	KindHistory Kind = "history"
	// KindPeerDaily holds one peer daily-average series per period bucket.
	KindPeerDaily Kind = "peer_daily"
	// KindHourly holds one hourly peer series per calendar date. Empty
	// payloads are refused so a retry is not stuck behind the TTL.
	KindHourly Kind = "hourly"
)

// TTLs maps dataset kinds to their time-to-live. Zero means never stale.
type TTLs struct {
	History   time.Duration
	PeerDaily time.Duration
	Hourly    time.Duration
}

// DefaultTTLs are the observed production values.
func DefaultTTLs() TTLs {
	return TTLs{
		History:   60 * time.Second,
		PeerDaily: 30 * time.Minute,
		Hourly:    2 * time.Minute,
	}
}

// entry is the stored envelope. It is written and replaced wholesale in one
// badger Set; readers never see a torn value.
type entry struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt int64           `json:"fetched_at_ms"`
}

// Cache is the badger-backed layered cache plus the small durable markers
// the engine needs (last update timestamp, notification window fires).
type Cache struct {
	db     *badger.DB
	ttls   TTLs
	clock  func() time.Time
	logger zerolog.Logger
}

// Open opens (or creates) the on-disk store at path.
func Open(path string, ttls TTLs, logger zerolog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return newCache(db, ttls, logger), nil
}

// OpenInMemory opens an ephemeral store, used by tests and dry runs.
func OpenInMemory(ttls TTLs, logger zerolog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return newCache(db, ttls, logger), nil
}

func newCache(db *badger.DB, ttls TTLs, logger zerolog.Logger) *Cache {
	return &Cache{
		db:     db,
		ttls:   ttls,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Close releases the badger handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// SetClock overrides the staleness clock. Tests advance simulated time.
func (c *Cache) SetClock(clock func() time.Time) {
	c.clock = clock
}

func (c *Cache) ttlFor(kind Kind) time.Duration {
	switch kind {
	case KindHistory:
		return c.ttls.History
	case KindPeerDaily:
		return c.ttls.PeerDaily
	case KindHourly:
		return c.ttls.Hourly
	default:
		return 0
	}
}

func cacheKey(kind Kind, key string) []byte {
	return []byte("cache/" + string(kind) + "/" + key)
}

// Get loads a cached payload into out and reports whether it has outlived
// its TTL. ok is false when the key has never been written. Stale entries
// are still returned; callers overwrite them via Put, nothing evicts.
func (c *Cache) Get(kind Kind, key string, out any) (stale bool, ok bool, err error) {
	var stored entry
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(kind, key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &stored)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("cache get %s/%s: %w", kind, key, err)
	}

	if out != nil {
		if err := json.Unmarshal(stored.Payload, out); err != nil {
			return false, false, fmt.Errorf("cache decode %s/%s: %w", kind, key, err)
		}
	}

	ttl := c.ttlFor(kind)
	if ttl > 0 {
		age := c.clock().Sub(time.UnixMilli(stored.FetchedAt))
		stale = age >= ttl
	}
	return stale, true, nil
}

// Put replaces the entry for a key wholesale. An empty series is a valid
// payload for every kind except the hourly bucket, which refuses to cache
// emptiness so the next read retries immediately.
func (c *Cache) Put(kind Kind, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cache encode %s/%s: %w", kind, key, err)
	}

	if kind == KindHourly && isEmptyJSON(raw) {
		c.logger.Debug().Str("key", key).Msg("skip caching empty hourly bucket")
		return nil
	}

	stored, err := json.Marshal(entry{Payload: raw, FetchedAt: c.clock().UnixMilli()})
	if err != nil {
		return err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(kind, key), stored)
	})
	if err != nil {
		return fmt.Errorf("cache put %s/%s: %w", kind, key, err)
	}
	return nil
}

func isEmptyJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 ||
		bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte("[]")) ||
		bytes.Equal(trimmed, []byte("{}"))
}
