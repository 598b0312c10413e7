package cache

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v3"
)

const (
	lastUpdateKey    = "marker/last_update_ms"
	windowFiredScope = "marker/window_fired/"
)

// LastUpdate returns the durable timestamp of the last successful refresh.
func (c *Cache) LastUpdate() (time.Time, bool, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastUpdateKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read last update: %w", err)
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last update: %w", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// SetLastUpdate persists the last successful refresh timestamp.
func (c *Cache) SetLastUpdate(t time.Time) error {
	value := []byte(strconv.FormatInt(t.UnixMilli(), 10))
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastUpdateKey), value)
	})
	if err != nil {
		return fmt.Errorf("write last update: %w", err)
	}
	return nil
}

func windowKey(windowID string, date time.Time) []byte {
	return []byte(windowFiredScope + windowID + "/" + date.Format("2006-01-02"))
}

// WindowFired reports whether the (window, calendar date) pair already fired.
func (c *Cache) WindowFired(windowID string, date time.Time) (bool, error) {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(windowKey(windowID, date))
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read window marker: %w", err)
	}
	return true, nil
}

// MarkWindowFired records a fire for the (window, calendar date) pair.
// At most one fire per pair: callers check WindowFired first.
func (c *Cache) MarkWindowFired(windowID string, date time.Time) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(windowKey(windowID, date), []byte("1"))
	})
	if err != nil {
		return fmt.Errorf("write window marker: %w", err)
	}
	return nil
}
