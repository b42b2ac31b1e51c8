package regcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is a pebble-backed cache that survives restarts, so a validator
// coming back after a crash skips store round-trips for orders it already
// registered.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func encodeEntry(e Entry) ([]byte, error) { return json.Marshal(e) }
func decodeEntry(val []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (p *PebbleStore) Get(orderID string) (Entry, bool) {
	v, closer, err := p.db.Get([]byte(orderID))
	if err != nil {
		return Entry{}, false
	}
	defer closer.Close()
	e, err := decodeEntry(v)
	if err != nil {
		return Entry{}, false
	}
	return e, true
}

func (p *PebbleStore) Put(orderID string, e Entry) error {
	b, err := encodeEntry(e)
	if err != nil {
		return err
	}
	// NoSync: losing a cache write only costs one extra store read after a crash.
	if err := p.db.Set([]byte(orderID), b, pebble.NoSync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (p *PebbleStore) Range(fn func(orderID string, e Entry) error) error {
	it, err := p.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		e, err := decodeEntry(v)
		if err != nil {
			return err
		}
		if err := fn(string(k), e); err != nil {
			return err
		}
	}
	return nil
}
