package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"dynastore/internal/clock"
)

// BoltEngine is a storage engine persisting sibling sets in a bbolt file,
// one bucket per store name. bbolt serializes writers, so per-key updates
// are atomic.
type BoltEngine struct {
	name string
	db   *bolt.DB
}

var _ StorageEngine = (*BoltEngine)(nil)

// boltVersion is the on-disk form of one sibling: raw value bytes plus the
// clock's binary encoding. Internal to the engine, not a wire format.
type boltVersion struct {
	Value []byte `json:"value"`
	Clock []byte `json:"clock"`
}

// OpenBolt opens (creating if needed) a bbolt-backed engine at path for the
// given store name.
func OpenBolt(path, name string) (*BoltEngine, error) {
	// Timeout makes a second open of a locked file fail instead of waiting
	// on the flock forever.
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt file %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %q: %w", name, err)
	}
	return &BoltEngine{name: name, db: db}, nil
}

func (e *BoltEngine) Name() string { return e.name }

func (e *BoltEngine) Kind() Kind { return KindBolt }

func (e *BoltEngine) Get(key []byte) ([]Versioned, error) {
	var out []Versioned
	err := e.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(e.name)).Get(key)
		if raw == nil {
			return nil
		}
		versions, err := decodeVersions(raw)
		if err != nil {
			return err
		}
		out = versions
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store %q: get: %w", e.name, err)
	}
	return out, nil
}

func (e *BoltEngine) Put(key []byte, v Versioned) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(e.name))

		var existing []Versioned
		if raw := b.Get(key); raw != nil {
			var err error
			if existing, err = decodeVersions(raw); err != nil {
				return err
			}
		}

		updated, err := updateSiblings(existing, v)
		if err != nil {
			return err
		}
		raw, err := encodeVersions(updated)
		if err != nil {
			return err
		}
		return b.Put(key, raw)
	})
	if err != nil {
		return fmt.Errorf("store %q: put: %w", e.name, err)
	}
	return nil
}

func (e *BoltEngine) Delete(key []byte, at *clock.VectorClock) (bool, error) {
	var removed bool
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(e.name))
		raw := b.Get(key)
		if raw == nil {
			return nil
		}
		existing, err := decodeVersions(raw)
		if err != nil {
			return err
		}

		kept, rm := deleteSiblings(existing, at)
		if !rm {
			return nil
		}
		removed = true
		if len(kept) == 0 {
			return b.Delete(key)
		}
		encoded, err := encodeVersions(kept)
		if err != nil {
			return err
		}
		return b.Put(key, encoded)
	})
	if err != nil {
		return false, fmt.Errorf("store %q: delete: %w", e.name, err)
	}
	return removed, nil
}

// Entries snapshots the whole bucket inside one read transaction.
func (e *BoltEngine) Entries() (EntryIterator, error) {
	var snapshot []Entry
	err := e.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(e.name)).ForEach(func(k, raw []byte) error {
			versions, err := decodeVersions(raw)
			if err != nil {
				return err
			}
			snapshot = append(snapshot, Entry{
				Key:      append([]byte(nil), k...),
				Versions: versions,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store %q: entries: %w", e.name, err)
	}
	return &sliceIterator{entries: snapshot}, nil
}

func (e *BoltEngine) Close() error {
	return e.db.Close()
}

func encodeVersions(versions []Versioned) ([]byte, error) {
	records := make([]boltVersion, len(versions))
	for i, v := range versions {
		cb, err := v.VClock().MarshalBinary()
		if err != nil {
			return nil, err
		}
		records[i] = boltVersion{Value: v.Value, Clock: cb}
	}
	return json.Marshal(records)
}

func decodeVersions(raw []byte) ([]Versioned, error) {
	var records []boltVersion
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode sibling set: %w", err)
	}
	out := make([]Versioned, len(records))
	for i, r := range records {
		vc := clock.New()
		if err := vc.UnmarshalBinary(r.Clock); err != nil {
			return nil, fmt.Errorf("decode sibling clock: %w", err)
		}
		out[i] = Versioned{Value: r.Value, Clock: vc}
	}
	return out, nil
}
