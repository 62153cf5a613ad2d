// Package snapshot persists metadata table snapshots in an embedded
// BadgerDB, keyed by device id. The wear bookkeeping must survive restarts;
// losing it means losing erase counts and the bad-block list, so the store
// keeps every snapshot ever taken and serves the latest per device.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/flashcore/pkg/flash/metadata"
)

// ErrNotFound indicates no snapshot exists for the requested device.
var ErrNotFound = errors.New("snapshot not found")

// Store persists metadata snapshots in a BadgerDB directory.
type Store struct {
	db *badgerdb.DB
}

// Open creates or opens the snapshot store at dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// keyLatest points at the most recent snapshot for a device.
func keyLatest(deviceID uuid.UUID) []byte {
	return []byte("snapshot/latest/" + deviceID.String())
}

// keyHistory stores every snapshot under its capture timestamp.
func keyHistory(deviceID uuid.UUID, takenAt time.Time) []byte {
	return []byte("snapshot/history/" + deviceID.String() + "/" + takenAt.UTC().Format(time.RFC3339Nano))
}

// Save persists a snapshot as the latest for the device and appends it to
// the device's history.
func (s *Store) Save(ctx context.Context, deviceID uuid.UUID, snap *metadata.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(keyLatest(deviceID), payload); err != nil {
			return err
		}
		return txn.Set(keyHistory(deviceID, snap.TakenAt), payload)
	})
}

// Load returns the latest snapshot for the device, or ErrNotFound.
func (s *Store) Load(ctx context.Context, deviceID uuid.UUID) (*metadata.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snap *metadata.Snapshot
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyLatest(deviceID))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			snap = new(metadata.Snapshot)
			if err := json.Unmarshal(val, snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// History returns all snapshot capture times for the device, oldest first.
func (s *Store) History(ctx context.Context, deviceID uuid.UUID) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte("snapshot/history/" + deviceID.String() + "/")
	var times []time.Time

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			ts, err := time.Parse(time.RFC3339Nano, string(key[len(prefix):]))
			if err != nil {
				return fmt.Errorf("malformed history key %q: %w", key, err)
			}
			times = append(times, ts)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return times, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
