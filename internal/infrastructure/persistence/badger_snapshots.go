package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/vitos/lendflow/internal/domain"
)

const snapshotPrefix = "snapshot/"

// BadgerSnapshots is the BadgerDB implementation of domain.SnapshotStore.
// Each value is an 8-byte big-endian unix-nano timestamp followed by the
// payload.
type BadgerSnapshots struct {
	db *badger.DB
}

// NewBadgerSnapshots opens (or creates) the store in dir.
func NewBadgerSnapshots(dir string) (*BadgerSnapshots, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return open(opts)
}

// NewInMemorySnapshots returns a store that is lost on Close.
func NewInMemorySnapshots() (*BadgerSnapshots, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*BadgerSnapshots, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerSnapshots{db: db}, nil
}

func (s *BadgerSnapshots) SaveSnapshot(key string, data []byte, at time.Time) error {
	val := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(val[:8], uint64(at.UnixNano()))
	copy(val[8:], data)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotPrefix+key), val)
	})
}

// LoadSnapshot returns domain.ErrNotFound when key was never saved.
func (s *BadgerSnapshots) LoadSnapshot(key string) ([]byte, time.Time, error) {
	var (
		data []byte
		at   time.Time
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) < 8 {
				return errors.New("snapshot value is truncated")
			}
			at = time.Unix(0, int64(binary.BigEndian.Uint64(val[:8])))
			data = append([]byte(nil), val[8:]...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, time.Time{}, domain.ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, at, nil
}

func (s *BadgerSnapshots) Close() error {
	return s.db.Close()
}
