// Package storage is the local snapshot journal. It keeps recent desk
// snapshots and the last good value of each polled resource in BoltDB so the
// dashboard can show stale data on start instead of a blank screen.
//
// The journal is a client-side cache. The desk service remains the owner of
// all persisted state.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"

	"deskwatch/internal/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	dbFile          = "deskwatch.db"
	snapshotsBucket = "snapshots" // Snapshot records keyed by receipt time
	metaBucket      = "meta"      // Pointers such as the latest snapshot key
	latestKey       = "latest"
)

// SnapshotRecord is one journaled snapshot.
type SnapshotRecord struct {
	Kind       string         `json:"kind"`
	ReceivedAt time.Time      `json:"received_at"`
	Data       map[string]any `json:"data"`
}

// MetricsInterface defines the metrics the journal reports.
type MetricsInterface interface {
	JournalWriteInc()
	JournalFailureInc()
}

type nopMetrics struct{}

func (nopMetrics) JournalWriteInc()   {}
func (nopMetrics) JournalFailureInc() {}

type Options struct {
	// Retention is the number of snapshots kept; older ones are pruned on write.
	Retention int
	Metrics   MetricsInterface
}

// Store provides the journal on top of BoltDB.
type Store struct {
	db        *bbolt.DB
	retention int
	metrics   MetricsInterface
}

// New opens (or creates) the journal under dataPath.
func New(dataPath string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data path: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{snapshotsBucket, metaBucket, pollsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if opts.Retention <= 0 {
		opts.Retention = common.DefaultJournalRetention
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Store{db: db, retention: opts.Retention, metrics: opts.Metrics}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// timeKey encodes t so that byte order matches time order.
func timeKey(t time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano()))
	return k
}

// AppendSnapshot journals rec and prunes the oldest records beyond the
// retention count. The latest pointer only moves forward in receipt time.
func (s *Store) AppendSnapshot(rec SnapshotRecord) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(snapshotsBucket))
		meta := tx.Bucket([]byte(metaBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}

		key := timeKey(rec.ReceivedAt)
		if err := b.Put(key, data); err != nil {
			return err
		}
		if cur := meta.Get([]byte(latestKey)); cur == nil || bytes.Compare(key, cur) >= 0 {
			if err := meta.Put([]byte(latestKey), key); err != nil {
				return err
			}
		}
		return prune(b, s.retention)
	})
	if err != nil {
		s.metrics.JournalFailureInc()
		return err
	}
	s.metrics.JournalWriteInc()
	return nil
}

// countKeys walks the bucket. Stats() misses writes made earlier in the same
// transaction.
func countKeys(b *bbolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func prune(b *bbolt.Bucket, keep int) error {
	excess := countKeys(b) - keep
	if excess <= 0 {
		return nil
	}
	c := b.Cursor()
	for k, _ := c.First(); k != nil && excess > 0; k, _ = c.First() {
		if err := c.Delete(); err != nil {
			return fmt.Errorf("prune snapshot: %w", err)
		}
		excess--
	}
	return nil
}

// LatestSnapshot returns the most recently appended snapshot, or nil when the
// journal is empty.
func (s *Store) LatestSnapshot() (*SnapshotRecord, error) {
	var rec *SnapshotRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(snapshotsBucket))
		var data []byte
		if key := tx.Bucket([]byte(metaBucket)).Get([]byte(latestKey)); key != nil {
			data = b.Get(key)
		}
		if data == nil {
			// The pointed-to record was pruned; fall back to the newest key.
			_, data = b.Cursor().Last()
		}
		if data == nil {
			return nil
		}
		rec = &SnapshotRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("read latest snapshot: %w", err)
	}
	return rec, nil
}

// Snapshots returns the journaled snapshots received within [start, end],
// oldest first. Malformed records are skipped.
func (s *Store) Snapshots(start, end time.Time) ([]SnapshotRecord, error) {
	var records []SnapshotRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(snapshotsBucket)).Cursor()
		endKey := timeKey(end)

		for k, v := c.Seek(timeKey(start)); k != nil && string(k) <= string(endKey); k, v = c.Next() {
			var rec SnapshotRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// Count returns the number of journaled snapshots.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = countKeys(tx.Bucket([]byte(snapshotsBucket)))
		return nil
	})
	return n, err
}
