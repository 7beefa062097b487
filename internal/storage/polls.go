package storage

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const pollsBucket = "polls"

// PollRecord is the last good value of one polled resource.
type PollRecord struct {
	Resource  string    `json:"resource"`
	FetchedAt time.Time `json:"fetched_at"`
	Value     any       `json:"value"`
}

// StorePoll replaces the cached value for rec.Resource.
func (s *Store) StorePoll(rec PollRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal poll record: %w", err)
		}
		return tx.Bucket([]byte(pollsBucket)).Put([]byte(rec.Resource), data)
	})
}

// Poll returns the cached value for resource, or nil if there is none.
func (s *Store) Poll(resource string) (*PollRecord, error) {
	var rec *PollRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(pollsBucket)).Get([]byte(resource))
		if data == nil {
			return nil
		}
		rec = &PollRecord{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}
