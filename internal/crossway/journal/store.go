// Package journal records crossing episodes on disk and optionally archives
// them to S3-compatible storage.
//
// Store is safe for concurrent use; bbolt serializes writers and gives
// readers a consistent snapshot.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/autopeer-io/crossway/internal/crossway/core"
)

// Bucket names
var (
	episodesBucket = []byte("episodes")
	pendingBucket  = []byte("pending") // IDs not archived yet
)

var ErrNotFound = errors.New("episode not found")

// Episode is one pass through the intersection.
type Episode struct {
	// ID is a time-ordered UUID, so keys sort by creation.
	ID        string        `json:"id"`
	VehicleID core.PeerID   `json:"vehicleID"`
	Mode      string        `json:"mode"`
	Lane      core.LaneSpec `json:"lane"`

	RequestedAt time.Time `json:"requestedAt"`
	GrantedAt   time.Time `json:"grantedAt,omitempty"`
	ExitingAt   time.Time `json:"exitingAt,omitempty"`
	ClosedAt    time.Time `json:"closedAt"`

	// Retries counts resent access requests (centralized mode).
	Retries int `json:"retries"`
}

// Wait returns the time from request to grant, zero if never granted.
func (e *Episode) Wait() time.Duration {
	if e.GrantedAt.IsZero() {
		return 0
	}
	return e.GrantedAt.Sub(e.RequestedAt)
}

// Store persists episodes in a bbolt file.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{episodesBucket, pendingBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Close releases all database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores ep and marks it for archiving.
func (s *Store) Put(ep *Episode) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("failed to encode episode: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(episodesBucket).Put([]byte(ep.ID), data); err != nil {
			return err
		}
		return tx.Bucket(pendingBucket).Put([]byte(ep.ID), nil)
	})
}

// Get returns the episode with the given ID.
func (s *Store) Get(id string) (*Episode, error) {
	var ep Episode
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(episodesBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &ep)
	})
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// Recent returns up to limit episodes, newest first.
func (s *Store) Recent(limit int) ([]Episode, error) {
	var out []Episode
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(episodesBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var ep Episode
			if err := json.Unmarshal(v, &ep); err != nil {
				return fmt.Errorf("corrupt episode %s: %w", k, err)
			}
			out = append(out, ep)
		}
		return nil
	})
	return out, err
}

// Pending returns up to limit episodes not archived yet, oldest first.
func (s *Store) Pending(limit int) ([]Episode, error) {
	var out []Episode
	err := s.db.View(func(tx *bbolt.Tx) error {
		episodes := tx.Bucket(episodesBucket)
		c := tx.Bucket(pendingBucket).Cursor()
		for k, _ := c.First(); k != nil && len(out) < limit; k, _ = c.Next() {
			data := episodes.Get(k)
			if data == nil {
				continue
			}
			var ep Episode
			if err := json.Unmarshal(data, &ep); err != nil {
				return fmt.Errorf("corrupt episode %s: %w", k, err)
			}
			out = append(out, ep)
		}
		return nil
	})
	return out, err
}

// MarkArchived clears the pending flag of the given episodes.
func (s *Store) MarkArchived(ids ...string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}
