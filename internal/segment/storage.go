package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketSegments = []byte("segments")

// ErrNotFound is returned when a segment does not exist
var ErrNotFound = fmt.Errorf("segment not found")

// Storage provides segment storage operations
type Storage struct {
	db *bolt.DB
}

// NewStorage creates segment storage on an existing database
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSegments)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create segment bucket: %w", err)
	}
	return &Storage{db: db}, nil
}

func segmentKey(storeID, id string) []byte {
	return []byte(storeID + "/" + id)
}

// Create creates a new segment
func (s *Storage) Create(ctx context.Context, seg *Segment) error {
	if seg.StoreID == "" {
		return fmt.Errorf("segment store_id is required")
	}
	if seg.Name == "" {
		return fmt.Errorf("segment name is required")
	}
	if err := seg.Validate(); err != nil {
		return err
	}

	seg.ID = uuid.New().String()
	seg.CreatedAt = time.Now()

	return s.put(seg)
}

// Update replaces an existing segment
func (s *Storage) Update(ctx context.Context, seg *Segment) error {
	if err := seg.Validate(); err != nil {
		return err
	}

	existing, err := s.Get(ctx, seg.StoreID, seg.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}

	seg.CreatedAt = existing.CreatedAt
	return s.put(seg)
}

func (s *Storage) put(seg *Segment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(seg)
		if err != nil {
			return fmt.Errorf("failed to marshal segment: %w", err)
		}
		return tx.Bucket(bucketSegments).Put(segmentKey(seg.StoreID, seg.ID), data)
	})
}

// Get retrieves a segment by ID, or nil if not found
func (s *Storage) Get(ctx context.Context, storeID, id string) (*Segment, error) {
	var seg *Segment

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSegments).Get(segmentKey(storeID, id))
		if data == nil {
			return nil
		}
		seg = &Segment{}
		return json.Unmarshal(data, seg)
	})

	return seg, err
}

// List returns a store's segments, ordered by ID
func (s *Storage) List(ctx context.Context, storeID string) ([]*Segment, error) {
	var result []*Segment

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSegments).Cursor()
		prefix := []byte(storeID + "/")

		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			var seg Segment
			if err := json.Unmarshal(v, &seg); err != nil {
				continue
			}
			result = append(result, &seg)
		}
		return nil
	})

	return result, err
}

// Delete removes a segment. Referential checks against campaigns are the
// caller's responsibility.
func (s *Storage) Delete(ctx context.Context, storeID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := segmentKey(storeID, id)
		if tx.Bucket(bucketSegments).Get(key) == nil {
			return ErrNotFound
		}
		return tx.Bucket(bucketSegments).Delete(key)
	})
}

// RefreshCount re-evaluates the segment via the given evaluator and
// stores the resulting count with a timestamp. The cache is advisory;
// dispatch never reads it.
func (s *Storage) RefreshCount(ctx context.Context, ev *Evaluator, storeID, id string, now time.Time) (*Segment, error) {
	seg, err := s.Get(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, ErrNotFound
	}

	count, err := ev.Count(ctx, seg, now)
	if err != nil {
		return nil, err
	}

	seg.CustomerCount = count
	seg.CountUpdatedAt = &now

	if err := s.put(seg); err != nil {
		return nil, err
	}
	return seg, nil
}
