// Package idempotency remembers which record a client's Idempotency-Key
// created, so a retried POST returns the original record instead of a
// duplicate.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
)

const bucketName = "idempotency_keys"

// pendingLease is how long a claim without a bound record blocks the key.
// A request that dies mid-create frees its key after this.
const pendingLease = time.Minute

// entry is a claimed key. An empty RecordID means the create is in flight.
type entry struct {
	RecordID  string    `json:"record_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BoltStore implements port.IdempotencyStore on an embedded bolt file
type BoltStore struct {
	db     *bolt.DB
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewBoltStore opens (or creates) the key file at path. Keys older than ttl
// are treated as absent; ttl <= 0 keeps them forever.
func NewBoltStore(path string, ttl time.Duration, logger *zap.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open idempotency store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create idempotency bucket: %w", err)
	}

	return &BoltStore{db: db, ttl: ttl, now: time.Now, logger: logger}, nil
}

// Close releases the file lock
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func storeKey(scope, key string) []byte {
	return []byte(scope + "\x00" + key)
}

func (s *BoltStore) expired(e entry) bool {
	age := s.now().Sub(e.CreatedAt)
	if e.RecordID == "" {
		return age > pendingLease
	}
	return s.ttl > 0 && age > s.ttl
}

func (s *BoltStore) put(b *bolt.Bucket, k []byte, recordID string) error {
	data, err := json.Marshal(entry{RecordID: recordID, CreatedAt: s.now().UTC()})
	if err != nil {
		return err
	}
	return b.Put(k, data)
}

// live returns the unexpired entry stored under k
func (s *BoltStore) live(b *bolt.Bucket, k []byte) (entry, bool) {
	raw := b.Get(k)
	if raw == nil {
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || s.expired(e) {
		return entry{}, false
	}
	return e, true
}

// Reserve claims a key before the create runs. The check and the claim
// happen in one bolt write transaction, so of several concurrent requests
// exactly one gets reserved == true. A key bound to a finished create
// returns its record ID; a key still held by another request returns
// port.ErrConflict.
func (s *BoltStore) Reserve(scope, key string) (recordID string, reserved bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		k := storeKey(scope, key)

		if e, ok := s.live(b, k); ok {
			if e.RecordID == "" {
				return fmt.Errorf("idempotency key %q is held by a request in progress: %w", key, port.ErrConflict)
			}
			recordID = e.RecordID
			return nil
		}
		reserved = true
		return s.put(b, k, "")
	})
	if err != nil {
		return "", false, err
	}
	return recordID, reserved, nil
}

// Release drops an unbound claim so the client can retry after a failed
// create. Bound keys are kept.
func (s *BoltStore) Release(scope, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		k := storeKey(scope, key)
		if e, ok := s.live(b, k); ok && e.RecordID != "" {
			return nil
		}
		return b.Delete(k)
	})
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Lookup returns the record a key created, if it is still remembered
func (s *BoltStore) Lookup(scope, key string) (string, bool, error) {
	var e entry
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get(storeKey(scope, key))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		found = e.RecordID != "" && !s.expired(e)
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return e.RecordID, true, nil
}

// Remember binds a key to the record it created. A live binding for the
// same key is never overwritten; a pending claim is.
func (s *BoltStore) Remember(scope, key, recordID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		k := storeKey(scope, key)
		if e, ok := s.live(b, k); ok && e.RecordID != "" {
			return nil
		}
		return s.put(b, k, recordID)
	})
	if err != nil {
		return fmt.Errorf("failed to remember idempotency key: %w", err)
	}
	return nil
}

// Prune deletes expired keys and returns how many were removed
func (s *BoltStore) Prune(ctx context.Context) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e entry
			if err := json.Unmarshal(v, &e); err != nil || s.expired(e) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune idempotency keys: %w", err)
	}

	if removed > 0 {
		s.logger.Info("Pruned idempotency keys", zap.Int("removed", removed))
	}
	return removed, nil
}

var _ port.IdempotencyStore = (*BoltStore)(nil)
