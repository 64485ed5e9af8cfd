package dutystore

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "dutystore")

var (
	epochBucket = []byte("epoch_records")

	// ErrEpochConflict is returned by StoreEpoch when an epoch is already
	// present with a payload that differs from the one being written.
	// Append-only means a caller must never try to overwrite an epoch with
	// different data (§4.2).
	ErrEpochConflict = errors.New("dutystore: epoch already stored with a different payload")

	// ErrCorrupt is fatal per §4.2's "corruption on read is a fatal error"
	// rule; the caller is expected to exit the process rather than retry.
	ErrCorrupt = errors.New("dutystore: corrupt record on read")
)

// Store is a bolt-backed implementation of C2. All methods are safe for
// concurrent use; writers serialize on bolt's single-writer transaction
// model (mirroring prysm's beacon-chain/db/kv.Store), and reads use bolt's
// MVCC read transactions so queries never block writers (§4.2).
type Store struct {
	db *bolt.DB

	mu           sync.RWMutex
	demand       map[string][2]Epoch // name -> [l, r]
	demandNonce  uint64
}

// NewStore opens (creating if absent) a bolt database at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt db")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(epochBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create epoch bucket")
	}
	return &Store{db: db, demand: make(map[string][2]Epoch)}, nil
}

// Close releases the underlying bolt handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func epochKey(e Epoch) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(e))
	return b
}

// StoreEpoch writes an epoch's duty record atomically. A re-write of an
// already-stored epoch is accepted only when byte-identical to what is
// already there (§4.2); anything else is ErrEpochConflict.
func (s *Store) StoreEpoch(rec EpochRecord) error {
	sort.Slice(rec.AttestationMisses, func(i, j int) bool { return rec.AttestationMisses[i] < rec.AttestationMisses[j] })
	payload, err := rec.encode()
	if err != nil {
		return errors.Wrap(err, "encode epoch record")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(epochBucket)
		key := epochKey(rec.Epoch)
		if existing := b.Get(key); existing != nil {
			if bytes.Equal(existing, payload) {
				return nil
			}
			return errors.Wrapf(ErrEpochConflict, "epoch %d", rec.Epoch)
		}
		// bolt.Put copies both key and value before returning, so it is
		// safe to reuse the byte slices across transactions; the write
		// becomes visible to new read transactions only after commit,
		// which is bolt's atomicity guarantee and satisfies §5's
		// "duty store writes happen-before any read reporting that epoch"
		// ordering requirement.
		return b.Put(key, payload)
	})
}

// HasEpoch reports whether epoch e has been fully written.
func (s *Store) HasEpoch(e Epoch) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(epochBucket).Get(epochKey(e))
		found = v != nil
		return nil
	})
	return found, err
}

// GetEpoch reads back a stored epoch record.
func (s *Store) GetEpoch(e Epoch) (EpochRecord, error) {
	var rec EpochRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(epochBucket).Get(epochKey(e))
		if v == nil {
			return errors.Errorf("epoch %d not stored", e)
		}
		decoded, decErr := decodeEpochRecord(v)
		if decErr != nil {
			return errors.Wrapf(ErrCorrupt, "epoch %d: %v", e, decErr)
		}
		rec = decoded
		return nil
	})
	return rec, err
}

// MinEpoch returns the smallest stored epoch. ok is false if the store is
// empty.
func (s *Store) MinEpoch() (e Epoch, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(epochBucket).Cursor()
		k, _ := c.First()
		if k == nil {
			return nil
		}
		ok = true
		e = Epoch(binary.BigEndian.Uint64(k))
		return nil
	})
	return e, ok, err
}

// MaxEpoch returns the largest stored epoch. ok is false if the store is
// empty.
func (s *Store) MaxEpoch() (e Epoch, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(epochBucket).Cursor()
		k, _ := c.Last()
		if k == nil {
			return nil
		}
		ok = true
		e = Epoch(binary.BigEndian.Uint64(k))
		return nil
	})
	return e, ok, err
}

// MissingEpochsIn returns every epoch in [l, r] that is not yet stored, in
// ascending order.
func (s *Store) MissingEpochsIn(l, r Epoch) ([]Epoch, error) {
	var missing []Epoch
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(epochBucket)
		for e := l; e <= r; e++ {
			if b.Get(epochKey(e)) == nil {
				missing = append(missing, e)
			}
			if e == ^Epoch(0) { // overflow guard, unreachable in practice
				break
			}
		}
		return nil
	})
	return missing, err
}

// RegisterDemand records that some consumer needs epochs in [l, r] to be
// present, under name. Changing the demand bumps the epochs_demand_nonce
// so the checkpoint pipeline can detect a boundary shift mid-run (§3.3,
// §4.3 Cancellation).
func (s *Store) RegisterDemand(name string, l, r Epoch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.demand[name]
	if existed && prev[0] == l && prev[1] == r {
		return
	}
	s.demand[name] = [2]Epoch{l, r}
	s.demandNonce++
	log.WithFields(logrus.Fields{"name": name, "l": l, "r": r, "nonce": s.demandNonce}).Debug("epochs demand changed")
}

// DemandNonce returns the current epochs_demand_nonce.
func (s *Store) DemandNonce() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.demandNonce
}
