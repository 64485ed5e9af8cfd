// Package storage is the C10 adapter over content-addressed storage (IPFS
// in production; spec.md explicitly keeps "IPFS provider selection" out of
// core scope, so this package only defines the interface C5/C6/C9 program
// against, plus a deterministic in-memory implementation used by tests and
// by the reference encoder round-trip checks in §8).
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sync"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	mh "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

var log = logging.Logger("storage")

// Publisher publishes immutable blobs and fetches them back by CID
// (§4.10). Pinning is the implementation's responsibility, not the
// caller's.
type Publisher interface {
	Publish(ctx context.Context, data []byte, name string) (cid.Cid, error)
	Fetch(ctx context.Context, c cid.Cid) ([]byte, error)
}

// MemPublisher is an in-process Publisher keyed by content hash — useful
// for tests and for the round-trip law in §8 ("CID = publish(bytes);
// fetch(CID) == bytes").
type MemPublisher struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemPublisher() *MemPublisher {
	return &MemPublisher{blobs: make(map[string][]byte)}
}

func (m *MemPublisher) Publish(_ context.Context, data []byte, name string) (cid.Cid, error) {
	sum := sha256.Sum256(data)
	mhash, err := mh.Encode(sum[:], mh.SHA2_256)
	if err != nil {
		return cid.Cid{}, errors.Wrap(err, "multihash encode")
	}
	c := cid.NewCidV1(cid.Raw, mhash)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[c.String()] = append([]byte(nil), data...)
	log.Debugw("published blob", "name", name, "cid", c.String(), "bytes", len(data))
	return c, nil
}

func (m *MemPublisher) Fetch(_ context.Context, c cid.Cid) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[c.String()]
	if !ok {
		return nil, errors.Errorf("storage: cid %s not found", c.String())
	}
	return append([]byte(nil), b...), nil
}

// VerifyRoundTrip is a small helper used by tests implementing the §8
// round-trip law.
func VerifyRoundTrip(ctx context.Context, p Publisher, data []byte) error {
	c, err := p.Publish(ctx, data, "roundtrip-check")
	if err != nil {
		return err
	}
	got, err := p.Fetch(ctx, c)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, data) {
		return errors.New("storage: round trip mismatch")
	}
	return nil
}
