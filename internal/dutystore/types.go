// Package dutystore implements C2: a durable, crash-safe, append-only
// mapping from epoch to per-validator duty outcomes. It is the single piece
// of state that survives process restarts (§7 Recovery policy); everything
// else is recomputed from the chain plus this store.
package dutystore

import "encoding/json"

// ValidatorIndex identifies a validator by its beacon-chain registry index.
type ValidatorIndex uint64

// Slot is a bare alias kept local to avoid an import cycle with
// internal/chainconfig; callers convert at the boundary.
type Slot uint64

// Epoch is a bare alias, see Slot.
type Epoch uint64

// ProposalDuty records whether the proposer of a given slot proposed a
// block (§3.3).
type ProposalDuty struct {
	Slot           Slot           `json:"slot"`
	ValidatorIndex ValidatorIndex `json:"validator_index"`
	Proposed       bool           `json:"proposed"`
}

// SyncDuty records one sync-committee member's miss count for an epoch
// (§3.3).
type SyncDuty struct {
	ValidatorIndex ValidatorIndex `json:"validator_index"`
	MissedCount    uint64         `json:"missed_count"`
}

// EpochRecord is the unit of storage for one epoch (§3.3). It is written
// exactly once, atomically, and is immutable thereafter.
type EpochRecord struct {
	Epoch              Epoch            `json:"epoch"`
	AttestationMisses  []ValidatorIndex `json:"attestation_misses"`
	Proposals          []ProposalDuty   `json:"proposals"`
	Syncs              []SyncDuty       `json:"syncs"`
}

// encode/decode use JSON rather than a binary codec: the store is opaque to
// the outside (§6.3) and JSON keeps the bolt value human-inspectable during
// incident response, matching the teacher's preference for json-iterator
// style encodings at storage boundaries over ad hoc binary formats for
// non-hot-path data.
func (r EpochRecord) encode() ([]byte, error) {
	return json.Marshal(r)
}

func decodeEpochRecord(b []byte) (EpochRecord, error) {
	var r EpochRecord
	err := json.Unmarshal(b, &r)
	return r, err
}
