// Package consensus is the C10 read-only adapter over a beacon-node REST
// API. It mirrors the surface prysm's api/client/beacon package exposes to
// in-process callers, but is defined as a narrow interface (rather than a
// concrete HTTP client) so engines can be tested against a fake without
// spinning up a server — the transport itself (HTTP/JSON, retries across
// fallback providers, per-call timeouts) is explicitly out of core scope
// per spec.md §1.
package consensus

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// StateID selects a beacon state the way the standard beacon-node REST API
// does: a special string ("head", "finalized", "justified", "genesis"), a
// slot number, or a state/block root. Callers resolve symbolic ids to a
// concrete slot before caching per §5's "never cache symbolic identifiers"
// rule; see internal/adapters/consensus/cache.go.
type StateID struct {
	Symbol string // "head" | "finalized" | "justified" | "genesis" | ""
	Slot   *uint64
	Root   *common.Hash
}

func Head() StateID      { return StateID{Symbol: "head"} }
func Finalized() StateID { return StateID{Symbol: "finalized"} }
func BySlot(s uint64) StateID { return StateID{Slot: &s} }
func ByRoot(r common.Hash) StateID { return StateID{Root: &r} }

// Symbolic reports whether the id is one of the non-cacheable symbolic
// forms.
func (s StateID) Symbolic() bool { return s.Symbol != "" }

// BlockStamp identifies a finalized (or otherwise pinned) point in both the
// consensus and execution layers (§3.2).
type BlockStamp struct {
	StateRoot      common.Hash
	SlotNumber     uint64
	BlockHash      common.Hash
	BlockNumber    uint64
	BlockTimestamp uint64
}

// ReferenceBlockStamp extends BlockStamp with the frame's nominal reference
// coordinates (§3.2). When the reference slot was missed, SlotNumber points
// at the previous non-missed slot while RefSlot/RefEpoch keep the frame's
// nominal values.
type ReferenceBlockStamp struct {
	BlockStamp
	RefSlot  uint64
	RefEpoch uint64
}

// Validator is the subset of beacon-chain validator state the core engines
// need.
type Validator struct {
	Index                      uint64
	Pubkey                     [48]byte
	WithdrawalCredentials      [32]byte
	EffectiveBalance           uint64
	Balance                    uint64
	Slashed                    bool
	ActivationEligibilityEpoch uint64
	ActivationEpoch            uint64
	ExitEpoch                  uint64
	WithdrawableEpoch          uint64
}

// PendingDeposit mirrors the post-Electra pending_deposits state field.
type PendingDeposit struct {
	Pubkey                [48]byte
	WithdrawalCredentials [32]byte
	AmountGwei            uint64
	Signature             [96]byte
	Slot                   uint64
}

// PendingPartialWithdrawal mirrors pending_partial_withdrawals.
type PendingPartialWithdrawal struct {
	ValidatorIndex    uint64
	AmountGwei        uint64
	WithdrawableEpoch uint64
}

// StateView is a read-only snapshot of the beacon state fields the engines
// need, fetched at a specific StateID (§4.10).
type StateView struct {
	Slot                   uint64
	Validators             []Validator
	EarliestExitEpoch      uint64
	ExitBalanceToConsume   uint64
	PendingDeposits        []PendingDeposit
	PendingPartialWithdraw []PendingPartialWithdrawal
	Slashings              []uint64 // EPOCHS_PER_SLASHINGS_VECTOR-wide ring, gwei
}

// BlockRootsRing is the SLOTS_PER_HISTORICAL_ROOT-wide block_roots vector
// (§4.3). A nil entry at index i means slot StartSlot+i's block was missed (or is a
// duplicate of its predecessor, per the checkpoint pipeline's
// dedup-then-mark-missed rule).
type BlockRootsRing struct {
	StartSlot uint64
	Roots     []*common.Hash
}

// AttestationData is the subset of an attestation needed to credit
// inclusion against the expected-miss set (§4.3 step 4d).
type AttestationData struct {
	Slot            uint64
	CommitteeIndex  uint64
	AggregationBits []byte // SSZ bitlist, LSB-first, sentinel high bit
}

// SyncAggregate mirrors the per-block sync committee bit vector.
type SyncAggregate struct {
	SyncCommitteeBits []byte // SSZ bitvector
}

// BlockDuties is everything the checkpoint pipeline needs out of one
// non-missed slot's block (§4.3 step 4d).
type BlockDuties struct {
	Slot             uint64
	ProposerIndex    uint64
	Attestations     []AttestationData
	SyncAggregate    *SyncAggregate
}

// CommitteeAssignment is one (slot, committee_index) -> validators entry
// (§4.3 step 4a).
type CommitteeAssignment struct {
	Slot           uint64
	CommitteeIndex uint64
	Validators     []uint64
}

// ProposerDuty is one slot's assigned proposer (§4.3 step 4b).
type ProposerDuty struct {
	Slot           uint64
	ValidatorIndex uint64
}

// Client is the read-only beacon-node surface C3/C4/C7/C8 consume.
type Client interface {
	// BlockStampByID resolves a StateID to a concrete BlockStamp. A provider
	// hinting "state not found" for a slot/root after pruning MUST be
	// transparently retried by slot number at the adapter layer (§4.10);
	// that retry lives in the concrete HTTP implementation, not here.
	BlockStampByID(ctx context.Context, id StateID) (BlockStamp, error)

	StateView(ctx context.Context, id StateID) (StateView, error)

	// BlockRoots returns the block_roots ring as observed at the state
	// identified by id (§4.3 step 2).
	BlockRoots(ctx context.Context, id StateID) (BlockRootsRing, error)

	// BlockDuties returns one slot's proposer/attestations/sync-aggregate,
	// or ok=false if the slot was missed.
	BlockDuties(ctx context.Context, slot uint64) (duties BlockDuties, ok bool, err error)

	// AttestationCommittees returns the committee assignments for epoch e.
	AttestationCommittees(ctx context.Context, e uint64) ([]CommitteeAssignment, error)

	// ProposerDuties returns the proposer schedule for epoch e, computed
	// against the dependent root of epoch e-1's last slot (§4.3 step 4b).
	ProposerDuties(ctx context.Context, e uint64) ([]ProposerDuty, error)

	// SyncCommittee returns the sync committee members active in epoch e.
	SyncCommittee(ctx context.Context, e uint64) ([]uint64, error)

	GenesisTime(ctx context.Context) (uint64, error)
}
