// Package checkpoint implements C3: the streaming pipeline that turns
// beacon-chain blocks/attestations into duty-store epoch records, in fixed
// checkpoints bound to the block_roots historical ring (§4.3).
package checkpoint

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-bitfield"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	cons "github.com/prysmaticlabs/lido-oracle-core/internal/adapters/consensus"
	"github.com/prysmaticlabs/lido-oracle-core/internal/dutystore"
)

var log = logrus.WithField("prefix", "checkpoint")

// Constants fixed by beacon-chain semantics (§4.3).
const (
	SlotsPerHistoricalRoot   = 8192
	CheckpointSlotDelayEpochs = 2
	MaxCheckpointStep        = 255
	MinCheckpointStep        = 10
)

// Pipeline drives one checkpoint at a time against a Client and Store.
type Pipeline struct {
	client         cons.Client
	store          *dutystore.Store
	slotsPerEpoch  uint64
	concurrency    int

	syncCommitteeCache *epochSyncCache
}

// NewPipeline constructs a Pipeline. concurrency bounds the worker pool
// used within one checkpoint (§4.3's "bounded worker pool, default
// configurable, typically 2-16"); concurrency <= 0 defaults to 4.
func NewPipeline(client cons.Client, store *dutystore.Store, slotsPerEpoch uint64, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{
		client:             client,
		store:              store,
		slotsPerEpoch:       slotsPerEpoch,
		concurrency:         concurrency,
		syncCommitteeCache: newEpochSyncCache(),
	}
}

// PlanCheckpoint selects the duty epochs to process for one checkpoint,
// applying the MIN_CHECKPOINT_STEP/MAX_CHECKPOINT_STEP bounds (§4.3). It
// returns nil if the window is not yet deep enough behind finalizedEpoch to
// justify forming a checkpoint.
func (p *Pipeline) PlanCheckpoint(fromEpoch, toEpoch, finalizedEpoch dutystore.Epoch) []dutystore.Epoch {
	if toEpoch < fromEpoch {
		return nil
	}
	if uint64(finalizedEpoch-fromEpoch) < MinCheckpointStep {
		return nil
	}
	last := toEpoch
	if uint64(last-fromEpoch) > MaxCheckpointStep-1 {
		last = fromEpoch + dutystore.Epoch(MaxCheckpointStep-1)
	}
	epochs := make([]dutystore.Epoch, 0, last-fromEpoch+1)
	for e := fromEpoch; e <= last; e++ {
		epochs = append(epochs, e)
	}
	return epochs
}

// RunCheckpoint executes the algorithm in §4.3 for the given set of
// not-yet-stored duty epochs. demandNonceBefore is the dutystore demand
// nonce observed before starting; if it changes mid-run the checkpoint
// still completes (it is strictly useful data) but the caller must not
// start another one (§4.3 Cancellation) — RunCheckpoint reports whether the
// nonce moved so the caller can decide.
func (p *Pipeline) RunCheckpoint(ctx context.Context, epochs []dutystore.Epoch, demandNonceBefore uint64) (nonceChanged bool, err error) {
	if len(epochs) == 0 {
		return false, nil
	}
	maxEpoch := epochs[len(epochs)-1]
	checkpointEpoch := maxEpoch + CheckpointSlotDelayEpochs
	checkpointSlot := uint64(checkpointEpoch) * p.slotsPerEpoch

	roots, err := p.client.BlockRoots(ctx, cons.BySlot(checkpointSlot))
	if err != nil {
		return false, errors.Wrap(err, "fetch block_roots at checkpoint slot")
	}
	markMissedDuplicates(roots)

	sem := semaphore.NewWeighted(int64(p.concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range epochs {
		e := e
		if err := sem.Acquire(gctx, 1); err != nil {
			return false, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			return p.processEpoch(gctx, e, roots)
		})
	}
	if err := g.Wait(); err != nil {
		// any worker error aborts the checkpoint and is fatal at the
		// process level (§4.3 Failure); the caller is expected to exit.
		metrics.workerFailures.Inc()
		return false, errors.Wrap(err, "checkpoint worker failed")
	}
	metrics.checkpointsRun.Inc()
	metrics.epochsProcessed.Add(float64(len(epochs)))
	return p.store.DemandNonce() != demandNonceBefore, nil
}

// markMissedDuplicates implements §4.3 step 2: duplicate consecutive roots
// (a slot whose block_root equals its predecessor's means the slot was
// missed and the parent root is repeated) are marked as missed (nil). Only
// such duplicates are marked; the first root of the ring is never marked,
// and no separate pivot root is handled.
func markMissedDuplicates(roots cons.BlockRootsRing) {
	for i := 1; i < len(roots.Roots); i++ {
		if roots.Roots[i] == nil || roots.Roots[i-1] == nil {
			continue
		}
		if *roots.Roots[i] == *roots.Roots[i-1] {
			roots.Roots[i] = nil
		}
	}
}

func (p *Pipeline) processEpoch(ctx context.Context, epoch dutystore.Epoch, roots cons.BlockRootsRing) error {
	committees, err := p.client.AttestationCommittees(ctx, uint64(epoch))
	if err != nil {
		return errors.Wrapf(err, "epoch %d: attestation committees", epoch)
	}
	expectedMiss := newMissSet(committees)

	proposerDuties, err := p.client.ProposerDuties(ctx, uint64(epoch))
	if err != nil {
		return errors.Wrapf(err, "epoch %d: proposer duties", epoch)
	}
	proposed := make(map[uint64]bool, len(proposerDuties))

	syncMembers, err := p.syncCommitteeFor(ctx, epoch)
	if err != nil {
		return errors.Wrapf(err, "epoch %d: sync committee", epoch)
	}
	missedSync := make(map[uint64]uint64, len(syncMembers))

	// two consecutive epoch-worth of slots: the duty epoch and the next
	// (§4.3 step 3 — late attestation inclusion can land in epoch+1).
	firstSlot := uint64(epoch) * p.slotsPerEpoch
	lastSlot := firstSlot + 2*p.slotsPerEpoch - 1

	for slot := firstSlot; slot <= lastSlot; slot++ {
		if !slotNonMissed(roots, slot) {
			continue
		}
		duties, ok, err := p.client.BlockDuties(ctx, slot)
		if err != nil {
			return errors.Wrapf(err, "epoch %d: block duties at slot %d", epoch, slot)
		}
		if !ok {
			continue
		}
		for _, att := range duties.Attestations {
			if err := creditAttestation(expectedMiss, committees, att); err != nil {
				return errors.Wrapf(err, "epoch %d: attestation at slot %d", epoch, slot)
			}
		}
		if duties.SyncAggregate != nil {
			if err := creditSync(missedSync, syncMembers, *duties.SyncAggregate); err != nil {
				return errors.Wrapf(err, "epoch %d: sync aggregate at slot %d", epoch, slot)
			}
		}
		if slot >= firstSlot && slot < firstSlot+p.slotsPerEpoch {
			proposed[duties.ProposerIndex] = true
		}
	}

	rec := dutystore.EpochRecord{
		Epoch:             epoch,
		AttestationMisses: setToSortedSlice(expectedMiss),
		Proposals:         buildProposals(proposerDuties, proposed),
		Syncs:             buildSyncs(syncMembers, missedSync),
	}
	return p.store.StoreEpoch(rec)
}

func (p *Pipeline) syncCommitteeFor(ctx context.Context, epoch dutystore.Epoch) ([]uint64, error) {
	const epochsPerSyncCommitteePeriod = 256
	period := uint64(epoch) / epochsPerSyncCommitteePeriod
	if cached, ok := p.syncCommitteeCache.get(period); ok {
		return cached, nil
	}
	members, err := p.client.SyncCommittee(ctx, uint64(epoch))
	if err != nil {
		return nil, err
	}
	// insertion into the shared cache is the one place §4.3's concurrency
	// contract calls out as needing serialization beyond the duty-store
	// write path.
	p.syncCommitteeCache.put(period, members)
	return members, nil
}

func slotNonMissed(roots cons.BlockRootsRing, slot uint64) bool {
	idx := int(slot - roots.StartSlot)
	if idx < 0 || idx >= len(roots.Roots) {
		return false
	}
	return roots.Roots[idx] != nil
}

func newMissSet(committees []cons.CommitteeAssignment) map[uint64]struct{} {
	set := make(map[uint64]struct{})
	for _, c := range committees {
		for _, v := range c.Validators {
			set[v] = struct{}{}
		}
	}
	return set
}

// creditAttestation removes, for each set bit of the attestation's
// aggregation bitlist, the corresponding validator from the expected-miss
// set (§4.3 step 4d).
func creditAttestation(expectedMiss map[uint64]struct{}, committees []cons.CommitteeAssignment, att cons.AttestationData) error {
	var committee *cons.CommitteeAssignment
	for i := range committees {
		if committees[i].Slot == att.Slot && committees[i].CommitteeIndex == att.CommitteeIndex {
			committee = &committees[i]
			break
		}
	}
	if committee == nil {
		return nil // attestation references a committee outside this epoch's window; ignore
	}
	bits := bitfield.Bitlist(att.AggregationBits)
	for i, validator := range committee.Validators {
		if i >= int(bits.Len()) {
			break
		}
		if bits.BitAt(uint64(i)) {
			delete(expectedMiss, validator)
		}
	}
	return nil
}

// creditSync increments missed_count for each unset bit of the sync
// aggregate (§4.3 step 4d).
func creditSync(missed map[uint64]uint64, syncMembers []uint64, agg cons.SyncAggregate) error {
	bits := bitfield.Bitvector512(agg.SyncCommitteeBits)
	for i, member := range syncMembers {
		if i >= len(agg.SyncCommitteeBits)*8 {
			break
		}
		if !bits.BitAt(uint64(i)) {
			missed[member]++
		}
	}
	return nil
}

func setToSortedSlice(set map[uint64]struct{}) []dutystore.ValidatorIndex {
	out := make([]dutystore.ValidatorIndex, 0, len(set))
	for v := range set {
		out = append(out, dutystore.ValidatorIndex(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func buildProposals(duties []cons.ProposerDuty, proposed map[uint64]bool) []dutystore.ProposalDuty {
	out := make([]dutystore.ProposalDuty, len(duties))
	for i, d := range duties {
		out[i] = dutystore.ProposalDuty{
			Slot:           dutystore.Slot(d.Slot),
			ValidatorIndex: dutystore.ValidatorIndex(d.ValidatorIndex),
			Proposed:       proposed[d.ValidatorIndex],
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func buildSyncs(members []uint64, missed map[uint64]uint64) []dutystore.SyncDuty {
	out := make([]dutystore.SyncDuty, len(members))
	for i, m := range members {
		out[i] = dutystore.SyncDuty{ValidatorIndex: dutystore.ValidatorIndex(m), MissedCount: missed[m]}
	}
	return out
}
