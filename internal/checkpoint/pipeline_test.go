package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/require"

	cons "github.com/prysmaticlabs/lido-oracle-core/internal/adapters/consensus"
	"github.com/prysmaticlabs/lido-oracle-core/internal/dutystore"
)

const slotsPerEpoch = 32

type fakeClient struct {
	roots      cons.BlockRootsRing
	committees map[uint64][]cons.CommitteeAssignment // by epoch
	proposers  map[uint64][]cons.ProposerDuty
	syncMembers []uint64
	blocks     map[uint64]cons.BlockDuties // by slot
}

func (f *fakeClient) BlockStampByID(ctx context.Context, id cons.StateID) (cons.BlockStamp, error) {
	return cons.BlockStamp{}, nil
}
func (f *fakeClient) StateView(ctx context.Context, id cons.StateID) (cons.StateView, error) {
	return cons.StateView{}, nil
}
func (f *fakeClient) BlockRoots(ctx context.Context, id cons.StateID) (cons.BlockRootsRing, error) {
	return f.roots, nil
}
func (f *fakeClient) BlockDuties(ctx context.Context, slot uint64) (cons.BlockDuties, bool, error) {
	d, ok := f.blocks[slot]
	return d, ok, nil
}
func (f *fakeClient) AttestationCommittees(ctx context.Context, e uint64) ([]cons.CommitteeAssignment, error) {
	return f.committees[e], nil
}
func (f *fakeClient) ProposerDuties(ctx context.Context, e uint64) ([]cons.ProposerDuty, error) {
	return f.proposers[e], nil
}
func (f *fakeClient) SyncCommittee(ctx context.Context, e uint64) ([]uint64, error) {
	return f.syncMembers, nil
}
func (f *fakeClient) GenesisTime(ctx context.Context) (uint64, error) { return 0, nil }

func allRootsPresent(start uint64, n int) cons.BlockRootsRing {
	roots := make([]*common.Hash, n)
	for i := range roots {
		var r common.Hash
		r[0] = byte(i + 1)
		roots[i] = &r
	}
	return cons.BlockRootsRing{StartSlot: start, Roots: roots}
}

func TestProcessEpoch_CreditsFullParticipation(t *testing.T) {
	store, err := dutystore.NewStore(context.Background(), filepath.Join(t.TempDir(), "d.db"))
	require.NoError(t, err)
	defer store.Close()

	epoch := dutystore.Epoch(1)
	firstSlot := uint64(epoch) * slotsPerEpoch
	lastSlot := firstSlot + 2*slotsPerEpoch - 1

	committee := cons.CommitteeAssignment{Slot: firstSlot, CommitteeIndex: 0, Validators: []uint64{10, 11, 12}}
	bits := bitfield.NewBitlist(3)
	bits.SetBitAt(0, true)
	bits.SetBitAt(1, true)
	bits.SetBitAt(2, true)

	blocks := map[uint64]cons.BlockDuties{
		firstSlot: {
			Slot:          firstSlot,
			ProposerIndex: 99,
			Attestations:  []cons.AttestationData{{Slot: firstSlot, CommitteeIndex: 0, AggregationBits: bits}},
		},
	}

	fc := &fakeClient{
		roots:       allRootsPresent(firstSlot, int(lastSlot-firstSlot+1)),
		committees:  map[uint64][]cons.CommitteeAssignment{uint64(epoch): {committee}},
		proposers:   map[uint64][]cons.ProposerDuty{uint64(epoch): {{Slot: firstSlot, ValidatorIndex: 99}}},
		syncMembers: []uint64{1, 2},
		blocks:      blocks,
	}

	p := NewPipeline(fc, store, slotsPerEpoch, 2)
	_, err = p.RunCheckpoint(context.Background(), []dutystore.Epoch{epoch}, 0)
	require.NoError(t, err)

	rec, err := store.GetEpoch(epoch)
	require.NoError(t, err)
	require.Empty(t, rec.AttestationMisses, "all three validators attested, miss set should be empty")
	require.Len(t, rec.Proposals, 1)
	require.True(t, rec.Proposals[0].Proposed)
	require.Len(t, rec.Syncs, 2)
}

func TestPlanCheckpoint_RespectsMinAndMaxStep(t *testing.T) {
	store, err := dutystore.NewStore(context.Background(), filepath.Join(t.TempDir(), "d.db"))
	require.NoError(t, err)
	defer store.Close()
	p := NewPipeline(&fakeClient{}, store, slotsPerEpoch, 2)

	require.Nil(t, p.PlanCheckpoint(100, 110, 105), "window not deep enough behind finalized head")

	epochs := p.PlanCheckpoint(0, 1000, 2000)
	require.Len(t, epochs, MaxCheckpointStep)
}
