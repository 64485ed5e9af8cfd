package safeborder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// S5: request_timestamp_margin = 1 day, slots_per_epoch = 32,
// seconds_per_slot = 12 -> finalization_default_shift = 225;
// ref_epoch = 1000 -> border = 775.
func TestNormalBorder_LiteralScenario(t *testing.T) {
	e := NewEngine(32, 12, 225)
	shift := e.FinalizationDefaultShift(86400)
	require.Equal(t, uint64(225), shift)

	border := e.NormalBorder(1000, shift)
	require.Equal(t, uint64(775), border)
}

// P6: bunker-mode border never exceeds the normal border.
func TestBorder_BunkerNeverExceedsNormal(t *testing.T) {
	e := NewEngine(32, 12, 225)
	normal := e.NormalBorder(1000, 225)

	border := e.Border(normal, true, normal+50, 0, false)
	require.LessOrEqual(t, border, normal)
}

func TestBorder_NormalModeReturnsNormal(t *testing.T) {
	e := NewEngine(32, 12, 225)
	normal := e.NormalBorder(1000, 225)
	require.Equal(t, normal, e.Border(normal, false, 0, 0, false))
}

func TestNegativeRebaseBorder_PicksEarliestAndFloors(t *testing.T) {
	e := NewEngine(32, 12, 225)

	// bunker start earlier than last successful report: uses bunker start.
	border := e.NegativeRebaseBorder(1000, 700, true, 900, 225, 1000)
	require.Equal(t, uint64(700-225), border)

	// floor: refEpoch - maxNegativeRebaseShift must not be undercut.
	floored := e.NegativeRebaseBorder(1000, 10, true, 900, 225, 50)
	require.Equal(t, uint64(1000-50), floored)
}

func TestAssociatedSlashingBorder_DirectFormulaWhenDelayExceedsMinimum(t *testing.T) {
	e := NewEngine(32, 12, 225)
	ctx := context.Background()

	candidates := []SlashedValidator{
		{Pubkey: [48]byte{1}, ExitEpoch: 1000, WithdrawableEpoch: 1000 + MinValidatorWithdrawabilityDelay + 1},
	}

	border, ok, err := e.AssociatedSlashingBorder(ctx, 50000, 0, 0, candidates, nil, 225)
	require.NoError(t, err)
	require.True(t, ok)
	require.Less(t, border, candidates[0].WithdrawableEpoch)
}

func TestAssociatedSlashingBorder_BinarySearchConverges(t *testing.T) {
	e := NewEngine(32, 12, 10) // small frame size for a fast test

	pubkey := [48]byte{7}
	// withdrawable_epoch - exit_epoch equals the minimum delay exactly, so
	// the slashing epoch is undetectable from state alone and the engine
	// must fall back to the binary search; withdrawable_epoch is kept
	// comfortably above EPOCHS_PER_SLASHINGS_VECTOR so the search ceiling
	// (min(withdrawable_epoch) - EPOCHS_PER_SLASHINGS_VECTOR) is positive.
	candidates := []SlashedValidator{
		{Pubkey: pubkey, ExitEpoch: 9000, WithdrawableEpoch: 9000 + MinValidatorWithdrawabilityDelay},
	}

	// Validators become slashed at frame index >= 50 in this synthetic set.
	fetchSet := func(ctx context.Context, epoch uint64) (map[[48]byte]bool, error) {
		frame := epoch / 10
		if frame >= 50 {
			return map[[48]byte]bool{pubkey: true}, nil
		}
		return map[[48]byte]bool{}, nil
	}

	border, ok, err := e.AssociatedSlashingBorder(context.Background(), 2000, 0, 0, candidates, fetchSet, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(500), border) // frame 50 starts at epoch 500
}

func TestAssociatedSlashingBorder_NoCandidatesReturnsNotApplicable(t *testing.T) {
	e := NewEngine(32, 12, 225)
	_, ok, err := e.AssociatedSlashingBorder(context.Background(), 1000, 0, 0, nil, nil, 225)
	require.NoError(t, err)
	require.False(t, ok)
}
