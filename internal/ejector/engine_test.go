package ejector

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// S4: unfinalized_steth = 200, expected_balance_base = 100, each candidate
// contributes 50 predicted wei -> iteration yields exactly two validators.
func TestSelectForExit_LiteralScenario(t *testing.T) {
	candidates := []ExitCandidate{
		{ModuleID: 1, OperatorID: 1, ValidatorIndex: 1, PredictedWithdrawableWei: big.NewInt(50)},
		{ModuleID: 1, OperatorID: 1, ValidatorIndex: 2, PredictedWithdrawableWei: big.NewInt(50)},
		{ModuleID: 1, OperatorID: 1, ValidatorIndex: 3, PredictedWithdrawableWei: big.NewInt(50)},
	}
	demand := Demand{UnfinalizedStETH: big.NewInt(200), Base: big.NewInt(100)}

	selected := SelectForExit(candidates, demand)
	require.Len(t, selected, 2)
	require.Equal(t, uint64(1), selected[0].ValidatorIndex)
	require.Equal(t, uint64(2), selected[1].ValidatorIndex)
}

func TestSelectForExit_OrdersByModuleThenOperatorThenValidator(t *testing.T) {
	candidates := []ExitCandidate{
		{ModuleID: 2, OperatorID: 1, ValidatorIndex: 1, PredictedWithdrawableWei: big.NewInt(1)},
		{ModuleID: 1, OperatorID: 2, ValidatorIndex: 1, PredictedWithdrawableWei: big.NewInt(1)},
		{ModuleID: 1, OperatorID: 1, ValidatorIndex: 5, PredictedWithdrawableWei: big.NewInt(1)},
		{ModuleID: 1, OperatorID: 1, ValidatorIndex: 2, PredictedWithdrawableWei: big.NewInt(1)},
	}
	sorted := SortByExitPriority(candidates)
	require.Equal(t, uint64(1), sorted[0].ModuleID)
	require.Equal(t, uint64(1), sorted[0].OperatorID)
	require.Equal(t, uint64(2), sorted[0].ValidatorIndex)
	require.Equal(t, uint64(5), sorted[1].ValidatorIndex)
	require.Equal(t, uint64(2), sorted[2].OperatorID)
	require.Equal(t, uint64(2), sorted[3].ModuleID)
}

func TestSelectForExit_ForcedValidatorsAlwaysAppended(t *testing.T) {
	candidates := []ExitCandidate{
		{ModuleID: 1, OperatorID: 1, ValidatorIndex: 9, PredictedWithdrawableWei: big.NewInt(0), Forced: true},
	}
	demand := Demand{UnfinalizedStETH: big.NewInt(0), Base: big.NewInt(1000)} // already satisfied

	selected := SelectForExit(candidates, demand)
	require.Len(t, selected, 1)
	require.True(t, selected[0].Forced)
}

func TestSelectForExit_ForcedValidatorAppendedOnceAlongsideGreedyPick(t *testing.T) {
	// A candidate can't be both forced and a greedy pick in this model since
	// SelectForExit skips forced candidates in the greedy pass; this test
	// documents that a forced candidate is appended exactly once next to a
	// greedy pick of another validator index in the same module.
	candidates := []ExitCandidate{
		{ModuleID: 1, OperatorID: 1, ValidatorIndex: 1, PredictedWithdrawableWei: big.NewInt(100)},
		{ModuleID: 1, OperatorID: 1, ValidatorIndex: 2, PredictedWithdrawableWei: big.NewInt(0), Forced: true},
	}
	demand := Demand{UnfinalizedStETH: big.NewInt(50), Base: big.NewInt(0)}

	selected := SelectForExit(candidates, demand)
	require.Len(t, selected, 2)
}

func TestSweepDelayEpochs_ZeroWhenNothingWithdrawable(t *testing.T) {
	delay := SweepDelayEpochs(nil, nil, 100, 32)
	require.Equal(t, uint64(0), delay)
}

func TestSweepDelayEpochs_CountsFullyWithdrawable(t *testing.T) {
	var validators []SweepValidator
	for i := 0; i < 2000; i++ {
		validators = append(validators, SweepValidator{
			HasExecutionWithdrawalCredentials: true,
			WithdrawableEpoch:                 10,
			BalanceGwei:                       32_000_000_000,
		})
	}
	delay := SweepDelayEpochs(validators, nil, 100, 32)
	require.Greater(t, delay, uint64(0))
}

func TestPredictedWithdrawableEpoch_AddsMinimumDelay(t *testing.T) {
	queue := ExitQueueState{MaxExitEpoch: 1000, TailCount: 1}
	epoch := PredictedWithdrawableEpoch(900, 1, queue)
	require.GreaterOrEqual(t, epoch, uint64(1000+MinValidatorWithdrawabilityDelay))
}

func TestPredictedWithdrawableEpoch_ActivationExitEpochOverridesStaleQueue(t *testing.T) {
	queue := ExitQueueState{MaxExitEpoch: 10, TailCount: 5} // queue far in the past
	epoch := PredictedWithdrawableEpoch(1000, 1, queue)
	expectedFloor := 1000 + 1 + MaxSeedLookahead + 1 + MinValidatorWithdrawabilityDelay
	require.Equal(t, uint64(expectedFloor), epoch)
}

func TestBalanceBasedExitEpoch_ConsumesChurnAcrossEpochs(t *testing.T) {
	base := ExitQueueState{
		ConsensusVersion:                     2,
		MaxExitEpoch:                         1000,
		EarliestExitEpoch:                    1000,
		ExitBalanceToConsume:                 0,
		PerEpochActivationExitChurnLimitGwei: MaxEffectiveBalanceElectra, // exactly 1 validator worth per epoch
	}

	epochFor1 := PredictedWithdrawableEpoch(99, 1, base)
	epochFor3 := PredictedWithdrawableEpoch(99, 3, base)

	// Requesting more exits in the same queue state must never resolve to
	// an earlier withdrawable epoch.
	require.GreaterOrEqual(t, epochFor3, epochFor1)
	require.GreaterOrEqual(t, epochFor1, uint64(1000+MinValidatorWithdrawabilityDelay))
}
