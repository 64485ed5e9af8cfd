package distribution

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/storage"
)

func defaultCurve() CurveParams {
	return CurveParams{
		PerfCoefficients: DefaultPerformanceCoefficients(),
		PerfLeewayBP:     map[int]uint64{1: 500},
		RewardShareBP:    map[int]uint64{1: 10000},
		StrikesLifetime:  6,
	}
}

// S1: Empty frame — no validators assigned any duty this frame.
func TestRun_EmptyFrame(t *testing.T) {
	e := NewEngine()
	result, err := e.Run(nil, nil, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, 0.0, result.NetworkPerformance)
	require.Equal(t, uint64(0), result.TotalParticipation)
	require.Equal(t, uint64(0), result.TotalRebate)
	require.Equal(t, big.NewInt(0), result.ProtocolRebate)
	require.Empty(t, result.Operators)
}

// S2: One operator, one validator, perfect attestation participation and no
// other duties — it should earn its full reward share and draw no strike.
func TestRun_OneOperatorPerfectAttestation(t *testing.T) {
	e := NewEngine()
	validators := []ValidatorInput{
		{
			Index:    1,
			Operator: 7,
			Duties: DutyAccumulator{
				Attestation: DutyPair{Assigned: 100, Included: 100},
			},
		},
	}
	curves := map[OperatorID]CurveParams{7: defaultCurve()}

	result, err := e.Run(validators, curves, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, 1.0, result.NetworkPerformance)

	op := result.Operators[7]
	require.NotNil(t, op)
	require.Equal(t, uint64(100), op.ParticipationShares)
	require.Len(t, op.Strikes, 1)
	require.False(t, op.Strikes[0].Struck)

	alloc := result.OperatorAllocations[7]
	require.Equal(t, big.NewInt(1000), alloc)
	require.Equal(t, "0", result.ProtocolRebate.String())
}

// S3: Slashed during frame — a slashed validator draws a strike and
// contributes nothing to participation shares regardless of prior duties.
func TestRun_SlashedDuringFrame(t *testing.T) {
	e := NewEngine()
	validators := []ValidatorInput{
		{
			Index:    2,
			Operator: 9,
			Duties: DutyAccumulator{
				Attestation: DutyPair{Assigned: 100, Included: 90},
				Slashed:     true,
			},
		},
	}
	curves := map[OperatorID]CurveParams{9: defaultCurve()}

	result, err := e.Run(validators, curves, big.NewInt(500))
	require.NoError(t, err)

	op := result.Operators[9]
	require.NotNil(t, op)
	require.Equal(t, uint64(0), op.ParticipationShares)
	require.Len(t, op.Strikes, 1)
	require.True(t, op.Strikes[0].Struck)

	require.Equal(t, big.NewInt(0), result.OperatorAllocations[9])
}

// P1: never allocate more than the rewards available to a frame.
func TestRun_NeverAllocatesMoreThanAvailable(t *testing.T) {
	e := NewEngine()
	validators := []ValidatorInput{
		{Index: 1, Operator: 1, Duties: DutyAccumulator{Attestation: DutyPair{Assigned: 100, Included: 100}}},
		{Index: 2, Operator: 2, Duties: DutyAccumulator{Attestation: DutyPair{Assigned: 300, Included: 100}}},
		{Index: 3, Operator: 3, Duties: DutyAccumulator{Attestation: DutyPair{Assigned: 200, Included: 200}}},
	}
	curves := map[OperatorID]CurveParams{
		1: defaultCurve(), 2: defaultCurve(), 3: defaultCurve(),
	}
	rewards := big.NewInt(777)

	result, err := e.Run(validators, curves, rewards)
	require.NoError(t, err)

	var total big.Int
	for _, alloc := range result.OperatorAllocations {
		total.Add(&total, alloc)
	}
	total.Add(&total, result.ProtocolRebate)
	require.Equal(t, rewards, &total)
}

// P2: an operator whose validators fail their threshold earns zero
// participation shares and never a negative one, even while a strong
// co-operator pulls the network average up.
func TestRun_BelowThresholdEarnsNothing(t *testing.T) {
	e := NewEngine()
	validators := []ValidatorInput{
		{Index: 5, Operator: 4, Duties: DutyAccumulator{Attestation: DutyPair{Assigned: 100, Included: 10}}},
		{Index: 6, Operator: 8, Duties: DutyAccumulator{Attestation: DutyPair{Assigned: 100, Included: 100}}},
	}
	curves := map[OperatorID]CurveParams{4: defaultCurve(), 8: defaultCurve()}

	result, err := e.Run(validators, curves, big.NewInt(1000))
	require.NoError(t, err)
	op := result.Operators[4]
	require.Equal(t, uint64(0), op.ParticipationShares)
	require.True(t, op.Strikes[0].Struck)
}

func TestMergeCumulative_AccumulatesAcrossFrames(t *testing.T) {
	prev := map[OperatorID]*big.Int{1: big.NewInt(100), 2: big.NewInt(50)}
	frame := map[OperatorID]*big.Int{2: big.NewInt(25), 3: big.NewInt(10)}

	next := MergeCumulative(prev, frame)
	require.Equal(t, big.NewInt(100), next[1])
	require.Equal(t, big.NewInt(75), next[2])
	require.Equal(t, big.NewInt(10), next[3])
}

// Round trip: publish a cumulative report, load it back, and recover the
// exact same per-operator totals — the root-mismatch guard must not fire
// on an untampered round trip.
func TestPublishAndLoadPreviousReport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	pub := storage.NewMemPublisher()
	cumulative := map[OperatorID]*big.Int{1: big.NewInt(1000), 2: big.NewInt(2500)}

	c, root, err := PublishCumulativeReport(ctx, pub, cumulative)
	require.NoError(t, err)

	loaded, err := LoadPreviousReport(ctx, pub, c, root)
	require.NoError(t, err)
	require.Equal(t, cumulative[1], loaded[1])
	require.Equal(t, cumulative[2], loaded[2])
}

func TestLoadPreviousReport_RootMismatchRejected(t *testing.T) {
	ctx := context.Background()
	pub := storage.NewMemPublisher()
	cumulative := map[OperatorID]*big.Int{1: big.NewInt(1000)}

	c, _, err := PublishCumulativeReport(ctx, pub, cumulative)
	require.NoError(t, err)

	var wrongRoot [32]byte
	wrongRoot[0] = 0xff

	_, err = LoadPreviousReport(ctx, pub, c, wrongRoot)
	require.ErrorIs(t, err, ErrPreviousReportRootMismatch)
}

func TestMergeStrikes_AgesUntouchedAndPrunesAllZero(t *testing.T) {
	key := StrikesKey{Operator: 1, Pubkey: [48]byte{1}}
	prev := map[StrikesKey]StrikesList{key: {1}}

	next := MergeStrikes(prev, nil, map[OperatorID]int{1: 2})
	require.Equal(t, StrikesList{0, 1}, next[key])

	next = MergeStrikes(next, nil, map[OperatorID]int{1: 2})
	_, present := next[key]
	require.False(t, present, "all-zero ring should be pruned")
}
