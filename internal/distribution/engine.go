package distribution

import (
	"math/big"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "distribution")

// ErrNetworkPerformanceExceedsOne is raised by step 1 when the weighted
// network average exceeds 1.0, which can only happen on a duty-store
// invariant violation (included > assigned somewhere) — fatal per §7 error
// kind 4.
var ErrNetworkPerformanceExceedsOne = errors.New("distribution: network performance exceeds 1.0")

// ErrDistributedExceedsAvailable guards P1/step 5.
var ErrDistributedExceedsAvailable = errors.New("distribution: allocated shares exceed rewards to distribute")

// Engine runs the per-frame algorithm of §4.5.
type Engine struct {
	DefaultCoefficients PerformanceCoefficients
}

func NewEngine() *Engine {
	return &Engine{DefaultCoefficients: DefaultPerformanceCoefficients()}
}

// NetworkPerformance implements §4.5 step 1.
func (e *Engine) NetworkPerformance(validators []ValidatorInput) (float64, error) {
	var att, prop, sync DutyPair
	for _, v := range validators {
		att.Assigned += v.Duties.Attestation.Assigned
		att.Included += v.Duties.Attestation.Included
		prop.Assigned += v.Duties.Proposal.Assigned
		prop.Included += v.Duties.Proposal.Included
		sync.Assigned += v.Duties.Sync.Assigned
		sync.Included += v.Duties.Sync.Included
	}
	perf := e.DefaultCoefficients.CalcPerformance(DutyAccumulator{Attestation: att, Proposal: prop, Sync: sync})
	if perf > 1.0 {
		return 0, errors.Wrapf(ErrNetworkPerformanceExceedsOne, "got %f", perf)
	}
	return perf, nil
}

// Run implements §4.5 steps 1-5 for one frame. curves maps operator ID to
// its curve parameters (perf_coefficients/perf_leeway_data/
// reward_share_data/strikes_params.lifetime). rewardsInFrame is the
// shares_to_distribute input.
func (e *Engine) Run(validators []ValidatorInput, curves map[OperatorID]CurveParams, rewardsInFrame *big.Int) (*FrameResult, error) {
	networkPerf, err := e.NetworkPerformance(validators)
	if err != nil {
		return nil, err
	}

	byOperator := groupByOperator(validators)
	result := &FrameResult{
		NetworkPerformance:  networkPerf,
		Operators:           make(map[OperatorID]*OperatorResult),
		OperatorAllocations: make(map[OperatorID]*big.Int),
	}

	var totalRebate uint64
	for op, vs := range byOperator {
		curve, ok := curves[op]
		if !ok {
			curve = CurveParams{PerfCoefficients: e.DefaultCoefficients}
		}
		opResult := e.runOperator(op, vs, networkPerf, curve)
		result.Operators[op] = opResult
		result.TotalParticipation += opResult.ParticipationShares
		totalRebate += opResult.rebateShares
	}
	result.TotalRebate = totalRebate

	totalShares := result.TotalParticipation + totalRebate
	if totalShares == 0 {
		for op := range result.Operators {
			result.OperatorAllocations[op] = big.NewInt(0)
		}
		result.ProtocolRebate = big.NewInt(0)
		return result, nil
	}

	var allocated big.Int
	for op, opResult := range result.Operators {
		alloc := new(big.Int).Mul(rewardsInFrame, new(big.Int).SetUint64(opResult.ParticipationShares))
		alloc.Div(alloc, new(big.Int).SetUint64(totalShares))
		result.OperatorAllocations[op] = alloc
		allocated.Add(&allocated, alloc)
	}
	protocolRebate := new(big.Int).Sub(rewardsInFrame, &allocated)
	result.ProtocolRebate = protocolRebate

	if allocated.Cmp(rewardsInFrame) > 0 {
		return nil, errors.Wrapf(ErrDistributedExceedsAvailable, "allocated=%s available=%s", allocated.String(), rewardsInFrame.String())
	}
	return result, nil
}

type operatorRunOutput = OperatorResult

func (e *Engine) runOperator(op OperatorID, vs []ValidatorInput, networkPerf float64, curve CurveParams) *operatorRunOutput {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Index < vs[j].Index })

	active := make([]ValidatorInput, 0, len(vs))
	for _, v := range vs {
		if v.Duties.Attestation.Assigned > 0 {
			active = append(active, v)
		}
	}

	result := &OperatorResult{Operator: op}
	for i, v := range active {
		k := i + 1 // validator number, 1-indexed within the operator (§4.5 step 2)
		threshold := networkPerf - curve.leewayFor(k)
		if threshold < 0 {
			threshold = 0
		}

		if v.Duties.Slashed {
			result.Strikes = append(result.Strikes, StrikeEvent{Operator: op, Pubkey: v.Pubkey, Struck: true})
			continue
		}

		performance := curve.PerfCoefficients.CalcPerformance(v.Duties)
		if performance > threshold {
			shareBP := curve.RewardShareBP[k]
			if _, ok := curve.RewardShareBP[k]; !ok {
				shareBP = uint64(curve.rewardShareFor(k) * 10000)
			}
			participation := ceilDiv(v.Duties.Attestation.Assigned*shareBP, 10000)
			if participation > v.Duties.Attestation.Assigned {
				participation = v.Duties.Attestation.Assigned
			}
			result.ParticipationShares += participation
			result.rebateShares += v.Duties.Attestation.Assigned - participation
			result.Strikes = append(result.Strikes, StrikeEvent{Operator: op, Pubkey: v.Pubkey, Struck: false})
		} else {
			result.Strikes = append(result.Strikes, StrikeEvent{Operator: op, Pubkey: v.Pubkey, Struck: true})
		}
	}
	return result
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func groupByOperator(validators []ValidatorInput) map[OperatorID][]ValidatorInput {
	out := make(map[OperatorID][]ValidatorInput)
	for _, v := range validators {
		out[v.Operator] = append(out[v.Operator], v)
	}
	return out
}
