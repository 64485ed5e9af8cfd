// Package distribution implements C5: per-frame reward shares and strikes
// from collected duties, with a Merkle-tree-backed cumulative-rewards
// report (§4.5).
package distribution

import "math/big"

type ValidatorIndex uint64
type OperatorID uint64

// DutyPair is an (assigned, included) pair (§3.4).
type DutyPair struct {
	Assigned uint64
	Included uint64
}

// Perf returns included/assigned, or 0 if nothing was assigned.
func (p DutyPair) Perf() float64 {
	if p.Assigned == 0 {
		return 0
	}
	return float64(p.Included) / float64(p.Assigned)
}

// DutyAccumulator is the per-(frame, validator) aggregate from §3.4.
type DutyAccumulator struct {
	Attestation DutyPair
	Proposal    DutyPair
	Sync        DutyPair
	Slashed     bool
}

// PerformanceCoefficients weighs attestation/proposal/sync duties into one
// performance number (§4.5 step 1, §9's "calc_performance").
type PerformanceCoefficients struct {
	AttestationWeight uint64
	ProposalWeight    uint64
	SyncWeight        uint64
}

// DefaultPerformanceCoefficients matches the reference weighting used for
// the network-performance baseline in §4.5 step 1.
func DefaultPerformanceCoefficients() PerformanceCoefficients {
	return PerformanceCoefficients{AttestationWeight: 54, ProposalWeight: 8, SyncWeight: 2}
}

// CalcPerformance computes the weighted-average performance across present
// duty types; a duty type with Assigned==0 contributes zero weight (§4.5
// step 1/3).
func (c PerformanceCoefficients) CalcPerformance(d DutyAccumulator) float64 {
	var weightedSum float64
	var totalWeight uint64
	if d.Attestation.Assigned > 0 {
		weightedSum += float64(c.AttestationWeight) * d.Attestation.Perf()
		totalWeight += c.AttestationWeight
	}
	if d.Proposal.Assigned > 0 {
		weightedSum += float64(c.ProposalWeight) * d.Proposal.Perf()
		totalWeight += c.ProposalWeight
	}
	if d.Sync.Assigned > 0 {
		weightedSum += float64(c.SyncWeight) * d.Sync.Perf()
		totalWeight += c.SyncWeight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / float64(totalWeight)
}

// CurveParams are per-operator curve inputs (§4.5 Inputs).
type CurveParams struct {
	PerfCoefficients PerformanceCoefficients
	// PerfLeewayBP maps validator-number (1-indexed within the operator) to
	// a leeway in basis points, subtracted from the network baseline to
	// form that validator's threshold.
	PerfLeewayBP map[int]uint64
	// RewardShareBP maps validator-number to the operator's reward share
	// in basis points.
	RewardShareBP map[int]uint64
	StrikesLifetime int
}

func (c CurveParams) leewayFor(k int) float64 {
	bp, ok := c.PerfLeewayBP[k]
	if !ok {
		// fall back to the highest-numbered bracket at or below k, the way
		// a monotone key-number->value curve is read (§4.5 Inputs
		// "perf_leeway_data").
		var best int = -1
		for key := range c.PerfLeewayBP {
			if key <= k && key > best {
				best = key
			}
		}
		if best == -1 {
			return 0
		}
		bp = c.PerfLeewayBP[best]
	}
	return float64(bp) / 10000
}

func (c CurveParams) rewardShareFor(k int) float64 {
	bp, ok := c.RewardShareBP[k]
	if !ok {
		var best int = -1
		for key := range c.RewardShareBP {
			if key <= k && key > best {
				best = key
			}
		}
		if best == -1 {
			return 1.0
		}
		bp = c.RewardShareBP[best]
	}
	return float64(bp) / 10000
}

// ValidatorInput is one validator's per-frame duty data plus its operator
// assignment and identity, as read lazily from the duty store (§3.4).
type ValidatorInput struct {
	Index      ValidatorIndex
	Pubkey     [48]byte
	Operator   OperatorID
	Duties     DutyAccumulator
}

// OperatorResult is the per-operator outcome of one frame (§4.5 steps 2-4).
type OperatorResult struct {
	Operator            OperatorID
	ParticipationShares uint64
	Strikes             []StrikeEvent

	rebateShares uint64
}

// StrikeEvent is one validator's strike verdict this frame.
type StrikeEvent struct {
	Operator OperatorID
	Pubkey   [48]byte
	Struck   bool
}

// FrameResult is the full output of Run for one frame.
type FrameResult struct {
	NetworkPerformance float64
	Operators          map[OperatorID]*OperatorResult
	TotalParticipation uint64
	TotalRebate        uint64
	OperatorAllocations map[OperatorID]*big.Int
	ProtocolRebate      *big.Int
}
