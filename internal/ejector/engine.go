// Package ejector implements C8: the deterministic exit-priority selection
// that decides which validators to surface for voluntary ejection this
// frame (§4.8).
package ejector

import (
	"math/big"
	"sort"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "ejector")

// ExitCandidate is one validator eligible for ejection, carrying this
// frame's predicted contribution to the withdrawal queue's demand if it
// were exited now.
type ExitCandidate struct {
	ModuleID                 uint64
	OperatorID                uint64
	ValidatorIndex            uint64
	PredictedWithdrawableWei  *big.Int
	Forced                    bool
}

// ExitPriorityLess orders candidates the way the module's exit-priority
// policy does: staking-module id, then operator id, then validator index,
// all ascending (§4.8 "deterministic exit-priority iterator").
func ExitPriorityLess(a, b ExitCandidate) bool {
	if a.ModuleID != b.ModuleID {
		return a.ModuleID < b.ModuleID
	}
	if a.OperatorID != b.OperatorID {
		return a.OperatorID < b.OperatorID
	}
	return a.ValidatorIndex < b.ValidatorIndex
}

// SortByExitPriority returns candidates ordered by the exit-priority
// policy.
func SortByExitPriority(candidates []ExitCandidate) []ExitCandidate {
	sorted := append([]ExitCandidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return ExitPriorityLess(sorted[i], sorted[j]) })
	return sorted
}

// Demand is the withdrawal-queue demand this frame must cover (§4.8).
type Demand struct {
	UnfinalizedStETH *big.Int
	// Base is everything already counted outside the candidates being
	// selected: current_el_balance + going_to_withdraw_balance +
	// future_rewards + future_withdrawals.
	Base *big.Int
}

// SelectForExit implements §4.8's goal: choose the smallest prefix of the
// deterministic exit-priority order such that base + sum(selected
// predicted contributions) >= unfinalized_steth, then append any forced
// candidates not already selected.
func SelectForExit(candidates []ExitCandidate, demand Demand) []ExitCandidate {
	ordered := SortByExitPriority(candidates)

	covered := new(big.Int).Set(demand.Base)
	var selected []ExitCandidate
	selectedIdx := make(map[uint64]map[uint64]bool) // moduleID -> validatorIndex -> true

	markSelected := func(c ExitCandidate) {
		if selectedIdx[c.ModuleID] == nil {
			selectedIdx[c.ModuleID] = make(map[uint64]bool)
		}
		selectedIdx[c.ModuleID][c.ValidatorIndex] = true
		selected = append(selected, c)
	}

	for _, c := range ordered {
		if c.Forced {
			continue // forced candidates are appended after the greedy set
		}
		if covered.Cmp(demand.UnfinalizedStETH) >= 0 {
			break
		}
		markSelected(c)
		covered.Add(covered, c.PredictedWithdrawableWei)
	}

	for _, c := range ordered {
		if !c.Forced {
			continue
		}
		if selectedIdx[c.ModuleID] != nil && selectedIdx[c.ModuleID][c.ValidatorIndex] {
			continue
		}
		markSelected(c)
	}

	return selected
}
