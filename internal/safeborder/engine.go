// Package safeborder implements C7: the withdrawal-finalization border
// epoch, in both normal and bunker mode (§4.7).
package safeborder

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "safeborder")

// MIN_VALIDATOR_WITHDRAWABILITY_DELAY and EPOCHS_PER_SLASHINGS_VECTOR are
// beacon-chain constants named the way original_source's safe_border.py
// names them (§4.7 associated-slashing border).
const (
	MinValidatorWithdrawabilityDelay = 256
	EpochsPerSlashingsVector          = 8192
)

// SlashedValidator is the subset of validator state the associated-
// slashing border needs.
type SlashedValidator struct {
	Pubkey            [48]byte
	ExitEpoch         uint64
	WithdrawableEpoch uint64
}

// FrameValidatorSet fetches the Lido validator set (pubkey -> slashed) as
// observed at the last slot of the frame containing epoch e, for the binary
// search in the associated-slashing border.
type FrameValidatorSet func(ctx context.Context, epoch uint64) (slashedPubkeys map[[48]byte]bool, err error)

// Engine computes the safe border epoch for one frame.
type Engine struct {
	SlotsPerEpoch  uint64
	SecondsPerSlot uint64
	EpochsPerFrame uint64
}

func NewEngine(slotsPerEpoch, secondsPerSlot, epochsPerFrame uint64) *Engine {
	return &Engine{SlotsPerEpoch: slotsPerEpoch, SecondsPerSlot: secondsPerSlot, EpochsPerFrame: epochsPerFrame}
}

// FinalizationDefaultShift implements §4.7's
// `ceil(request_timestamp_margin / (slots_per_epoch * seconds_per_slot))`.
func (e *Engine) FinalizationDefaultShift(requestTimestampMarginSeconds uint64) uint64 {
	epochSeconds := e.SlotsPerEpoch * e.SecondsPerSlot
	return ceilDiv(requestTimestampMarginSeconds, epochSeconds)
}

// NormalBorder implements §4.7's normal mode.
func (e *Engine) NormalBorder(refEpoch, finalizationDefaultShift uint64) uint64 {
	if finalizationDefaultShift > refEpoch {
		return 0
	}
	return refEpoch - finalizationDefaultShift
}

// NegativeRebaseBorder implements §4.7's bunker-mode negative-rebase
// border.
func (e *Engine) NegativeRebaseBorder(
	refEpoch uint64,
	bunkerStartEpoch uint64,
	bunkerStartActive bool,
	lastSuccessfulRefEpoch uint64,
	finalizationDefaultShift uint64,
	finalizationMaxNegativeRebaseEpochShift uint64,
) uint64 {
	earliest := lastSuccessfulRefEpoch
	if bunkerStartActive && bunkerStartEpoch < earliest {
		earliest = bunkerStartEpoch
	}
	var border uint64
	if finalizationDefaultShift > earliest {
		border = 0
	} else {
		border = earliest - finalizationDefaultShift
	}
	floor := uint64(0)
	if refEpoch > finalizationMaxNegativeRebaseEpochShift {
		floor = refEpoch - finalizationMaxNegativeRebaseEpochShift
	}
	if border < floor {
		return floor
	}
	return border
}

// AssociatedSlashingBorder implements §4.7's associated-slashing border:
// for every still-non-withdrawable slashed validator, derive (or binary
// search for) the epoch at which the slashing occurred, round down to the
// start of its frame, and return the earliest such frame start minus
// finalization_default_shift. Returns (border, ok=false) when there are no
// candidates (border not applicable).
func (e *Engine) AssociatedSlashingBorder(
	ctx context.Context,
	refEpoch uint64,
	lastFinalizedRequestEpoch uint64,
	earliestActivationEpoch uint64,
	candidates []SlashedValidator,
	fetchSet FrameValidatorSet,
	finalizationDefaultShift uint64,
) (uint64, bool, error) {
	if len(candidates) == 0 {
		return 0, false, nil
	}

	var earliestFrameStart uint64 = ^uint64(0)
	var minWithdrawable uint64 = ^uint64(0)
	var needsSearch []SlashedValidator

	for _, v := range candidates {
		delay := v.WithdrawableEpoch - v.ExitEpoch
		if delay > MinValidatorWithdrawabilityDelay {
			var slashingEpoch uint64
			if v.WithdrawableEpoch > EpochsPerSlashingsVector {
				slashingEpoch = v.WithdrawableEpoch - EpochsPerSlashingsVector
			}
			frameStart := e.frameStart(slashingEpoch)
			if frameStart < earliestFrameStart {
				earliestFrameStart = frameStart
			}
			continue
		}
		needsSearch = append(needsSearch, v)
		if v.WithdrawableEpoch < minWithdrawable {
			minWithdrawable = v.WithdrawableEpoch
		}
	}

	if len(needsSearch) > 0 {
		lo := lastFinalizedRequestEpoch
		if earliestActivationEpoch > lo {
			lo = earliestActivationEpoch
		}
		hi := refEpoch
		if minWithdrawable != ^uint64(0) {
			ceiling := uint64(0)
			if minWithdrawable > EpochsPerSlashingsVector {
				ceiling = minWithdrawable - EpochsPerSlashingsVector
			}
			if ceiling < hi {
				hi = ceiling
			}
		}
		pubkeys := make(map[[48]byte]bool, len(needsSearch))
		for _, v := range needsSearch {
			pubkeys[v.Pubkey] = true
		}
		frame, err := e.binarySearchSlashingFrame(ctx, lo, hi, pubkeys, fetchSet)
		if err != nil {
			return 0, false, err
		}
		if frame < earliestFrameStart {
			earliestFrameStart = frame
		}
	}

	if earliestFrameStart == ^uint64(0) {
		return 0, false, nil
	}
	if finalizationDefaultShift > earliestFrameStart {
		return 0, true, nil
	}
	return earliestFrameStart - finalizationDefaultShift, true, nil
}

func (e *Engine) frameStart(epoch uint64) uint64 {
	if e.EpochsPerFrame == 0 {
		return epoch
	}
	return (epoch / e.EpochsPerFrame) * e.EpochsPerFrame
}

// binarySearchSlashingFrame implements §4.7's "binary search by frame":
// converges on the smallest frame (by frame-start epoch) whose Lido
// validator set, fetched at the frame's last slot, contains at least one of
// the candidate pubkeys marked slashed.
func (e *Engine) binarySearchSlashingFrame(ctx context.Context, lo, hi uint64, pubkeys map[[48]byte]bool, fetchSet FrameValidatorSet) (uint64, error) {
	if e.EpochsPerFrame == 0 {
		return 0, errors.New("safeborder: epochs per frame must be nonzero")
	}
	loFrame := lo / e.EpochsPerFrame
	hiFrame := hi / e.EpochsPerFrame
	if loFrame > hiFrame {
		return 0, errors.New("safeborder: empty binary search range")
	}

	anySlashedAt := func(frame uint64) (bool, error) {
		epoch := frame*e.EpochsPerFrame + e.EpochsPerFrame - 1
		slashed, err := fetchSet(ctx, epoch)
		if err != nil {
			return false, err
		}
		for pk := range pubkeys {
			if slashed[pk] {
				return true, nil
			}
		}
		return false, nil
	}

	result := hiFrame
	for loFrame <= hiFrame {
		mid := loFrame + (hiFrame-loFrame)/2
		found, err := anySlashedAt(mid)
		if err != nil {
			return 0, err
		}
		if found {
			result = mid
			if mid == 0 {
				break
			}
			hiFrame = mid - 1
		} else {
			loFrame = mid + 1
		}
	}
	return result * e.EpochsPerFrame, nil
}

// Border computes the final border epoch for one frame: the normal border
// in normal mode, or the minimum of the negative-rebase and
// associated-slashing borders (when applicable) in bunker mode (§4.7, P6).
func (e *Engine) Border(normal uint64, bunker bool, negativeRebase uint64, associatedSlashing uint64, associatedSlashingOK bool) uint64 {
	if !bunker {
		return normal
	}
	border := negativeRebase
	if associatedSlashingOK && associatedSlashing < border {
		border = associatedSlashing
	}
	if border > normal {
		log.Warnf("bunker-mode border %d exceeds normal border %d; clamping", border, normal)
		return normal
	}
	return border
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
