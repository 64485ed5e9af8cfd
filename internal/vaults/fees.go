package vaults

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrLiabilitySharesMismatch is the fatal data inconsistency raised when the
// backward fee-event walk doesn't reconcile with the previous report's
// liability_shares (§4.6 Step C, P5).
var ErrLiabilitySharesMismatch = errors.New("vaults: reconstructed liability_shares mismatch")

// FeeParams are the network-wide constants the fee formulas are
// parameterized by; spec.md leaves their numeric values to on-chain
// configuration rather than naming them, so they are engine inputs.
type FeeParams struct {
	BlocksPerYear  uint64
	CoreAPRRatioBP uint64 // basis points of "core APR ratio"
}

// ceilDivBig computes ceil(num/den) for non-negative big.Ints.
func ceilDivBig(num, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	return out.Div(out, den)
}

// linearFee computes ceil(principal * blocksElapsed * coreAPRRatioBP * feeBP
// / (blocksPerYear * 10000)), the shared closed form behind infra_fee and
// reservation_fee (§4.6 Step C).
func linearFee(principal *big.Int, blocksElapsed uint64, feeBP uint64, p FeeParams) *big.Int {
	num := new(big.Int).Set(principal)
	num.Mul(num, new(big.Int).SetUint64(blocksElapsed))
	num.Mul(num, new(big.Int).SetUint64(p.CoreAPRRatioBP))
	num.Mul(num, new(big.Int).SetUint64(feeBP))
	den := new(big.Int).Mul(new(big.Int).SetUint64(p.BlocksPerYear), big.NewInt(10000))
	return ceilDivBig(num, den)
}

// InfraFee implements §4.6 Step C's infra_fee formula.
func InfraFee(totalValueWei *big.Int, blocksElapsed uint64, infraFeeBP uint64, p FeeParams) *big.Int {
	return linearFee(totalValueWei, blocksElapsed, infraFeeBP, p)
}

// ReservationFee implements §4.6 Step C's reservation_fee formula.
func ReservationFee(mintableStETH *big.Int, blocksElapsed uint64, reservationFeeBP uint64, p FeeParams) *big.Int {
	return linearFee(mintableStETH, blocksElapsed, reservationFeeBP, p)
}

// sortEvents orders events by (block, log index) ascending, the order they
// were emitted on-chain.
func sortEvents(events []VaultEvent) []VaultEvent {
	sorted := append([]VaultEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].BlockNumber() != sorted[j].BlockNumber() {
			return sorted[i].BlockNumber() < sorted[j].BlockNumber()
		}
		return sorted[i].LogIndex() < sorted[j].LogIndex()
	})
	return sorted
}

// LiquidityFeeResult is the outcome of walking a vault's event history
// backward across one accrual window.
type LiquidityFeeResult struct {
	Fee                   *big.Int
	ReconstructedLiability *big.Int
}

// AccrueLiquidityFee implements §4.6 Step C's backward piecewise walk.
// currentLiabilityShares and currentLiquidityFeeBP are the vault's values as
// of currentBlock; shareRateAt resolves the (pre_total_pooled_ether,
// pre_total_shares) snapshot effective immediately before a given block,
// matching "recompute minted stETH from the current liability_shares x
// pre_total_pooled_ether / pre_total_shares" at each boundary.
func AccrueLiquidityFee(
	vaultAddr common.Address,
	events []VaultEvent,
	prevBlock, currentBlock uint64,
	currentLiabilityShares *big.Int,
	currentLiquidityFeeBP uint64,
	shareRateAt func(block uint64) ShareRateAt,
	p FeeParams,
) (LiquidityFeeResult, error) {
	sorted := sortEvents(events)

	liability := new(big.Int).Set(currentLiabilityShares)
	feeBP := currentLiquidityFeeBP
	fee := big.NewInt(0)
	cursor := currentBlock

	for i := len(sorted) - 1; i >= 0; i-- {
		ev := sorted[i]
		block := ev.BlockNumber()
		if block <= prevBlock || block > currentBlock {
			continue
		}

		blocksInInterval := cursor - block
		if blocksInInterval > 0 && liability.Sign() > 0 {
			minted := shareRateAt(block).MintedStETH(liability)
			fee.Add(fee, linearFee(minted, blocksInInterval, feeBP, p))
		}
		cursor = block

		switch e := ev.(type) {
		case MintEvent:
			liability.Sub(liability, e.Shares)
		case BurnEvent:
			liability.Add(liability, e.Shares)
		case RebalanceEvent:
			liability.Add(liability, e.Shares)
		case BadDebtWrittenOffEvent:
			liability.Add(liability, e.Shares)
		case BadDebtSocializedEvent:
			liability = applyBadDebtSocialized(vaultAddr, liability, e)
		case FeesUpdateEvent:
			feeBP = e.LiquidityFeeBP
		case ReconnectEvent:
			if liability.Sign() != 0 {
				return LiquidityFeeResult{}, errors.Wrapf(ErrLiabilitySharesMismatch, "vault %s: reconnect boundary with nonzero liability_shares %s", vaultAddr.Hex(), liability.String())
			}
			return LiquidityFeeResult{Fee: fee, ReconstructedLiability: liability}, nil
		default:
			return LiquidityFeeResult{}, errors.Errorf("vaults: unknown event type %T", ev)
		}
	}

	if cursor > prevBlock && liability.Sign() > 0 {
		minted := shareRateAt(prevBlock + 1).MintedStETH(liability)
		fee.Add(fee, linearFee(minted, cursor-prevBlock, feeBP, p))
	}

	return LiquidityFeeResult{Fee: fee, ReconstructedLiability: liability}, nil
}

func applyBadDebtSocialized(vaultAddr common.Address, liability *big.Int, e BadDebtSocializedEvent) *big.Int {
	next := new(big.Int).Set(liability)
	if common.BytesToAddress(e.DonorVault[:]) == vaultAddr {
		next.Add(next, e.Shares)
	} else if common.BytesToAddress(e.AcceptorVault[:]) == vaultAddr {
		next.Sub(next, e.Shares)
	}
	return next
}
