// Package vaults implements C6: per-vault total value, slashing reserve,
// fee accrual, and the accounting module's vault Merkle tree (§4.6).
package vaults

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/execution"
)

// BeaconValidator is the subset of consensus-layer validator state Step A/B
// need, independent of the full adapter Validator type so this package
// doesn't import internal/adapters/consensus just for a handful of fields.
type BeaconValidator struct {
	Index                 uint64
	Pubkey                [48]byte
	WithdrawalCredentials [32]byte
	BalanceGwei           uint64
	Slashed               bool
	ExitEpoch             uint64
	WithdrawableEpoch     uint64
}

// PendingDeposit mirrors the post-Electra pending_deposits state entry used
// by Step A's front-running guard.
type PendingDeposit struct {
	Pubkey                [48]byte
	WithdrawalCredentials [32]byte
	AmountGwei            uint64
	Signature             [96]byte
}

// Vault is one connected vault's on-chain record plus this frame's
// computed fields (§3.7, §4.6).
type Vault struct {
	Info execution.VaultInfo

	TotalValueWei    *big.Int
	SlashingReserve  *big.Int
	FeeTotal         *big.Int
	InfraFee         *big.Int
	LiquidityFee     *big.Int
	ReservationFee   *big.Int
	LiabilityShares  *big.Int
}

// ShareRateAt is a (total_pooled_ether, total_shares) snapshot used to
// convert liability_shares to a minted-stETH amount at a point in time
// (§4.6 Step C).
type ShareRateAt struct {
	TotalPooledEther *big.Int
	TotalShares      *big.Int
}

// MintedStETH converts shares to stETH at this rate: minted = shares *
// total_pooled_ether / total_shares.
func (r ShareRateAt) MintedStETH(shares *big.Int) *big.Int {
	if r.TotalShares == nil || r.TotalShares.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(shares, r.TotalPooledEther)
	return out.Div(out, r.TotalShares)
}

// VaultTreeLeaf is one row of the Step D Merkle tree (§4.6 Step D).
type VaultTreeLeaf struct {
	Address            common.Address
	TotalValueWei      *big.Int
	FeeTotal           *big.Int
	LiabilityShares    *big.Int
	MaxLiabilityShares *big.Int
	SlashingReserve    *big.Int // signed: int256 in the ABI encoding
}
