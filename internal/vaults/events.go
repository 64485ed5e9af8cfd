package vaults

import "math/big"

// VaultEvent is one boundary in a vault's liability-shares history, ordered
// by (block number, log index) ascending. The fee-accrual walk in fees.go
// consumes these backward in time (§4.6 Step C), matching the discriminated
// event shape original_source/src/modules/accounting/events.py reads off
// staking-vault contract logs.
type VaultEvent interface {
	BlockNumber() uint64
	LogIndex() uint64
	isVaultEvent()
}

type eventBase struct {
	Block uint64
	Log   uint64
}

func (e eventBase) BlockNumber() uint64 { return e.Block }
func (e eventBase) LogIndex() uint64    { return e.Log }
func (eventBase) isVaultEvent()         {}

// MintEvent: liability_shares increased because the vault minted stETH.
type MintEvent struct {
	eventBase
	Shares *big.Int
}

// BurnEvent: liability_shares decreased because the vault burned stETH.
type BurnEvent struct {
	eventBase
	Shares *big.Int
}

// RebalanceEvent: the vault rebalanced, reducing liability_shares to cover
// a deficit.
type RebalanceEvent struct {
	eventBase
	Shares *big.Int
}

// BadDebtWrittenOffEvent: protocol wrote off bad debt, reducing the vault's
// liability_shares unilaterally.
type BadDebtWrittenOffEvent struct {
	eventBase
	Shares *big.Int
}

// BadDebtSocializedEvent: bad debt moved from a donor vault to an acceptor
// vault, decreasing the donor's liability_shares and increasing the
// acceptor's.
type BadDebtSocializedEvent struct {
	eventBase
	DonorVault    [20]byte
	AcceptorVault [20]byte
	Shares        *big.Int
}

// FeesUpdateEvent: the vault's per-component fee rates changed as of this
// block; everything strictly before this boundary accrues at the rate that
// was in effect before the update.
type FeesUpdateEvent struct {
	eventBase
	InfraFeeBP       uint64
	LiquidityFeeBP   uint64
	ReservationFeeBP uint64
}

// ReconnectEvent: the vault connected (or reconnected) to the hub at this
// block; the walk must not cross this boundary, and liability_shares must
// be exactly zero at this point (§4.6 Step C, OQ3).
type ReconnectEvent struct {
	eventBase
}
