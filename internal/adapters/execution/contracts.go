// Package execution is the C10 read-only adapter over the protocol's
// execution-layer contracts (§4.10): locator, Lido, burner, hash-consensus,
// base/accounting/exit-bus oracles, withdrawal-queue, sanity checker,
// daemon config, staking-router + registries, vault-hub, lazy-oracle,
// staking-vault, and the CSM contract family. Every call is parameterized
// by a block identifier; "latest" is the default and, per §5, is never
// cached — see BlockRef.Symbolic.
package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockRef selects a historical call the same way StateID does for the
// consensus adapter: either the symbolic "latest" or a concrete block
// number.
type BlockRef struct {
	Latest bool
	Number *big.Int
}

func Latest() BlockRef             { return BlockRef{Latest: true} }
func AtBlock(n *big.Int) BlockRef  { return BlockRef{Number: n} }

func (b BlockRef) Symbolic() bool { return b.Latest }

// CurrentFrame mirrors the hash-consensus contract's getCurrentFrame()
// (§4.4).
type CurrentFrame struct {
	RefSlot               uint64
	ProcessingDeadlineSlot uint64
}

// MemberInfo mirrors hash-consensus's getConsensusStateForMember() (§4.4).
type MemberInfo struct {
	IsReportMember              bool
	IsSubmitMember              bool
	IsFastLane                  bool
	LastReportRefSlot           uint64
	FastLaneLengthSlots         uint64
	CurrentFrameConsensusReport common.Hash
	CurrentFrameMemberReport    common.Hash
	MemberIndex                 int
	CommitteeSize                int
	CurrentFrameNumber           uint64
}

// HashConsensus is the C10 view of the on-chain hash-consensus contract
// that C4 orchestrates against.
type HashConsensus interface {
	CurrentFrame(ctx context.Context, ref BlockRef) (CurrentFrame, error)
	MemberInfo(ctx context.Context, ref BlockRef, member common.Address) (MemberInfo, error)
	ContractVersion(ctx context.Context, ref BlockRef) (uint64, error)
	ConsensusVersion(ctx context.Context, ref BlockRef) (uint64, error)
	SubmitReportHash(ctx context.Context, refSlot uint64, hash common.Hash, consensusVersion uint64) error
	IsPaused(ctx context.Context, ref BlockRef) (bool, error)
}

// AccountingOracle is the module contract accepting submitReportData for
// the accounting report (§6.1).
type AccountingOracle interface {
	SubmitReportData(ctx context.Context, tuple AccountingReportTuple, contractVersion uint64) error
}

// ExitBusOracle is the module contract accepting submitReportData for the
// ejector report.
type ExitBusOracle interface {
	SubmitReportData(ctx context.Context, tuple EjectorReportTuple, contractVersion uint64) error
	IsPaused(ctx context.Context, ref BlockRef) (bool, error)
}

// PerformanceOracle (CSM fee oracle) accepts submitReportData for the
// distribution report.
type PerformanceOracle interface {
	SubmitReportData(ctx context.Context, tuple PerformanceReportTuple, contractVersion uint64) error
}

// AccountingReportTuple mirrors the accounting report's on-chain schema
// (§6.1), field order as documented (role order; the real ABI encoder
// reads the target contract's function signature, not this struct's Go
// field order — see internal/oracle/encode.go).
type AccountingReportTuple struct {
	ConsensusVersion                      uint64
	RefSlot                               uint64
	ValidatorsCount                       uint64
	CLBalanceGwei                         uint64
	StakingModuleIDsWithExitedValidators  []uint64
	CountExitedValidatorsByStakingModule  []uint64
	WithdrawalVaultBalance                *big.Int
	ELRewardsVaultBalance                 *big.Int
	SharesRequestedToBurn                 *big.Int
	WithdrawalFinalizationBatches         []uint64
	FinalizationShareRate                 *big.Int
	IsBunker                              bool
	VaultsTreeRoot                        common.Hash
	VaultsTreeCID                         string
	ExtraDataFormat                       uint64
	ExtraDataHash                         common.Hash
	ExtraDataItemsCount                   uint64
}

// EjectorRequest is one packed exit request (§6.1): module_id:3B,
// node_op_id:8B, validator_index:8B, pubkey:48B.
type EjectorRequest struct {
	ModuleID       uint32
	NodeOperatorID uint64
	ValidatorIndex uint64
	Pubkey         [48]byte
}

// EjectorReportTuple mirrors the ejector report's on-chain schema (§6.1).
type EjectorReportTuple struct {
	ConsensusVersion uint64
	RefSlot          uint64
	RequestsCount    uint64
	DataFormat       uint64
	Requests         []EjectorRequest
}

// PerformanceReportTuple mirrors the performance (CSM distribution) report
// schema (§6.1).
type PerformanceReportTuple struct {
	ConsensusVersion uint64
	RefSlot          uint64
	TreeRoot         common.Hash
	TreeCID          string
	LogCID           string
	Distributed      *big.Int
}

// Locator is the protocol's service-discovery contract.
type Locator interface {
	Lido(ctx context.Context, ref BlockRef) (common.Address, error)
	Burner(ctx context.Context, ref BlockRef) (common.Address, error)
	WithdrawalQueue(ctx context.Context, ref BlockRef) (common.Address, error)
	StakingRouter(ctx context.Context, ref BlockRef) (common.Address, error)
	VaultHub(ctx context.Context, ref BlockRef) (common.Address, error)
	OracleDaemonConfig(ctx context.Context, ref BlockRef) (common.Address, error)
}

// WithdrawalQueue is the on-chain withdrawal-request NFT/finalization
// contract consumed by C7 and C8.
type WithdrawalQueue interface {
	UnfinalizedStETH(ctx context.Context, ref BlockRef) (*big.Int, error)
	BunkerStartEpoch(ctx context.Context, ref BlockRef) (epoch uint64, active bool, err error)
	LastFinalizedRequestEpoch(ctx context.Context, ref BlockRef) (uint64, error)
}

// SanityChecker is the oracle-sanity-checker contract (bounds, margins).
// It also fronts the accounting module's own pause flag (SPEC_FULL.md
// §C.1): unlike the ejector module, which reads pause state directly off
// the exit-bus contract, the accounting module's reportable predicate goes
// through the sanity checker.
type SanityChecker interface {
	RequestTimestampMarginSeconds(ctx context.Context, ref BlockRef) (uint64, error)
	FinalizationMaxNegativeRebaseEpochShift(ctx context.Context, ref BlockRef) (uint64, error)
	IsAccountingPaused(ctx context.Context, ref BlockRef) (bool, error)
}

// StakingModuleRegistry reads operator keys for one staking module
// (generalizes "the module contract" in §4.5's inputs).
type StakingModuleRegistry interface {
	OperatorKeys(ctx context.Context, ref BlockRef, operatorID uint64) ([][48]byte, error)
	ActiveOperatorIDs(ctx context.Context, ref BlockRef) ([]uint64, error)
}

// VaultHub is the per-vault registry consumed by C6.
type VaultHub interface {
	ConnectedVaults(ctx context.Context, ref BlockRef) ([]common.Address, error)
	VaultInfo(ctx context.Context, ref BlockRef, vault common.Address) (VaultInfo, error)
}

// VaultInfo is the on-chain per-vault record (§3.7).
type VaultInfo struct {
	Address               common.Address
	WithdrawalCredentials [32]byte
	AggregatedBalance     *big.Int
	InOutDelta            *big.Int
	LiabilityShares       *big.Int
	MaxLiabilityShares    *big.Int
	MintableStETH         *big.Int
	ShareLimit            *big.Int
	ReserveRatioBP        uint64
	InfraFeeBP            uint64
	LiquidityFeeBP        uint64
	ReservationFeeBP      uint64
	PreviousFeeBP         uint64
	PendingDisconnect     bool
}
