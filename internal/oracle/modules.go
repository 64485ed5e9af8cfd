package oracle

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wealdtech/go-bytesutil"

	bc "github.com/prysmaticlabs/lido-oracle-core/internal/adapters/consensus"
	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/execution"
	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/storage"
	"github.com/prysmaticlabs/lido-oracle-core/internal/consensus"
	"github.com/prysmaticlabs/lido-oracle-core/internal/distribution"
	"github.com/prysmaticlabs/lido-oracle-core/internal/ejector"
	"github.com/prysmaticlabs/lido-oracle-core/internal/vaults"
)

var log = logrus.WithField("prefix", "oracle")

// The three types below are the per-module "engine trait" implementations
// named in §9: each satisfies internal/consensus.Module (IsContractReportable
// + BuildReport), gluing the already-tested C5/C6/C7/C8 math to the C10
// adapters and C9 publisher. Per §9's "explicit context structs" note, every
// dependency is an injected interface or a caller-assembled Inputs struct —
// nothing here reaches for process-wide state.

// PerformanceModule wires C5 (distribution engine) and the CSM strikes
// ring/tree into a performance report (§4.5, §6.1, SPEC_FULL.md §C.3).
type PerformanceModule struct {
	Engine       *distribution.Engine
	Publisher    storage.Publisher
	ConsensusVer uint64
}

// PerformanceInputs bundles one frame's worth of pre-gathered data: the
// duty-store-derived validator inputs (§3.4), per-operator curve
// parameters (§4.5 Inputs), the shares available to distribute, and the
// previously published cumulative-rewards/strikes state.
type PerformanceInputs struct {
	Validators           []distribution.ValidatorInput
	Curves               map[distribution.OperatorID]distribution.CurveParams
	RewardsToDistribute  *big.Int
	PreviousCumulative   map[distribution.OperatorID]*big.Int
	PreviousStrikes      map[distribution.StrikesKey]distribution.StrikesList
	StrikesLifetimeByOp  map[distribution.OperatorID]int
}

func NewPerformanceModule(engine *distribution.Engine, pub storage.Publisher, consensusVersion uint64) *PerformanceModule {
	return &PerformanceModule{Engine: engine, Publisher: pub, ConsensusVer: consensusVersion}
}

// IsContractReportable has no module-specific predicate beyond the generic
// one (SPEC_FULL.md §C.1): CSM/performance never overrides §4.4 step 1.
func (m *PerformanceModule) IsContractReportable(ctx context.Context, bs bc.BlockStamp) (bool, error) {
	return true, nil
}

// BuildReport implements §4.5 steps 1-8 end to end: run the distribution
// engine, merge cumulative rewards and strikes, publish the cumulative
// tree and a diagnostics log to content-addressed storage, and assemble
// the on-chain tuple.
func (m *PerformanceModule) BuildReport(ctx context.Context, ref bc.ReferenceBlockStamp, in PerformanceInputs) (Report, *distribution.FrameResult, error) {
	result, err := m.Engine.Run(in.Validators, in.Curves, in.RewardsToDistribute)
	if err != nil {
		return Report{}, nil, errors.Wrap(err, "distribution engine run")
	}

	cumulative := distribution.MergeCumulative(in.PreviousCumulative, result.OperatorAllocations)
	treeCID, treeRoot, err := distribution.PublishCumulativeReport(ctx, m.Publisher, cumulative)
	if err != nil {
		return Report{}, nil, errors.Wrap(err, "publish cumulative rewards tree")
	}

	var events []distribution.StrikeEvent
	for _, op := range result.Operators {
		events = append(events, op.Strikes...)
	}
	strikes := distribution.MergeStrikes(in.PreviousStrikes, events, in.StrikesLifetimeByOp)
	if _, _, err := distribution.BuildStrikesTree(strikes); err != nil {
		return Report{}, nil, errors.Wrap(err, "build strikes tree")
	}

	logCID, err := publishDiagnosticsLog(ctx, m.Publisher, ref.RefSlot, result)
	if err != nil {
		return Report{}, nil, errors.Wrap(err, "publish distribution log")
	}

	distributed := big.NewInt(0)
	for _, alloc := range result.OperatorAllocations {
		distributed.Add(distributed, alloc)
	}

	tuple := execution.PerformanceReportTuple{
		ConsensusVersion: m.ConsensusVer,
		RefSlot:          ref.RefSlot,
		TreeRoot:         common.Hash(treeRoot),
		TreeCID:          treeCID.String(),
		LogCID:           logCID.String(),
		Distributed:      distributed,
	}
	return Report{Kind: KindPerformance, Performance: &tuple}, result, nil
}

// distributionLog is the §6.2 per-frame, per-operator diagnostics blob:
// not consensus-critical, just embedded as a CID in the on-chain report
// for auditability.
type distributionLog struct {
	RefSlot            uint64                                            `json:"refSlot"`
	NetworkPerformance float64                                           `json:"networkPerformance"`
	Operators          map[distribution.OperatorID]*distribution.OperatorResult `json:"operators"`
}

func publishDiagnosticsLog(ctx context.Context, pub storage.Publisher, refSlot uint64, result *distribution.FrameResult) (cid.Cid, error) {
	buf, err := json.Marshal(distributionLog{RefSlot: refSlot, NetworkPerformance: result.NetworkPerformance, Operators: result.Operators})
	if err != nil {
		return cid.Cid{}, errors.Wrap(err, "marshal distribution log")
	}
	return pub.Publish(ctx, buf, "distribution-log")
}

// AccountingModule assembles the accounting report tuple (§6.1), folding
// the vault valuation tree (C6) and the safe-border bunker decision (C7)
// into the single on-chain accounting report — the spec's system overview
// treats vault valuation and safe-border as their own components, but
// neither has a separate on-chain report: both are consumed by the
// accounting module's tuple.
type AccountingModule struct {
	SanityChecker execution.SanityChecker
	Publisher     storage.Publisher
	ConsensusVer  uint64
}

func NewAccountingModule(sanity execution.SanityChecker, pub storage.Publisher, consensusVersion uint64) *AccountingModule {
	return &AccountingModule{SanityChecker: sanity, Publisher: pub, ConsensusVer: consensusVersion}
}

func (m *AccountingModule) IsContractReportable(ctx context.Context, bs bc.BlockStamp) (bool, error) {
	paused, err := m.SanityChecker.IsAccountingPaused(ctx, execution.Latest())
	if err != nil {
		return false, errors.Wrap(err, "accounting pause check")
	}
	return !paused, nil
}

// AccountingInputs bundles the fields the accounting tuple needs beyond
// the vault tree: most are rollups over beacon-chain/execution-chain state
// read by the caller (the chain converter and adapters, not a C-component
// of their own — see SPEC_FULL.md §D's module->package map, which places
// this assembly at the orchestration layer).
type AccountingInputs struct {
	ValidatorsCount                      uint64
	CLBalanceGwei                        uint64
	StakingModuleIDsWithExitedValidators []uint64
	CountExitedValidatorsByStakingModule []uint64
	WithdrawalVaultBalance                *big.Int
	ELRewardsVaultBalance                 *big.Int
	SharesRequestedToBurn                 *big.Int
	WithdrawalFinalizationBatches         []uint64
	FinalizationShareRate                 *big.Int
	IsBunker                              bool
	ExtraDataFormat                       uint64
	ExtraDataHash                         common.Hash
	ExtraDataItemsCount                   uint64
	VaultLeaves                           []vaults.VaultTreeLeaf
	PreviousVaultsTreeCID                 string
}

// VaultExtraValues is the §6.2 "extraValues" map published alongside the
// vault tree: per-vault in/out delta and fee breakdown, not part of the
// Merkle leaf itself.
type VaultExtraValues struct {
	InOutDelta      *big.Int
	PrevFee         uint64
	InfraFee        *big.Int
	LiquidityFee    *big.Int
	ReservationFee  *big.Int
}

func (m *AccountingModule) BuildReport(ctx context.Context, ref bc.ReferenceBlockStamp, in AccountingInputs, extra map[common.Address]VaultExtraValues) (Report, error) {
	tree, sortedLeaves, err := vaults.BuildVaultTree(in.VaultLeaves)
	if err != nil {
		return Report{}, errors.Wrap(err, "build vault tree")
	}

	treeJSON, err := marshalVaultTreeJSON(ref, tree, sortedLeaves, extra, in.PreviousVaultsTreeCID)
	if err != nil {
		return Report{}, errors.Wrap(err, "marshal vault tree json")
	}
	vaultsCID, err := m.Publisher.Publish(ctx, treeJSON, "vault-tree")
	if err != nil {
		return Report{}, errors.Wrap(err, "publish vault tree")
	}

	tuple := execution.AccountingReportTuple{
		ConsensusVersion:                      m.ConsensusVer,
		RefSlot:                               ref.RefSlot,
		ValidatorsCount:                       in.ValidatorsCount,
		CLBalanceGwei:                         in.CLBalanceGwei,
		StakingModuleIDsWithExitedValidators:  in.StakingModuleIDsWithExitedValidators,
		CountExitedValidatorsByStakingModule:  in.CountExitedValidatorsByStakingModule,
		WithdrawalVaultBalance:                in.WithdrawalVaultBalance,
		ELRewardsVaultBalance:                 in.ELRewardsVaultBalance,
		SharesRequestedToBurn:                 in.SharesRequestedToBurn,
		WithdrawalFinalizationBatches:         in.WithdrawalFinalizationBatches,
		FinalizationShareRate:                 in.FinalizationShareRate,
		IsBunker:                              in.IsBunker,
		VaultsTreeRoot:                        common.Hash(tree.Root()),
		VaultsTreeCID:                         vaultsCID.String(),
		ExtraDataFormat:                       in.ExtraDataFormat,
		ExtraDataHash:                         in.ExtraDataHash,
		ExtraDataItemsCount:                   in.ExtraDataItemsCount,
	}
	return Report{Kind: KindAccounting, Accounting: &tuple}, nil
}

// EjectorModule wires C8 (exit-queue simulation) into the ejector report
// (§4.8, §6.1).
type EjectorModule struct {
	ExitBus      execution.ExitBusOracle
	ConsensusVer uint64
	DataFormat   uint64
}

func NewEjectorModule(exitBus execution.ExitBusOracle, consensusVersion, dataFormat uint64) *EjectorModule {
	return &EjectorModule{ExitBus: exitBus, ConsensusVer: consensusVersion, DataFormat: dataFormat}
}

// IsContractReportable implements §4.8's "if the exit-bus contract is
// paused, no report is built".
func (m *EjectorModule) IsContractReportable(ctx context.Context, bs bc.BlockStamp) (bool, error) {
	paused, err := m.ExitBus.IsPaused(ctx, execution.Latest())
	if err != nil {
		return false, errors.Wrap(err, "exit bus pause check")
	}
	return !paused, nil
}

// EjectorInputs bundles one frame's exit candidates, the withdrawal demand
// they must cover, and the pubkey/operator resolution needed to pack the
// on-chain request list.
type EjectorInputs struct {
	Candidates []ejector.ExitCandidate
	Demand     ejector.Demand
	// Pubkeys resolves a selected candidate to its on-chain packed fields.
	Pubkeys map[validatorKey][48]byte
}

type validatorKey struct {
	ModuleID       uint64
	ValidatorIndex uint64
}

// ResolvePubkeys builds the EjectorInputs.Pubkeys lookup from the
// consensus-layer validator records a caller already fetched for the
// frame, re-slicing each 48-byte pubkey defensively the way prysm's
// bytesutil helpers do at adapter boundaries rather than trusting the
// fixed-array copy survived intact.
func ResolvePubkeys(moduleID uint64, validators []bc.Validator) map[validatorKey][48]byte {
	out := make(map[validatorKey][48]byte, len(validators))
	for _, v := range validators {
		out[validatorKey{ModuleID: moduleID, ValidatorIndex: v.Index}] = bytesutil.ToBytes48(v.Pubkey[:])
	}
	return out
}

func (m *EjectorModule) BuildReport(ctx context.Context, ref bc.ReferenceBlockStamp, in EjectorInputs) (Report, []ejector.ExitCandidate, error) {
	selected := ejector.SelectForExit(in.Candidates, in.Demand)

	requests := make([]execution.EjectorRequest, 0, len(selected))
	for _, c := range selected {
		pubkey, ok := in.Pubkeys[validatorKey{ModuleID: c.ModuleID, ValidatorIndex: c.ValidatorIndex}]
		if !ok {
			return Report{}, nil, errors.Errorf("ejector: no pubkey for module=%d validator=%d", c.ModuleID, c.ValidatorIndex)
		}
		requests = append(requests, execution.EjectorRequest{
			ModuleID:       uint32(c.ModuleID),
			NodeOperatorID: c.OperatorID,
			ValidatorIndex: c.ValidatorIndex,
			Pubkey:         pubkey,
		})
	}

	tuple := execution.EjectorReportTuple{
		ConsensusVersion: m.ConsensusVer,
		RefSlot:          ref.RefSlot,
		RequestsCount:    uint64(len(requests)),
		DataFormat:       m.DataFormat,
		Requests:         requests,
	}
	return Report{Kind: KindEjector, Ejector: &tuple}, selected, nil
}

// The three adapters below satisfy internal/consensus.Module for their
// respective engine wrapper, closing over the frame's pre-gathered Inputs
// so Cycle (cycle.go) can drive every module through the same
// ReportableBlockStamp/BuildReport contract regardless of each module's
// richer, module-specific BuildReport signature above.

type performanceModuleAdapter struct {
	mod *PerformanceModule
	in  PerformanceInputs
}

// AsConsensusModule adapts m to internal/consensus.Module for one frame's
// inputs.
func (m *PerformanceModule) AsConsensusModule(in PerformanceInputs) consensus.Module {
	return &performanceModuleAdapter{mod: m, in: in}
}

func (a *performanceModuleAdapter) IsContractReportable(ctx context.Context, bs bc.BlockStamp) (bool, error) {
	return a.mod.IsContractReportable(ctx, bs)
}

func (a *performanceModuleAdapter) BuildReport(ctx context.Context, ref bc.ReferenceBlockStamp) (consensus.ReportTuple, error) {
	report, _, err := a.mod.BuildReport(ctx, ref, a.in)
	if err != nil {
		return nil, err
	}
	return report.Encoder()
}

type accountingModuleAdapter struct {
	mod   *AccountingModule
	in    AccountingInputs
	extra map[common.Address]VaultExtraValues
}

func (m *AccountingModule) AsConsensusModule(in AccountingInputs, extra map[common.Address]VaultExtraValues) consensus.Module {
	return &accountingModuleAdapter{mod: m, in: in, extra: extra}
}

func (a *accountingModuleAdapter) IsContractReportable(ctx context.Context, bs bc.BlockStamp) (bool, error) {
	return a.mod.IsContractReportable(ctx, bs)
}

func (a *accountingModuleAdapter) BuildReport(ctx context.Context, ref bc.ReferenceBlockStamp) (consensus.ReportTuple, error) {
	report, err := a.mod.BuildReport(ctx, ref, a.in, a.extra)
	if err != nil {
		return nil, err
	}
	return report.Encoder()
}

type ejectorModuleAdapter struct {
	mod *EjectorModule
	in  EjectorInputs
}

func (m *EjectorModule) AsConsensusModule(in EjectorInputs) consensus.Module {
	return &ejectorModuleAdapter{mod: m, in: in}
}

func (a *ejectorModuleAdapter) IsContractReportable(ctx context.Context, bs bc.BlockStamp) (bool, error) {
	return a.mod.IsContractReportable(ctx, bs)
}

func (a *ejectorModuleAdapter) BuildReport(ctx context.Context, ref bc.ReferenceBlockStamp) (consensus.ReportTuple, error) {
	report, _, err := a.mod.BuildReport(ctx, ref, a.in)
	if err != nil {
		return nil, err
	}
	return report.Encoder()
}

// The three NewRunner constructors below are what actually closes the loop
// the cycle drives (§4.4 steps 1-4 end to end): each Execute builds the
// frame's report, hands it to the submodule's hash-then-data protocol, and
// — once quorum on the report hash is reached and this member has not
// already submitted — calls the target oracle contract's submitReportData.
// Without this wiring Cycle.RunOnce only ever checks reportability; it
// never builds or submits anything.

// NewRunner wires m into a ModuleRunner for sub, submitting to
// oracleContract once per frame.
func (m *PerformanceModule) NewRunner(name string, sub *consensus.Submodule, oracleContract execution.PerformanceOracle, contractVersion uint64, in PerformanceInputs, allowed func() (bool, error)) ModuleRunner {
	return ModuleRunner{
		Name:      name,
		Submodule: sub,
		Module:    m.AsConsensusModule(in),
		Execute: func(ctx context.Context, ref bc.ReferenceBlockStamp) (DelayHint, error) {
			report, _, err := m.BuildReport(ctx, ref, in)
			if err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: build report", name)
			}
			tuple, err := report.Encoder()
			if err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: encode report", name)
			}
			submitData := func(ctx context.Context) error {
				return oracleContract.SubmitReportData(ctx, *report.Performance, contractVersion)
			}
			if err := sub.SubmitReport(ctx, ref, tuple, m.ConsensusVer, allowed, submitData); err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: submit report", name)
			}
			return DelayNextFinalizedEpoch, nil
		},
	}
}

// NewRunner wires m into a ModuleRunner for sub, submitting to
// oracleContract once per frame.
func (m *AccountingModule) NewRunner(name string, sub *consensus.Submodule, oracleContract execution.AccountingOracle, contractVersion uint64, in AccountingInputs, extra map[common.Address]VaultExtraValues, allowed func() (bool, error)) ModuleRunner {
	return ModuleRunner{
		Name:      name,
		Submodule: sub,
		Module:    m.AsConsensusModule(in, extra),
		Execute: func(ctx context.Context, ref bc.ReferenceBlockStamp) (DelayHint, error) {
			report, err := m.BuildReport(ctx, ref, in, extra)
			if err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: build report", name)
			}
			tuple, err := report.Encoder()
			if err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: encode report", name)
			}
			submitData := func(ctx context.Context) error {
				return oracleContract.SubmitReportData(ctx, *report.Accounting, contractVersion)
			}
			if err := sub.SubmitReport(ctx, ref, tuple, m.ConsensusVer, allowed, submitData); err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: submit report", name)
			}
			return DelayNextFinalizedEpoch, nil
		},
	}
}

// NewRunner wires m into a ModuleRunner for sub, submitting to
// oracleContract once per frame.
func (m *EjectorModule) NewRunner(name string, sub *consensus.Submodule, oracleContract execution.ExitBusOracle, contractVersion uint64, in EjectorInputs, allowed func() (bool, error)) ModuleRunner {
	return ModuleRunner{
		Name:      name,
		Submodule: sub,
		Module:    m.AsConsensusModule(in),
		Execute: func(ctx context.Context, ref bc.ReferenceBlockStamp) (DelayHint, error) {
			report, _, err := m.BuildReport(ctx, ref, in)
			if err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: build report", name)
			}
			tuple, err := report.Encoder()
			if err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: encode report", name)
			}
			submitData := func(ctx context.Context) error {
				return oracleContract.SubmitReportData(ctx, *report.Ejector, contractVersion)
			}
			if err := sub.SubmitReport(ctx, ref, tuple, m.ConsensusVer, allowed, submitData); err != nil {
				return DelayNextSlot, errors.Wrapf(err, "%s: submit report", name)
			}
			return DelayNextFinalizedEpoch, nil
		},
	}
}
