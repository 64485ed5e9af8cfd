package oracle

import (
	"math/big"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"

	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/execution"
)

// This file is the "thin adapter to the ABI encoder" named in §9: named
// structs (execution.AccountingReportTuple etc.) serialize to the exact
// bytes `keccak256(abi.encode(ReportTuple))` hashes in §6.1. In production
// the field order and types come from the target contract's
// submitReportData signature (out of core scope, per §1); the schema below
// is the one spec.md documents "by role" and is what the round-trip test
// in §8 guards against drifting.

func mustType(t string) ethabi.Type {
	typ, err := ethabi.NewType(t, "", nil)
	if err != nil {
		panic(err) // static schema, never fails at runtime
	}
	return typ
}

var (
	typeUint256      = mustType("uint256")
	typeUint256Slice = mustType("uint256[]")
	typeBytes32      = mustType("bytes32")
	typeString       = mustType("string")
	typeBool         = mustType("bool")
	typeBytes        = mustType("bytes")
)

func u64(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

func u64Slice(vs []uint64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = u64(v)
	}
	return out
}

func packArgs(types []ethabi.Type, values ...interface{}) ([]byte, error) {
	args := make(ethabi.Arguments, len(types))
	for i, t := range types {
		args[i] = ethabi.Argument{Type: t}
	}
	return args.Pack(values...)
}

// AccountingEncoder implements consensus.ReportTuple for the accounting
// report schema of §6.1.
type AccountingEncoder struct {
	Tuple execution.AccountingReportTuple
}

func (e AccountingEncoder) Encode() ([]byte, error) {
	t := e.Tuple
	if t.WithdrawalVaultBalance == nil || t.ELRewardsVaultBalance == nil ||
		t.SharesRequestedToBurn == nil || t.FinalizationShareRate == nil {
		return nil, errors.New("oracle: accounting tuple has nil big.Int field")
	}
	types := []ethabi.Type{
		typeUint256, typeUint256, typeUint256, typeUint256, // consensus_version, ref_slot, validators_count, cl_balance_gwei
		typeUint256Slice, typeUint256Slice, // staking_module_ids, count_exited_validators
		typeUint256, typeUint256, typeUint256, // withdrawal_vault_balance, el_rewards_vault_balance, shares_requested_to_burn
		typeUint256Slice,            // withdrawal_finalization_batches
		typeUint256,                 // finalization_share_rate
		typeBool,                    // is_bunker
		typeBytes32,                 // vaults_tree_root
		typeString,                  // vaults_tree_cid
		typeUint256, typeBytes32, typeUint256, // extra_data_format, extra_data_hash, extra_data_items_count
	}
	return packArgs(types,
		u64(t.ConsensusVersion), u64(t.RefSlot), u64(t.ValidatorsCount), u64(t.CLBalanceGwei),
		u64Slice(t.StakingModuleIDsWithExitedValidators), u64Slice(t.CountExitedValidatorsByStakingModule),
		t.WithdrawalVaultBalance, t.ELRewardsVaultBalance, t.SharesRequestedToBurn,
		u64Slice(t.WithdrawalFinalizationBatches),
		t.FinalizationShareRate,
		t.IsBunker,
		t.VaultsTreeRoot,
		t.VaultsTreeCID,
		u64(t.ExtraDataFormat), t.ExtraDataHash, u64(t.ExtraDataItemsCount),
	)
}

// EncodeEjectorRequests packs the exit-request sequence the way §6.1
// specifies: (module_id:3B, node_op_id:8B, validator_index:8B,
// pubkey:48B) per request, concatenated with no padding between entries.
func EncodeEjectorRequests(reqs []execution.EjectorRequest) []byte {
	const entryLen = 3 + 8 + 8 + 48
	out := make([]byte, 0, len(reqs)*entryLen)
	var buf [8]byte
	for _, r := range reqs {
		// 3-byte big-endian module id.
		out = append(out, byte(r.ModuleID>>16), byte(r.ModuleID>>8), byte(r.ModuleID))
		putUint64BE(&buf, r.NodeOperatorID)
		out = append(out, buf[:]...)
		putUint64BE(&buf, r.ValidatorIndex)
		out = append(out, buf[:]...)
		out = append(out, r.Pubkey[:]...)
	}
	return out
}

func putUint64BE(buf *[8]byte, v uint64) {
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}

// EjectorEncoder implements consensus.ReportTuple for the ejector report
// schema of §6.1.
type EjectorEncoder struct {
	Tuple execution.EjectorReportTuple
}

func (e EjectorEncoder) Encode() ([]byte, error) {
	t := e.Tuple
	data := EncodeEjectorRequests(t.Requests)
	types := []ethabi.Type{typeUint256, typeUint256, typeUint256, typeUint256, typeBytes}
	return packArgs(types, u64(t.ConsensusVersion), u64(t.RefSlot), u64(t.RequestsCount), u64(t.DataFormat), data)
}

// PerformanceEncoder implements consensus.ReportTuple for the performance
// (CSM distribution) report schema of §6.1.
type PerformanceEncoder struct {
	Tuple execution.PerformanceReportTuple
}

func (e PerformanceEncoder) Encode() ([]byte, error) {
	t := e.Tuple
	if t.Distributed == nil {
		return nil, errors.New("oracle: performance tuple has nil Distributed")
	}
	types := []ethabi.Type{typeUint256, typeUint256, typeBytes32, typeString, typeString, typeUint256}
	return packArgs(types, u64(t.ConsensusVersion), u64(t.RefSlot), t.TreeRoot, t.TreeCID, t.LogCID, t.Distributed)
}

// Encoder returns the consensus.ReportTuple view of a Report, selecting the
// encoder by Kind.
func (r Report) Encoder() (interface{ Encode() ([]byte, error) }, error) {
	switch r.Kind {
	case KindAccounting:
		if r.Accounting == nil {
			return nil, errors.New("oracle: accounting report missing tuple")
		}
		return AccountingEncoder{Tuple: *r.Accounting}, nil
	case KindEjector:
		if r.Ejector == nil {
			return nil, errors.New("oracle: ejector report missing tuple")
		}
		return EjectorEncoder{Tuple: *r.Ejector}, nil
	case KindPerformance:
		if r.Performance == nil {
			return nil, errors.New("oracle: performance report missing tuple")
		}
		return PerformanceEncoder{Tuple: *r.Performance}, nil
	default:
		return nil, errors.Errorf("oracle: unknown report kind %d", r.Kind)
	}
}
