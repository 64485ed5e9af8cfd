// Package oracle is the orchestration layer named in spec.md §9: the
// dynamic-dispatch-over-modules pattern becomes a Report sum type plus a
// per-module engine trait (internal/consensus.Module), and the
// "everything is a singleton" pattern (module state, IPFS client, web3
// handle) becomes an explicit Cycle struct passed through call chains
// rather than process-wide state.
package oracle

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/execution"
)

// Kind discriminates the Report sum type's variants.
type Kind int

const (
	KindAccounting Kind = iota
	KindEjector
	KindPerformance
)

func (k Kind) String() string {
	switch k {
	case KindAccounting:
		return "accounting"
	case KindEjector:
		return "ejector"
	case KindPerformance:
		return "performance"
	default:
		return "unknown"
	}
}

// Report is the sum type `Report = Accounting | Ejector | Performance`
// from §9. Exactly one of the three fields is populated, selected by Kind;
// a vault report is folded into Accounting per §6.1 (the accounting tuple
// carries vaults_tree_root/vaults_tree_cid directly, there is no separate
// on-chain vault report).
type Report struct {
	Kind        Kind
	Accounting  *execution.AccountingReportTuple
	Ejector     *execution.EjectorReportTuple
	Performance *execution.PerformanceReportTuple
}

// ReportHash is the type of the keccak256 hash the consensus submodule
// computes over a report's ABI encoding (§4.4 step 1). Report itself has
// no hash field.
type ReportHash = common.Hash
