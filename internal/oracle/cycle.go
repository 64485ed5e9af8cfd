package oracle

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	bc "github.com/prysmaticlabs/lido-oracle-core/internal/adapters/consensus"
	ec "github.com/prysmaticlabs/lido-oracle-core/internal/adapters/execution"
	"github.com/prysmaticlabs/lido-oracle-core/internal/consensus"
)

// DelayHint is execute_module's return value per §5 step 3: "next slot" or
// "next finalized epoch".
type DelayHint int

const (
	DelayNextSlot DelayHint = iota
	DelayNextFinalizedEpoch
)

// ModuleRunner is one enabled module's slot in the deterministic,
// configured execution order named in §5's ordering guarantees ("within
// one frame, the order of calls to execute_module across modules is
// deterministic... modules DO NOT share mutable state").
type ModuleRunner struct {
	Name      string
	Submodule *consensus.Submodule
	Module    consensus.Module

	// Execute builds and submits this module's report for the given
	// reference blockstamp. It is the module-specific glue between the
	// generic consensus.Module predicate/report-build contract and the
	// concrete engine wiring in modules.go (Accounting/Ejector/Performance),
	// since each carries a different Inputs shape gathered from C10 — see
	// §9's "context structs passed through call chains" note.
	Execute func(ctx context.Context, ref bc.ReferenceBlockStamp) (DelayHint, error)
}

// Cycle is the single-threaded main loop of §5: on each tick it fetches
// the latest finalized blockstamp once, then calls execute_module for every
// enabled module in configured order. Each execute_module runs to
// completion; cancellation/timeouts belong to the C10 adapters and the
// consensus submodule's own sleep, not to the cycle.
type Cycle struct {
	ConsensusClient bc.Client
	Modules         []ModuleRunner
}

// RunOnce implements one iteration of the main loop (§5 steps 1-3).
func (c *Cycle) RunOnce(ctx context.Context) (DelayHint, error) {
	runID := uuid.NewString()
	runLog := log.WithField("run_id", runID)

	latest, err := c.ConsensusClient.BlockStampByID(ctx, bc.Finalized())
	if err != nil {
		return DelayNextSlot, errors.Wrap(err, "fetch latest finalized blockstamp")
	}
	runLog.WithField("slot", latest.SlotNumber).Debug("cycle started")

	hint := DelayNextFinalizedEpoch
	for _, m := range c.Modules {
		// Compatibility gate before anything else (§4.4): a contract
		// version above the supported maximum is fatal, a consensus version
		// above its maximum waits for upgrade rather than treating the
		// mismatch as fatal (§7 kind 5).
		if err := m.Submodule.CheckCompatibility(ctx, ec.Latest()); err != nil {
			if stderrors.Is(err, consensus.ErrWaitForUpgrade) {
				runLog.WithField("module", m.Name).Warn("waiting for contract upgrade")
				continue
			}
			return DelayNextSlot, errors.Wrapf(err, "module %s: compatibility gate", m.Name)
		}

		ref, err := m.Submodule.ReportableBlockStamp(ctx, latest, m.Module)
		if err != nil {
			if stderrors.Is(err, consensus.ErrNotReportable) {
				runLog.WithField("module", m.Name).Debug("not reportable this cycle")
				continue
			}
			if stderrors.Is(err, consensus.ErrWaitForUpgrade) {
				runLog.WithField("module", m.Name).Warn("waiting for contract upgrade")
				hint = DelayNextFinalizedEpoch
				continue
			}
			return DelayNextSlot, errors.Wrapf(err, "module %s: reportable blockstamp", m.Name)
		}

		modHint, err := m.Execute(ctx, ref)
		if err != nil {
			return DelayNextSlot, errors.Wrapf(err, "module %s: execute", m.Name)
		}
		if modHint == DelayNextSlot {
			hint = DelayNextSlot
		}
	}
	return hint, nil
}

// RunForever drives RunOnce on the configured interval until ctx is
// cancelled or a fatal error occurs (§7's "recovery policy": the core
// never mutates on-chain state without passing every internal invariant;
// external orchestration restarts the process on a fatal error, so this
// simply returns the error for the caller — cmd/oracle — to translate into
// a process exit code).
func (c *Cycle) RunForever(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			hint, err := c.RunOnce(ctx)
			if err != nil {
				return err
			}
			log.WithField("delay_hint", hint).Debug("cycle complete")
		}
	}
}
