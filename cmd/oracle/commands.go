package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// errNoProductionAdapters is returned by every subcommand's Action: wiring
// a live execution/consensus-client HTTP implementation of the
// adapters.{consensus,execution}.Client interfaces is explicitly out of
// core scope per spec.md §1 ("HTTP/JSON transport details... the thin
// CLI... are external collaborators"). The engines, the consensus
// submodule, and the orchestration Cycle in internal/oracle are fully
// implemented and exercised by their own test suites; this binary is the
// documented-for-completeness wiring point a production deployment fills
// in with real adapters.
var errNoProductionAdapters = errors.New("cmd/oracle: no production execution/consensus-client adapter wired; " +
	"implement adapters/consensus.Client and adapters/execution's contract interfaces against your chosen " +
	"EL/CL endpoints and construct internal/oracle.Cycle directly")

func accountingCommand() *cli.Command {
	return &cli.Command{
		Name:  "accounting",
		Usage: "run the accounting module: vault valuation, safe-border, and the accounting report",
		Action: func(c *cli.Context) error {
			store, err := openDutyStore(c)
			if err != nil {
				return errors.Wrap(err, "open duty store")
			}
			defer store.Close()

			log.WithField("dry", c.Bool(dryFlag.Name)).Info("accounting module starting")
			return errNoProductionAdapters
		},
	}
}

func ejectorCommand() *cli.Command {
	return &cli.Command{
		Name:  "ejector",
		Usage: "run the ejector module: exit-queue simulation and validator ejection reporting",
		Action: func(c *cli.Context) error {
			log.WithField("dry", c.Bool(dryFlag.Name)).Info("ejector module starting")
			return errNoProductionAdapters
		},
	}
}

func csmCommand() *cli.Command {
	return &cli.Command{
		Name:  "csm",
		Usage: "run the CSM performance module: duty collection and distribution reporting",
		Action: func(c *cli.Context) error {
			store, err := openDutyStore(c)
			if err != nil {
				return errors.Wrap(err, "open duty store")
			}
			defer store.Close()

			log.WithField("dry", c.Bool(dryFlag.Name)).Info("csm module starting")
			return errNoProductionAdapters
		},
	}
}
