// Command oracle is the thin CLI entrypoint spec.md keeps deliberately out
// of core scope (§1, §6.4): one subcommand per module, global flags for
// the external endpoints, a --dry flag that disables transaction
// submission. It wires the core packages together; it does not implement
// any new oracle logic of its own.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/prysmaticlabs/lido-oracle-core/internal/dutystore"
)

var log = logrus.WithField("prefix", "cmd-oracle")

var (
	dryFlag = &cli.BoolFlag{
		Name:  "dry",
		Usage: "disable on-chain transaction submission; still runs the full report-building pipeline",
	}
	elEndpointFlag = &cli.StringFlag{
		Name:  "el-endpoint",
		Usage: "execution client JSON-RPC endpoint",
	}
	clEndpointFlag = &cli.StringFlag{
		Name:  "cl-endpoint",
		Usage: "consensus client REST endpoint",
	}
	ipfsEndpointFlag = &cli.StringFlag{
		Name:  "ipfs-endpoint",
		Usage: "content-addressed storage (IPFS) API endpoint",
	}
	dbPathFlag = &cli.StringFlag{
		Name:  "db-path",
		Usage: "path to the duty store's bbolt database file",
		Value: "./oracle-duties.db",
	}
	cycleIntervalFlag = &cli.DurationFlag{
		Name:  "cycle-interval",
		Usage: "how often to check for a new finalized slot",
		Value: 12 * time.Second,
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "trace, debug, info, warn, error, fatal, panic",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:  "oracle",
		Usage: "Lido-style off-chain oracle: frame consensus, performance distribution, vault valuation, safe-border, and ejector reporting",
		Flags: []cli.Flag{dryFlag, elEndpointFlag, clEndpointFlag, ipfsEndpointFlag, dbPathFlag, cycleIntervalFlag, logLevelFlag},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String(logLevelFlag.Name))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			accountingCommand(),
			ejectorCommand(),
			csmCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("oracle exited with error")
	}
}

func openDutyStore(c *cli.Context) (*dutystore.Store, error) {
	return dutystore.NewStore(context.Background(), c.String(dbPathFlag.Name))
}
