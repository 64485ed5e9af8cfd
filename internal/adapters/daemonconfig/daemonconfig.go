// Package daemonconfig wraps the on-chain oracle-daemon-config contract — a
// generic key/value store of tunables — with typed accessors, the way
// original_source/src/providers/execution/contracts/oracle_daemon_config.py
// does. Kept as its own small adapter package rather than folded into
// internal/adapters/execution so C7/C8 can depend on just the handful of
// constants they need without pulling in the full contract surface.
package daemonconfig

import (
	"context"

	"github.com/pkg/errors"
)

// RawConfig is the minimal on-chain surface: arbitrary named byte values,
// ABI-decoded by the typed accessors below.
type RawConfig interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Client provides typed access to the daemon-config keys consumed by the
// safe-border and ejector engines.
type Client struct {
	raw RawConfig
}

func New(raw RawConfig) *Client { return &Client{raw: raw} }

func (c *Client) getUint64(ctx context.Context, key string) (uint64, error) {
	b, err := c.raw.Get(ctx, key)
	if err != nil {
		return 0, errors.Wrapf(err, "daemon config %q", key)
	}
	if len(b) < 8 {
		return 0, errors.Errorf("daemon config %q: short value", key)
	}
	var v uint64
	for _, x := range b[len(b)-8:] {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// FinalizationDefaultShiftEpochs returns finalization_default_shift (§4.7
// normal mode): REQUEST_TIMESTAMP_MARGIN_SECONDS divided by the epoch
// length in seconds, rounded up.
func (c *Client) FinalizationDefaultShiftEpochs(ctx context.Context, slotsPerEpoch, secondsPerSlot uint64) (uint64, error) {
	margin, err := c.getUint64(ctx, "REQUEST_TIMESTAMP_MARGIN_SECONDS")
	if err != nil {
		return 0, err
	}
	epochSeconds := slotsPerEpoch * secondsPerSlot
	return ceilDiv(margin, epochSeconds), nil
}

// FinalizationMaxNegativeRebaseEpochShift returns the bunker-mode floor
// named in §4.7.
func (c *Client) FinalizationMaxNegativeRebaseEpochShift(ctx context.Context) (uint64, error) {
	return c.getUint64(ctx, "FINALIZATION_MAX_NEGATIVE_REBASE_EPOCH_SHIFT")
}

// NodeOpNetworkPenetrationThresholdBP and other CSM curve inputs live in
// the staking-module registry adapter, not here; this client is
// deliberately narrow to the safe-border/ejector constants.

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
