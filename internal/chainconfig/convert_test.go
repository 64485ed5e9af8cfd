package chainconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotEpochRoundTrip_8192Epochs(t *testing.T) {
	cfg := MainnetChainConfig()
	// P3: the chain converter is a bijection between (epoch, slot_in_epoch)
	// and slot, for all slot >= 0. Walk 8192 epochs (spec.md §3.1's
	// conformance vector) and check both directions agree.
	for e := Epoch(0); e < 8192; e++ {
		first := EpochFirstSlot(cfg, e)
		last := EpochLastSlot(cfg, e)
		require.Equal(t, cfg.SlotsPerEpoch-1, uint64(last-first))
		for s := first; s <= last; s++ {
			require.Equal(t, e, EpochBySlot(cfg, s))
		}
	}
}

func TestTimestampSlotRoundTrip(t *testing.T) {
	cfg := MainnetChainConfig()
	for _, s := range []Slot{0, 1, 32, 8191, 8192, 1_000_000} {
		ts := TimestampBySlot(cfg, s)
		require.Equal(t, s, SlotByTimestamp(cfg, ts))
	}
}

func TestFrameByEpoch(t *testing.T) {
	fc := FrameConfig{InitialEpoch: 100, EpochsPerFrame: 225}
	require.Equal(t, Frame(0), FrameByEpoch(fc, 100))
	require.Equal(t, Frame(0), FrameByEpoch(fc, 324))
	require.Equal(t, Frame(1), FrameByEpoch(fc, 325))
	require.Equal(t, Epoch(100), FrameFirstEpoch(fc, 0))
	require.Equal(t, Epoch(324), FrameLastEpoch(fc, 0))
}

func TestReferenceSlotIsLastSlotOfLastEpoch(t *testing.T) {
	cfg := MainnetChainConfig()
	fc := FrameConfig{InitialEpoch: 0, EpochsPerFrame: 225}
	ref := ReferenceSlot(cfg, fc, 3)
	require.Equal(t, EpochLastSlot(cfg, FrameLastEpoch(fc, 3)), ref)
}
