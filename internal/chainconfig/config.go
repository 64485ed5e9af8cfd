// Package chainconfig holds the pure time-coordinate configuration shared by
// every engine in the oracle core (C1 in the design). It mirrors the split
// prysm draws between beacon-chain-wide constants and environment-specific
// overrides, except here the config is an explicit value threaded through
// call chains rather than a package-global singleton.
package chainconfig

import "time"

// ChainConfig describes the fixed time-coordinate constants of the beacon
// chain being observed.
type ChainConfig struct {
	SlotsPerEpoch   uint64
	SecondsPerSlot  uint64
	GenesisTime     uint64 // unix seconds
}

// FrameConfig describes how epochs are grouped into reporting frames for one
// module. Different modules (accounting, ejector, CSM) may run with
// different EpochsPerFrame against the same ChainConfig.
type FrameConfig struct {
	InitialEpoch   uint64
	EpochsPerFrame uint64
}

// MainnetChainConfig returns the reference configuration named in spec.md
// §3.1 (slots_per_epoch=32, seconds_per_slot=12), used by default and by the
// 8192-epoch conformance vector in convert_test.go.
func MainnetChainConfig() ChainConfig {
	return ChainConfig{
		SlotsPerEpoch:  32,
		SecondsPerSlot: 12,
		GenesisTime:    uint64(time.Date(2020, time.December, 1, 12, 0, 23, 0, time.UTC).Unix()),
	}
}
