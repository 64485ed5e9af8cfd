package chainconfig

// Slot, Epoch and Frame are plain integer coordinates (§3.1). They are kept
// as distinct types so a caller cannot pass an epoch where a slot is
// expected without an explicit conversion — the teacher's helpers package
// uses bare uint64 for both and relies on naming discipline; we tighten
// that here since report-tuple encoding (C4 §6.1) is hash-sensitive to
// getting this wrong.
type Slot uint64
type Epoch uint64
type Frame uint64

// EpochBySlot returns the epoch containing slot s.
func EpochBySlot(cfg ChainConfig, s Slot) Epoch {
	return Epoch(uint64(s) / cfg.SlotsPerEpoch)
}

// EpochFirstSlot returns the first slot of epoch e.
func EpochFirstSlot(cfg ChainConfig, e Epoch) Slot {
	return Slot(uint64(e) * cfg.SlotsPerEpoch)
}

// EpochLastSlot returns the last slot of epoch e.
func EpochLastSlot(cfg ChainConfig, e Epoch) Slot {
	return EpochFirstSlot(cfg, e) + Slot(cfg.SlotsPerEpoch-1)
}

// TimestampBySlot returns the unix timestamp of slot s (§3.1).
func TimestampBySlot(cfg ChainConfig, s Slot) uint64 {
	return cfg.GenesisTime + uint64(s)*cfg.SecondsPerSlot
}

// SlotByTimestamp is the left inverse of TimestampBySlot: it returns the
// slot whose time window [ts(slot), ts(slot+1)) contains t. Timestamps
// before genesis return slot 0, matching the convention that the chain has
// no negative slots.
func SlotByTimestamp(cfg ChainConfig, t uint64) Slot {
	if t <= cfg.GenesisTime {
		return 0
	}
	return Slot((t - cfg.GenesisTime) / cfg.SecondsPerSlot)
}

// EpochByTimestamp composes SlotByTimestamp and EpochBySlot.
func EpochByTimestamp(cfg ChainConfig, t uint64) Epoch {
	return EpochBySlot(cfg, SlotByTimestamp(cfg, t))
}

// FrameByEpoch returns the frame number containing epoch e (§3.1). Epochs
// before FrameConfig.InitialEpoch belong to the implicit "pre-initial"
// frame, frame 0; the consensus submodule (C4) treats that case specially
// via its contract-revert synthesis (OQ in §7 error kind 2), not here.
func FrameByEpoch(fc FrameConfig, e Epoch) Frame {
	if uint64(e) <= fc.InitialEpoch {
		return 0
	}
	return Frame((uint64(e) - fc.InitialEpoch) / fc.EpochsPerFrame)
}

// FrameFirstEpoch returns the first epoch covered by frame f.
func FrameFirstEpoch(fc FrameConfig, f Frame) Epoch {
	return Epoch(fc.InitialEpoch + uint64(f)*fc.EpochsPerFrame)
}

// FrameLastEpoch returns the last epoch covered by frame f.
func FrameLastEpoch(fc FrameConfig, f Frame) Epoch {
	return FrameFirstEpoch(fc, f) + Epoch(fc.EpochsPerFrame-1)
}

// FrameFirstSlot returns the first slot of frame f.
func FrameFirstSlot(cfg ChainConfig, fc FrameConfig, f Frame) Slot {
	return EpochFirstSlot(cfg, FrameFirstEpoch(fc, f))
}

// FrameLastSlot returns the last slot of frame f — the frame's reference
// slot per §3.1.
func FrameLastSlot(cfg ChainConfig, fc FrameConfig, f Frame) Slot {
	return EpochLastSlot(cfg, FrameLastEpoch(fc, f))
}

// ReferenceSlot is an alias for FrameLastSlot, named for readability at call
// sites in the consensus submodule.
func ReferenceSlot(cfg ChainConfig, fc FrameConfig, f Frame) Slot {
	return FrameLastSlot(cfg, fc, f)
}
