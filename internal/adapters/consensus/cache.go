package consensus

import (
	lru "github.com/hashicorp/golang-lru"
)

// CycleCache is a per-cycle, per-blockstamp value cache (§5, §9 "Global
// mutable caches become explicit per-cycle value caches"). It is
// constructed fresh by the orchestrator at the start of every cycle and
// dropped at the end; nothing outlives one execute_module call. Keys are
// concrete uint64 epoch or sync-committee-period numbers, so a symbolic
// StateID cannot be used as a key at all, matching §5's "caches with
// symbolic keys are fatal bugs" rule.
type CycleCache struct {
	committees *lru.Cache
	proposers  *lru.Cache
	syncComm   *lru.Cache // keyed by sync-committee period, shared across a run per §4.3's "cached per sync-committee-period" rule
}

// NewCycleCache builds a cache sized for one checkpoint/cycle's working set.
func NewCycleCache() *CycleCache {
	committees, _ := lru.New(64)
	proposers, _ := lru.New(64)
	syncComm, _ := lru.New(16)
	return &CycleCache{committees: committees, proposers: proposers, syncComm: syncComm}
}

func (c *CycleCache) GetCommittees(epoch uint64) ([]CommitteeAssignment, bool) {
	v, ok := c.committees.Get(epoch)
	if !ok {
		return nil, false
	}
	return v.([]CommitteeAssignment), true
}

func (c *CycleCache) PutCommittees(epoch uint64, v []CommitteeAssignment) {
	c.committees.Add(epoch, v)
}

func (c *CycleCache) GetProposers(epoch uint64) ([]ProposerDuty, bool) {
	v, ok := c.proposers.Get(epoch)
	if !ok {
		return nil, false
	}
	return v.([]ProposerDuty), true
}

func (c *CycleCache) PutProposers(epoch uint64, v []ProposerDuty) {
	c.proposers.Add(epoch, v)
}

// SyncCommitteePeriod derives the sync-committee period (256 epochs on
// mainnet) an epoch falls in. epochsPerSyncCommitteePeriod is passed in rather than
// imported from chainconfig to avoid a dependency cycle between the two
// leaf packages.
func SyncCommitteePeriod(epoch uint64, epochsPerSyncCommitteePeriod uint64) uint64 {
	return epoch / epochsPerSyncCommitteePeriod
}

func (c *CycleCache) GetSyncCommittee(period uint64) ([]uint64, bool) {
	v, ok := c.syncComm.Get(period)
	if !ok {
		return nil, false
	}
	return v.([]uint64), true
}

func (c *CycleCache) PutSyncCommittee(period uint64, v []uint64) {
	c.syncComm.Add(period, v)
}
