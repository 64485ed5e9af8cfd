package oracle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/execution"
)

func sampleAccountingTuple() execution.AccountingReportTuple {
	return execution.AccountingReportTuple{
		ConsensusVersion:                      3,
		RefSlot:                               123456,
		ValidatorsCount:                       900000,
		CLBalanceGwei:                         28000000000000,
		StakingModuleIDsWithExitedValidators:  []uint64{1, 2},
		CountExitedValidatorsByStakingModule:  []uint64{10, 20},
		WithdrawalVaultBalance:                big.NewInt(1_000_000),
		ELRewardsVaultBalance:                 big.NewInt(2_000_000),
		SharesRequestedToBurn:                 big.NewInt(0),
		WithdrawalFinalizationBatches:         []uint64{100, 200, 300},
		FinalizationShareRate:                 big.NewInt(1_000000000000000000),
		IsBunker:                              false,
		VaultsTreeRoot:                        common.HexToHash("0xabc"),
		VaultsTreeCID:                         "bafy-example",
		ExtraDataFormat:                       0,
		ExtraDataHash:                         common.HexToHash("0xdef"),
		ExtraDataItemsCount:                   0,
	}
}

// The hash committed via hash consensus must be identical for identical
// input (§4.4 step 1 / §8 round-trip law): encode(tuple) must be
// deterministic.
func TestAccountingEncoder_Deterministic(t *testing.T) {
	tuple := sampleAccountingTuple()
	a, err := (AccountingEncoder{Tuple: tuple}).Encode()
	require.NoError(t, err)
	b, err := (AccountingEncoder{Tuple: tuple}).Encode()
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}

func TestAccountingEncoder_DiffersOnFieldChange(t *testing.T) {
	tuple := sampleAccountingTuple()
	a, err := (AccountingEncoder{Tuple: tuple}).Encode()
	require.NoError(t, err)

	tuple.IsBunker = true
	b, err := (AccountingEncoder{Tuple: tuple}).Encode()
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestAccountingEncoder_RejectsNilBigInt(t *testing.T) {
	tuple := sampleAccountingTuple()
	tuple.SharesRequestedToBurn = nil
	_, err := (AccountingEncoder{Tuple: tuple}).Encode()
	require.Error(t, err)
}

func TestEncodeEjectorRequests_PacksFixedWidthEntries(t *testing.T) {
	var pubkey [48]byte
	copy(pubkey[:], []byte("pubkey-bytes-000000000000000000000000000000"))
	reqs := []execution.EjectorRequest{
		{ModuleID: 1, NodeOperatorID: 7, ValidatorIndex: 42, Pubkey: pubkey},
		{ModuleID: 2, NodeOperatorID: 8, ValidatorIndex: 43, Pubkey: pubkey},
	}
	data := EncodeEjectorRequests(reqs)
	require.Len(t, data, 2*(3+8+8+48))

	// first entry's module id occupies the first 3 bytes, big-endian.
	require.Equal(t, []byte{0, 0, 1}, data[0:3])
	// validator index (8B) for entry 0 starts at offset 3+8=11.
	require.Equal(t, uint64(42), beUint64(data[11:19]))
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func TestEjectorEncoder_Deterministic(t *testing.T) {
	var pubkey [48]byte
	tuple := execution.EjectorReportTuple{
		ConsensusVersion: 2,
		RefSlot:          1000,
		RequestsCount:    1,
		DataFormat:       1,
		Requests:         []execution.EjectorRequest{{ModuleID: 1, NodeOperatorID: 1, ValidatorIndex: 1, Pubkey: pubkey}},
	}
	a, err := (EjectorEncoder{Tuple: tuple}).Encode()
	require.NoError(t, err)
	b, err := (EjectorEncoder{Tuple: tuple}).Encode()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestPerformanceEncoder_Deterministic(t *testing.T) {
	tuple := execution.PerformanceReportTuple{
		ConsensusVersion: 1,
		RefSlot:          555,
		TreeRoot:         common.HexToHash("0x01"),
		TreeCID:          "cid-1",
		LogCID:           "cid-2",
		Distributed:      big.NewInt(42),
	}
	a, err := (PerformanceEncoder{Tuple: tuple}).Encode()
	require.NoError(t, err)
	b, err := (PerformanceEncoder{Tuple: tuple}).Encode()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestReport_EncoderDispatchesByKind(t *testing.T) {
	perf := execution.PerformanceReportTuple{ConsensusVersion: 1, RefSlot: 1, Distributed: big.NewInt(0)}
	r := Report{Kind: KindPerformance, Performance: &perf}
	enc, err := r.Encoder()
	require.NoError(t, err)
	_, err = enc.Encode()
	require.NoError(t, err)

	empty := Report{Kind: KindAccounting}
	_, err = empty.Encoder()
	require.Error(t, err, "missing tuple for declared kind must error, not panic")
}
