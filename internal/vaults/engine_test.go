package vaults

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/execution"
	"github.com/prysmaticlabs/lido-oracle-core/internal/merkletree"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// S6: three vaults with values {A:2, B:3, C:2} ETH, fees 0, liability_shares
// 0, reserve 0 — leaves sorted by address must be deterministic and the
// resulting tree's root must be reproducible from the same input.
func TestBuildVaultTree_OrdersByAddressAndIsDeterministic(t *testing.T) {
	leaves := []VaultTreeLeaf{
		{Address: common.HexToAddress("0xCCCC"), TotalValueWei: ether(2), FeeTotal: big.NewInt(0), LiabilityShares: big.NewInt(0), MaxLiabilityShares: big.NewInt(0), SlashingReserve: big.NewInt(0)},
		{Address: common.HexToAddress("0xAAAA"), TotalValueWei: ether(2), FeeTotal: big.NewInt(0), LiabilityShares: big.NewInt(0), MaxLiabilityShares: big.NewInt(0), SlashingReserve: big.NewInt(0)},
		{Address: common.HexToAddress("0xBBBB"), TotalValueWei: ether(3), FeeTotal: big.NewInt(0), LiabilityShares: big.NewInt(0), MaxLiabilityShares: big.NewInt(0), SlashingReserve: big.NewInt(0)},
	}

	tree1, sorted, err := BuildVaultTree(leaves)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xAAAA"), sorted[0].Address)
	require.Equal(t, common.HexToAddress("0xBBBB"), sorted[1].Address)
	require.Equal(t, common.HexToAddress("0xCCCC"), sorted[2].Address)

	tree2, _, err := BuildVaultTree(leaves)
	require.NoError(t, err)
	require.Equal(t, tree1.Root(), tree2.Root())

	var zero [32]byte
	require.NotEqual(t, zero, tree1.Root())
}

func TestBuildVaultTree_ProofVerifiesAgainstRoot(t *testing.T) {
	leaves := []VaultTreeLeaf{
		{Address: common.HexToAddress("0x01"), TotalValueWei: ether(1), FeeTotal: big.NewInt(5), LiabilityShares: big.NewInt(10), MaxLiabilityShares: big.NewInt(20), SlashingReserve: big.NewInt(1)},
		{Address: common.HexToAddress("0x02"), TotalValueWei: ether(4), FeeTotal: big.NewInt(6), LiabilityShares: big.NewInt(11), MaxLiabilityShares: big.NewInt(21), SlashingReserve: big.NewInt(2)},
	}
	tree, _, err := BuildVaultTree(leaves)
	require.NoError(t, err)

	idx, err := tree.TreeIndex(0)
	require.NoError(t, err)
	proof, err := tree.Proof(idx)
	require.NoError(t, err)

	enc, err := vaultTreeLeafEncoding()
	require.NoError(t, err)
	leafHash, err := merkletree.HashLeaf(enc, tree.Values[0])
	require.NoError(t, err)

	require.True(t, merkletree.VerifyProof(leafHash, proof, tree.Root()))
}

// P4: a vault with no events in [a, b] accrues liquidity fee by the closed
// form minted*blocks*APR*fee_bp/(BLOCKS_PER_YEAR*10000), rounded up.
func TestAccrueLiquidityFee_NoEventsMatchesClosedForm(t *testing.T) {
	vaultAddr := common.HexToAddress("0xVault")
	liability := big.NewInt(1000)
	rate := ShareRateAt{TotalPooledEther: big.NewInt(2000), TotalShares: big.NewInt(1000)} // 1 share = 2 stETH-wei
	params := FeeParams{BlocksPerYear: 2628000, CoreAPRRatioBP: 300}

	result, err := AccrueLiquidityFee(vaultAddr, nil, 100, 200, liability, 50, func(block uint64) ShareRateAt { return rate }, params)
	require.NoError(t, err)

	minted := rate.MintedStETH(liability)
	expected := linearFee(minted, 100, 50, params)
	require.Equal(t, expected, result.Fee)
	require.Equal(t, liability, result.ReconstructedLiability)
}

// P5: after walking a frame's events backward, the reconstructed
// liability_shares must equal what the previous report recorded.
func TestAccrueLiquidityFee_ReconcilesWithPreviousLiability(t *testing.T) {
	vaultAddr := common.HexToAddress("0xVault")
	rate := ShareRateAt{TotalPooledEther: big.NewInt(1000), TotalShares: big.NewInt(1000)}
	params := FeeParams{BlocksPerYear: 2628000, CoreAPRRatioBP: 300}

	// Current liability_shares = 500. One mint of 200 shares happened at
	// block 150 (between prev=100 and current=200); walking it backward
	// must subtract the mint's effect, leaving the previous report's 300.
	events := []VaultEvent{
		MintEvent{eventBase: eventBase{Block: 150, Log: 0}, Shares: big.NewInt(200)},
	}

	result, err := AccrueLiquidityFee(vaultAddr, events, 100, 200, big.NewInt(500), 50, func(block uint64) ShareRateAt { return rate }, params)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), result.ReconstructedLiability)
}

func TestAccrueLiquidityFee_ReconnectRequiresZeroLiability(t *testing.T) {
	vaultAddr := common.HexToAddress("0xVault")
	rate := ShareRateAt{TotalPooledEther: big.NewInt(1000), TotalShares: big.NewInt(1000)}
	params := FeeParams{BlocksPerYear: 2628000, CoreAPRRatioBP: 300}

	events := []VaultEvent{
		ReconnectEvent{eventBase: eventBase{Block: 150, Log: 0}},
	}

	_, err := AccrueLiquidityFee(vaultAddr, events, 100, 200, big.NewInt(500), 50, func(block uint64) ShareRateAt { return rate }, params)
	require.ErrorIs(t, err, ErrLiabilitySharesMismatch)

	_, err = AccrueLiquidityFee(vaultAddr, events, 100, 200, big.NewInt(0), 50, func(block uint64) ShareRateAt { return rate }, params)
	require.NoError(t, err)
}

func TestTotalValue_AddsMatchingValidatorsAndTrustedDeposits(t *testing.T) {
	e := NewEngine(32, FeeParams{})
	wc := [32]byte{0xAB}
	vault := execution.VaultInfo{
		WithdrawalCredentials: wc,
		AggregatedBalance:     ether(1),
	}
	validatorsByVault := map[common.Hash][]BeaconValidator{
		common.BytesToHash(wc[:]): {
			{Index: 1, Pubkey: [48]byte{1}, BalanceGwei: 32_000_000_000}, // 32 ETH
		},
	}
	trusted := map[[48]byte][32]byte{
		{2}: wc,
	}
	deposits := []PendingDeposit{
		{Pubkey: [48]byte{2}, AmountGwei: 1_000_000_000}, // 1 ETH, already trusted for this vault
	}

	total, err := e.TotalValue(vault, validatorsByVault, deposits, trusted, [4]byte{})
	require.NoError(t, err)

	expected := new(big.Int).Add(ether(1), ether(32))
	expected.Add(expected, ether(1))
	require.Equal(t, expected, total)
}

func TestTotalValue_SkipsDepositTrustedToAnotherVault(t *testing.T) {
	e := NewEngine(32, FeeParams{})
	wc := [32]byte{0xAB}
	otherWC := [32]byte{0xCD}
	vault := execution.VaultInfo{WithdrawalCredentials: wc, AggregatedBalance: ether(1)}
	trusted := map[[48]byte][32]byte{{9}: otherWC}
	deposits := []PendingDeposit{{Pubkey: [48]byte{9}, AmountGwei: 1_000_000_000}}

	total, err := e.TotalValue(vault, nil, deposits, trusted, [4]byte{})
	require.NoError(t, err)
	require.Equal(t, ether(1), total)
}

func TestSlashingReserve_WindowBranches(t *testing.T) {
	e := NewEngine(32, FeeParams{})
	window := SlashingReserveWindow{L: 10, R: 10}
	ctx := context.Background()

	balances := map[uint64]*big.Int{}
	balanceAt := func(_ context.Context, idx uint64, slot uint64) (*big.Int, error) {
		return balances[idx], nil
	}

	// ref_epoch within [withdrawable-L, withdrawable+R]: uses balance at
	// (withdrawable-L)*slots_per_epoch.
	balances[1] = ether(1)
	slashedInWindow := []BeaconValidator{{Index: 1, WithdrawableEpoch: 100}}
	reserve, err := e.SlashingReserve(ctx, 95, slashedInWindow, 1000, window, balanceAt) // 10% reserve ratio
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Div(ether(1), big.NewInt(10)), reserve)

	// ref_epoch beyond withdrawable+R: no reserve at all.
	reserve, err = e.SlashingReserve(ctx, 200, slashedInWindow, 1000, window, balanceAt)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), reserve)
}
