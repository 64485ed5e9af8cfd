package vaults

import (
	"bytes"
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/execution"
	"github.com/prysmaticlabs/lido-oracle-core/internal/merkletree"
)

var log = logrus.WithField("prefix", "vaults")

// SlashingReserveWindow is the daemon-config L/R pair bounding ref_epoch
// around withdrawable_epoch in §4.6 Step B.
type SlashingReserveWindow struct {
	L uint64
	R uint64
}

// BalanceAtSlot resolves a validator's balance (in wei) at a historical
// slot, used by Step B's reserve formula.
type BalanceAtSlot func(ctx context.Context, validatorIndex uint64, slot uint64) (*big.Int, error)

// Engine runs the per-frame vault valuation algorithm of §4.6.
type Engine struct {
	SlotsPerEpoch uint64
	FeeParams     FeeParams
}

func NewEngine(slotsPerEpoch uint64, feeParams FeeParams) *Engine {
	return &Engine{SlotsPerEpoch: slotsPerEpoch, FeeParams: feeParams}
}

// TotalValue implements §4.6 Step A: execution-layer balance, plus matching
// consensus-layer validator balances, plus trusted pending deposits.
func (e *Engine) TotalValue(
	vault execution.VaultInfo,
	validatorsByVault map[common.Hash][]BeaconValidator,
	deposits []PendingDeposit,
	trustedWithdrawalCreds map[[48]byte][32]byte,
	genesisForkVersion [4]byte,
) (*big.Int, error) {
	total := new(big.Int).Set(vault.AggregatedBalance)
	wc := common.BytesToHash(vault.WithdrawalCredentials[:])

	belongsByPubkey := make(map[[48]byte]bool)
	for _, v := range validatorsByVault[wc] {
		total.Add(total, new(big.Int).Mul(new(big.Int).SetUint64(v.BalanceGwei), big.NewInt(1e9)))
		belongsByPubkey[v.Pubkey] = true
	}

	firstValid := make(map[[48]byte][32]byte) // withdrawal credentials of the first valid deposit per pubkey
	for _, d := range deposits {
		if trusted, ok := trustedWithdrawalCreds[d.Pubkey]; ok {
			if trusted != vault.WithdrawalCredentials {
				continue // belongs to a different vault once resolved
			}
			total.Add(total, depositWei(d.AmountGwei))
			continue
		}
		if belongsByPubkey[d.Pubkey] {
			total.Add(total, depositWei(d.AmountGwei))
			continue
		}
		if first, seen := firstValid[d.Pubkey]; seen {
			// later deposits for a pubkey follow its first valid deposit
			if first == vault.WithdrawalCredentials {
				total.Add(total, depositWei(d.AmountGwei))
			}
			continue
		}
		// unresolved pubkey: validate signature before trusting the deposit
		// (§4.6.1's front-running guard).
		ok, err := VerifyDepositSignature(d.Pubkey, d.WithdrawalCredentials, d.AmountGwei, d.Signature, genesisForkVersion)
		if err != nil {
			return nil, errors.Wrap(err, "verify pending deposit signature")
		}
		if !ok {
			continue
		}
		firstValid[d.Pubkey] = d.WithdrawalCredentials
		if d.WithdrawalCredentials != vault.WithdrawalCredentials {
			continue // first valid sighting belongs elsewhere; abandon for this vault
		}
		total.Add(total, depositWei(d.AmountGwei))
	}

	return total, nil
}

func depositWei(amountGwei uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(amountGwei), big.NewInt(1e9))
}

// SlashingReserve implements §4.6 Step B for one vault's slashed
// validators.
func (e *Engine) SlashingReserve(
	ctx context.Context,
	refEpoch uint64,
	slashed []BeaconValidator,
	reserveRatioBP uint64,
	window SlashingReserveWindow,
	balanceAt BalanceAtSlot,
) (*big.Int, error) {
	total := big.NewInt(0)
	for _, v := range slashed {
		var balance *big.Int
		var err error
		switch {
		case refEpoch > v.WithdrawableEpoch+window.R:
			continue // no reserve
		case refEpoch >= v.WithdrawableEpoch-window.L:
			slot := (v.WithdrawableEpoch - window.L) * e.SlotsPerEpoch
			balance, err = balanceAt(ctx, v.Index, slot)
		default: // refEpoch < withdrawable_epoch - L
			balance, err = balanceAt(ctx, v.Index, refEpoch*e.SlotsPerEpoch)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "slashing reserve balance for validator %d", v.Index)
		}
		reserve := new(big.Int).Mul(balance, new(big.Int).SetUint64(reserveRatioBP))
		reserve = ceilDivBig(reserve, big.NewInt(10000))
		total.Add(total, reserve)
	}
	return total, nil
}

func vaultTreeLeafEncoding() (merkletree.LeafEncoding, error) {
	addr, err := abi.NewType("address", "", nil)
	if err != nil {
		return merkletree.LeafEncoding{}, err
	}
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return merkletree.LeafEncoding{}, err
	}
	int256, err := abi.NewType("int256", "", nil)
	if err != nil {
		return merkletree.LeafEncoding{}, err
	}
	return merkletree.LeafEncoding{Types: []abi.Type{addr, uint256, uint256, uint256, uint256, int256}}, nil
}

// BuildVaultTree implements §4.6 Step D: leaves sorted by vault address,
// encoding (address, uint256, uint256, uint256, uint256, int256).
func BuildVaultTree(leaves []VaultTreeLeaf) (*merkletree.Tree, []VaultTreeLeaf, error) {
	enc, err := vaultTreeLeafEncoding()
	if err != nil {
		return nil, nil, err
	}
	sorted := append([]VaultTreeLeaf(nil), leaves...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Address.Bytes(), sorted[j].Address.Bytes()) < 0
	})
	values := make([][]interface{}, len(sorted))
	for i, l := range sorted {
		values[i] = []interface{}{l.Address, l.TotalValueWei, l.FeeTotal, l.LiabilityShares, l.MaxLiabilityShares, l.SlashingReserve}
	}
	tree, err := merkletree.New(enc, values)
	if err != nil {
		return nil, nil, err
	}
	return tree, sorted, nil
}
