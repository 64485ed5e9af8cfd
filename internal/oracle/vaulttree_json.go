package oracle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bc "github.com/prysmaticlabs/lido-oracle-core/internal/adapters/consensus"
	"github.com/prysmaticlabs/lido-oracle-core/internal/merkletree"
	"github.com/prysmaticlabs/lido-oracle-core/internal/vaults"
)

// vaultTreeJSON mirrors §6.2's "Vault tree JSON" schema: a standard-
// merkle-tree dump plus the frame's blockstamp, the previous tree's CID,
// per-vault extra values, and a leafIndexToData map. Minified, 0x-prefixed
// lowercase hex, per §6.2's "deterministic JSON" rule.
type vaultTreeJSON struct {
	Format       string                                `json:"format"`
	LeafEncoding []string                               `json:"leafEncoding"`
	Tree         []string                               `json:"tree"`
	Values       []vaultTreeValueJSON                   `json:"values"`
	RefSlot      uint64                                `json:"refSlot"`
	BlockHash    string                                `json:"blockHash"`
	BlockNumber  uint64                                `json:"blockNumber"`
	Timestamp    uint64                                `json:"timestamp"`
	PrevTreeCID  string                                `json:"prevTreeCID"`
	ExtraValues  map[string]vaultExtraValuesJSON        `json:"extraValues"`
	LeafIndexToData map[int]string                      `json:"leafIndexToData"`
}

type vaultTreeValueJSON struct {
	Value     []string `json:"value"`
	TreeIndex int      `json:"treeIndex"`
}

type vaultExtraValuesJSON struct {
	InOutDelta     string `json:"inOutDelta"`
	PrevFee        uint64 `json:"prevFee"`
	InfraFee       string `json:"infraFee"`
	LiquidityFee   string `json:"liquidityFee"`
	ReservationFee string `json:"reservationFee"`
}

func hex0x(b []byte) string { return "0x" + hex.EncodeToString(b) }

func marshalVaultTreeJSON(
	ref bc.ReferenceBlockStamp,
	tree *merkletree.Tree,
	leaves []vaults.VaultTreeLeaf,
	extra map[common.Address]VaultExtraValues,
	prevTreeCID string,
) ([]byte, error) {
	out := vaultTreeJSON{
		Format:          "standard-v1",
		LeafEncoding:    []string{"address", "uint256", "uint256", "uint256", "uint256", "int256"},
		RefSlot:         ref.RefSlot,
		BlockHash:       ref.BlockHash.Hex(),
		BlockNumber:     ref.BlockNumber,
		Timestamp:       ref.BlockTimestamp,
		PrevTreeCID:     prevTreeCID,
		ExtraValues:     make(map[string]vaultExtraValuesJSON, len(leaves)),
		LeafIndexToData: make(map[int]string, len(leaves)),
	}

	// The OZ standard tree dump's `tree` field is the complete binary tree
	// array itself, root at index 0 — not a leaves-first layer flattening.
	for _, node := range tree.Nodes() {
		out.Tree = append(out.Tree, hex0x(node[:]))
	}

	for i, leaf := range leaves {
		treeIndex, err := tree.TreeIndex(i)
		if err != nil {
			return nil, fmt.Errorf("tree index for leaf %d: %w", i, err)
		}
		addr := hex0x(leaf.Address.Bytes())
		out.Values = append(out.Values, vaultTreeValueJSON{
			Value: []string{
				addr,
				leaf.TotalValueWei.String(),
				leaf.FeeTotal.String(),
				leaf.LiabilityShares.String(),
				leaf.MaxLiabilityShares.String(),
				leaf.SlashingReserve.String(),
			},
			TreeIndex: treeIndex,
		})
		out.LeafIndexToData[treeIndex] = addr

		if ev, ok := extra[leaf.Address]; ok {
			out.ExtraValues[addr] = vaultExtraValuesJSON{
				InOutDelta:     ev.InOutDelta.String(),
				PrevFee:        ev.PrevFee,
				InfraFee:       ev.InfraFee.String(),
				LiquidityFee:   ev.LiquidityFee.String(),
				ReservationFee: ev.ReservationFee.String(),
			}
		}
	}

	return json.Marshal(out)
}
