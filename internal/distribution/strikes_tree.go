package distribution

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/prysmaticlabs/lido-oracle-core/internal/merkletree"
)

// strikesLeafEncoding mirrors original_source/src/modules/csm/tree.py's
// strikes tree: (uint256 nodeOperatorId, bytes pubkey, uint256[] strikes)
// — supplemented beyond spec.md's §3.6 ring description so strikes carry
// on-chain dispute evidence the way the original does (see SPEC_FULL.md
// §C.3).
func strikesLeafEncoding() (merkletree.LeafEncoding, error) {
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return merkletree.LeafEncoding{}, err
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return merkletree.LeafEncoding{}, err
	}
	uint256Arr, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		return merkletree.LeafEncoding{}, err
	}
	return merkletree.LeafEncoding{Types: []abi.Type{uint256, bytesType, uint256Arr}}, nil
}

// BuildStrikesTree Merkleizes the current strikes map, ordered by
// (operator, pubkey) ascending for determinism.
func BuildStrikesTree(strikes map[StrikesKey]StrikesList) (*merkletree.Tree, []StrikesKey, error) {
	enc, err := strikesLeafEncoding()
	if err != nil {
		return nil, nil, err
	}
	keys := sortedStrikesKeys(strikes)
	values := make([][]interface{}, len(keys))
	for i, k := range keys {
		list := strikes[k]
		ints := make([]*big.Int, len(list))
		for j, v := range list {
			ints[j] = big.NewInt(int64(v))
		}
		values[i] = []interface{}{new(big.Int).SetUint64(uint64(k.Operator)), k.Pubkey[:], ints}
	}
	tree, err := merkletree.New(enc, values)
	if err != nil {
		return nil, nil, err
	}
	return tree, keys, nil
}

func sortedStrikesKeys(m map[StrikesKey]StrikesList) []StrikesKey {
	keys := make([]StrikesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// ascending operator_id then pubkey, matching the cumulative-rewards
	// leaf order rule from §4.5 ("Ordering").
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && less(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func less(a, b StrikesKey) bool {
	if a.Operator != b.Operator {
		return a.Operator < b.Operator
	}
	for i := range a.Pubkey {
		if a.Pubkey[i] != b.Pubkey[i] {
			return a.Pubkey[i] < b.Pubkey[i]
		}
	}
	return false
}
