// Package merkletree implements C9: a standard ("OpenZeppelin standard
// merkle tree"-compatible) Merkle tree over ABI-encoded tuple leaves,
// reused by the distribution (C5) and vault valuation (C6) engines with
// different leaf encodings, per §4.9 and §9 ("implemented once, tested
// against a reference vector set, and reused").
package merkletree

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// LeafEncoding describes the ABI tuple schema one leaf is encoded with
// (e.g. "(uint256,uint256)" for distribution, "(address,uint256,uint256,
// uint256,uint256,int256)" for vaults), matching §6.2's leafEncoding field.
type LeafEncoding struct {
	Types []abi.Type
}

// Tree is a standard Merkle tree, byte-for-byte compatible with
// OpenZeppelin's `@openzeppelin/merkle-tree` StandardMerkleTree (§4.9,
// S6): leaves are double-keccak-hashed (keccak(keccak(abi_encode(leaf)))),
// sorted ascending, and laid out as a complete binary tree in a single
// `2n-1`-element array with the sorted leaves placed in reverse order at
// the end of the array and node i's children at 2i+1/2i+2 — exactly OZ's
// `core.ts` `makeMerkleTree` layout, not an ad hoc bottom-up pairing.
type Tree struct {
	Encoding LeafEncoding
	Values   [][]interface{} // one entry per leaf, in caller-supplied order
	leaves   [][32]byte      // leaf hashes, in caller-supplied (Values) order
	nodes    [][32]byte      // complete tree array, OZ layout, root at index 0
	leafIdx  map[[32]byte]int // leaf hash -> position in the sorted-hash order
}

// New builds a tree over values using the given leaf encoding. Leaf order
// in Values is caller-determined (distribution: ascending operator_id;
// vaults: ascending vault address — §4.5, §4.6 Step D); the tree internally
// sorts hashed leaves for construction but preserves a value->treeIndex
// mapping into the *hashed-leaf* order, matching the OZ standard tree's
// convention.
func New(encoding LeafEncoding, values [][]interface{}) (*Tree, error) {
	t := &Tree{Encoding: encoding, Values: values}
	leaves := make([][32]byte, len(values))
	for i, v := range values {
		h, err := t.hashLeaf(v)
		if err != nil {
			return nil, errors.Wrapf(err, "hash leaf %d", i)
		}
		leaves[i] = h
	}
	t.leaves = leaves
	t.build()
	return t, nil
}

func (t *Tree) hashLeaf(v []interface{}) ([32]byte, error) {
	return HashLeaf(t.Encoding, v)
}

// HashLeaf double-keccak-hashes one ABI-encoded tuple the same way tree
// construction does, exposed so callers can verify a single leaf against a
// root/proof without rebuilding the whole tree.
func HashLeaf(encoding LeafEncoding, v []interface{}) ([32]byte, error) {
	args := make(abi.Arguments, len(encoding.Types))
	for i, typ := range encoding.Types {
		args[i] = abi.Argument{Type: typ}
	}
	packed, err := args.Pack(v...)
	if err != nil {
		return [32]byte{}, err
	}
	inner := crypto.Keccak256(packed)
	outer := crypto.Keccak256(inner)
	var out [32]byte
	copy(out[:], outer)
	return out, nil
}

func hashPair(a, b [32]byte) [32]byte {
	// sorted-pair concatenation (§4.9): the lexicographically smaller hash
	// goes first so the proof is order-independent of sibling position.
	var out [32]byte
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(out[:], crypto.Keccak256(a[:], b[:]))
	} else {
		copy(out[:], crypto.Keccak256(b[:], a[:]))
	}
	return out
}

// build lays out the complete binary tree the way OZ's `makeMerkleTree`
// does: sort the leaf hashes, place them in reverse order at the tail of a
// `2n-1`-element array, then fill node i (for i from the last internal
// index down to 0) with hashPair(nodes[2i+1], nodes[2i+2]).
func (t *Tree) build() {
	n := len(t.leaves)
	if n == 0 {
		t.nodes = [][32]byte{{}}
		t.leafIdx = map[[32]byte]int{}
		return
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return bytes.Compare(t.leaves[order[i]][:], t.leaves[order[j]][:]) < 0
	})

	size := 2*n - 1
	nodes := make([][32]byte, size)
	leafIdx := make(map[[32]byte]int, n)
	for pos, origIdx := range order {
		leaf := t.leaves[origIdx]
		nodes[size-1-pos] = leaf
		leafIdx[leaf] = pos
	}
	for i := size - 1 - n; i >= 0; i-- {
		nodes[i] = hashPair(nodes[leftChild(i)], nodes[rightChild(i)])
	}
	t.nodes = nodes
	t.leafIdx = leafIdx
}

func leftChild(i int) int  { return 2*i + 1 }
func rightChild(i int) int { return 2*i + 2 }
func parentOf(i int) int   { return (i - 1) / 2 }
func siblingOf(i int) int {
	if i%2 == 0 {
		return i - 1
	}
	return i + 1
}

// Root returns the tree's root hash.
func (t *Tree) Root() [32]byte {
	return t.nodes[0]
}

// Nodes returns the complete tree array in OZ heap order (root at index
// 0), exactly matching the `tree` field of an OZ standard-tree JSON dump
// (§6.2).
func (t *Tree) Nodes() [][32]byte {
	return append([][32]byte(nil), t.nodes...)
}

// TreeIndex returns the position of values[valueIdx] in the tree's node
// array, matching the OZ standard tree's `values[i].treeIndex` field
// (§6.2).
func (t *Tree) TreeIndex(valueIdx int) (int, error) {
	if valueIdx < 0 || valueIdx >= len(t.leaves) {
		return 0, errors.New("merkletree: value index out of range")
	}
	pos, ok := t.leafIdx[t.leaves[valueIdx]]
	if !ok {
		return 0, errors.New("merkletree: leaf not found in tree (duplicate hash collapsed?)")
	}
	return len(t.nodes) - 1 - pos, nil
}

// Proof returns the sibling path from the leaf at treeIndex up to the
// root (§4.9's get_proof), in OZ's bottom-up order.
func (t *Tree) Proof(treeIndex int) ([][32]byte, error) {
	if treeIndex < 0 || treeIndex >= len(t.nodes) {
		return nil, errors.New("merkletree: tree index out of range")
	}
	var proof [][32]byte
	for idx := treeIndex; idx > 0; idx = parentOf(idx) {
		proof = append(proof, t.nodes[siblingOf(idx)])
	}
	return proof, nil
}

// VerifyProof checks that leaf, combined with proof, reconstructs root.
func VerifyProof(leaf [32]byte, proof [][32]byte, root [32]byte) bool {
	cur := leaf
	for _, sibling := range proof {
		cur = hashPair(cur, sibling)
	}
	return cur == root
}
