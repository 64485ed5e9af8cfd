package distribution

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/prysmaticlabs/lido-oracle-core/internal/adapters/storage"
	"github.com/prysmaticlabs/lido-oracle-core/internal/merkletree"
)

// ErrPreviousReportRootMismatch guards against a previous report CID whose
// content no longer hashes to the root the contract recorded — the fatal
// case helpers/last_report.py raises on in the original, carried over per
// SPEC_FULL.md §C.3b.
var ErrPreviousReportRootMismatch = errors.New("distribution: previous report root mismatch")

// cumulativeEntry is one operator's row in the published cumulative-rewards
// tree blob: (node_operator_id, cumulative shares). Published as JSON so the
// values survive a publish/fetch round trip independent of the ABI leaf
// encoding used to hash them.
type cumulativeEntry struct {
	Operator OperatorID `json:"operator_id"`
	Shares   string     `json:"cumulative_shares"`
}

func cumulativeLeafEncoding() (merkletree.LeafEncoding, error) {
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return merkletree.LeafEncoding{}, err
	}
	return merkletree.LeafEncoding{Types: []abi.Type{uint256, uint256}}, nil
}

// BuildCumulativeTree Merkleizes cumulative[operator] entries in ascending
// operator-id order, matching the ordering rule the strikes tree also
// follows (§4.5 "Ordering").
func BuildCumulativeTree(cumulative map[OperatorID]*big.Int) (*merkletree.Tree, []OperatorID, error) {
	enc, err := cumulativeLeafEncoding()
	if err != nil {
		return nil, nil, err
	}
	ops := make([]OperatorID, 0, len(cumulative))
	for op := range cumulative {
		ops = append(ops, op)
	}
	sortOperatorIDs(ops)
	values := make([][]interface{}, len(ops))
	for i, op := range ops {
		values[i] = []interface{}{new(big.Int).SetUint64(uint64(op)), cumulative[op]}
	}
	tree, err := merkletree.New(enc, values)
	if err != nil {
		return nil, nil, err
	}
	return tree, ops, nil
}

func sortOperatorIDs(ops []OperatorID) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && ops[j] < ops[j-1]; j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

// LoadPreviousReport fetches the previously published cumulative-rewards
// blob by CID, rebuilds its tree, and checks the rebuilt root against the
// root the contract recorded before trusting any of its contents — the
// root-mismatch guard from §C.3b. A nil prevCID (first-ever frame) returns
// an empty map with no error.
func LoadPreviousReport(ctx context.Context, pub storage.Publisher, prevCID cid.Cid, prevRoot [32]byte) (map[OperatorID]*big.Int, error) {
	if !prevCID.Defined() {
		return map[OperatorID]*big.Int{}, nil
	}
	raw, err := pub.Fetch(ctx, prevCID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch previous cumulative-rewards report")
	}
	var entries []cumulativeEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "decode previous cumulative-rewards report")
	}
	cumulative := make(map[OperatorID]*big.Int, len(entries))
	for _, e := range entries {
		shares, ok := new(big.Int).SetString(e.Shares, 10)
		if !ok {
			return nil, errors.Errorf("distribution: malformed cumulative shares %q for operator %d", e.Shares, e.Operator)
		}
		cumulative[e.Operator] = shares
	}
	tree, _, err := BuildCumulativeTree(cumulative)
	if err != nil {
		return nil, errors.Wrap(err, "rebuild previous cumulative-rewards tree")
	}
	if tree.Root() != prevRoot {
		return nil, errors.Wrapf(ErrPreviousReportRootMismatch, "cid=%s", prevCID.String())
	}
	return cumulative, nil
}

// PublishCumulativeReport serializes cumulative[operator] as the same JSON
// shape LoadPreviousReport expects and publishes it, returning the CID and
// the tree root the contract should record alongside it.
func PublishCumulativeReport(ctx context.Context, pub storage.Publisher, cumulative map[OperatorID]*big.Int) (cid.Cid, [32]byte, error) {
	ops := make([]OperatorID, 0, len(cumulative))
	for op := range cumulative {
		ops = append(ops, op)
	}
	sortOperatorIDs(ops)
	entries := make([]cumulativeEntry, len(ops))
	for i, op := range ops {
		entries[i] = cumulativeEntry{Operator: op, Shares: cumulative[op].String()}
	}
	blob, err := json.Marshal(entries)
	if err != nil {
		return cid.Cid{}, [32]byte{}, errors.Wrap(err, "encode cumulative-rewards report")
	}
	tree, _, err := BuildCumulativeTree(cumulative)
	if err != nil {
		return cid.Cid{}, [32]byte{}, err
	}
	c, err := pub.Publish(ctx, blob, "cumulative-rewards")
	if err != nil {
		return cid.Cid{}, [32]byte{}, errors.Wrap(err, "publish cumulative-rewards report")
	}
	return c, tree.Root(), nil
}

// MergeCumulative implements §4.5 step 7: this frame's per-operator
// allocation is added onto the previous frame's cumulative total, defaulting
// untracked operators to zero.
func MergeCumulative(prev map[OperatorID]*big.Int, frameAllocations map[OperatorID]*big.Int) map[OperatorID]*big.Int {
	next := make(map[OperatorID]*big.Int, len(prev)+len(frameAllocations))
	for op, v := range prev {
		next[op] = new(big.Int).Set(v)
	}
	for op, alloc := range frameAllocations {
		if cur, ok := next[op]; ok {
			cur.Add(cur, alloc)
		} else {
			next[op] = new(big.Int).Set(alloc)
		}
	}
	return next
}
