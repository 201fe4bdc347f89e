// Package merkle implements the allow-list membership scheme: keccak256
// leaves over 20-byte addresses, sorted-pair parent hashing, and a single
// 32-byte root as the commitment. Building the tree is an operator
// preprocessing step (cmd/allowlist); the engine only ever verifies.
package merkle

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxProofDepth bounds accepted proofs. 32 levels covers 2^32 leaves, far
// beyond any plausible allow-list; anything longer is malformed input.
const MaxProofDepth = 32

// Verify reports whether addr is a member of the set committed to by root.
// Empty proofs, over-long proofs, and root mismatches are all the same
// answer — false — so callers cannot distinguish "bad proof shape" from
// "not on the list".
func Verify(addr common.Address, proof [][32]byte, root [32]byte) bool {
	if len(proof) == 0 || len(proof) > MaxProofDepth {
		return false
	}
	node := Leaf(addr)
	for _, sib := range proof {
		node = parent(node, sib)
	}
	return node == root
}

// Leaf hashes an address into its leaf node.
func Leaf(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(addr.Bytes()))
	return out
}

// parent hashes the sorted-pair concatenation of two nodes, the same
// ordering the builder uses, so proofs need no left/right direction bits.
func parent(a, b [32]byte) [32]byte {
	var out [32]byte
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(out[:], crypto.Keccak256(a[:], b[:]))
	} else {
		copy(out[:], crypto.Keccak256(b[:], a[:]))
	}
	return out
}

// Tree is a fully built allow-list tree. levels[0] holds the sorted,
// deduplicated leaves; the last level holds the root alone.
type Tree struct {
	levels [][][32]byte
	leaf   map[[32]byte]int
}

// Build constructs the commitment tree for a set of addresses. Duplicates
// collapse; at least one address is required. Odd levels promote the last
// node unpaired rather than duplicating it.
func Build(addrs []common.Address) (*Tree, bool) {
	if len(addrs) == 0 {
		return nil, false
	}

	seen := map[[32]byte]struct{}{}
	leaves := make([][32]byte, 0, len(addrs))
	for _, a := range addrs {
		l := Leaf(a)
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		leaves = append(leaves, l)
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i][:], leaves[j][:]) < 0 })

	t := &Tree{leaf: make(map[[32]byte]int, len(leaves))}
	for i, l := range leaves {
		t.leaf[l] = i
	}

	level := leaves
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, parent(level[i], level[i+1]))
		}
		level = next
		t.levels = append(t.levels, level)
	}
	return t, true
}

// Root returns the commitment digest.
func (t *Tree) Root() [32]byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof returns the sibling path for addr, or false if addr is not a leaf.
// A single-address tree has an empty path, which Verify rejects; allow-lists
// of one are not a supported deployment.
func (t *Tree) Proof(addr common.Address) ([][32]byte, bool) {
	idx, ok := t.leaf[Leaf(addr)]
	if !ok {
		return nil, false
	}
	var path [][32]byte
	for _, level := range t.levels[:len(t.levels)-1] {
		sib := idx ^ 1
		if sib < len(level) {
			path = append(path, level[sib])
		}
		idx /= 2
	}
	return path, true
}
