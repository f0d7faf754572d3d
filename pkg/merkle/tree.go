// Copyright 2025 The neocore Authors
//
// Merkle tree for block transaction roots.
//
// A block header's merkle-root is the root of a binary tree built over its
// transaction hashes, pairs combined with Hash256 (SHA256 twice).
package merkle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// Common errors
var (
	ErrEmptyTree       = errors.New("cannot build tree from empty leaves")
	ErrInvalidLeafHash = errors.New("leaf hash must be 32 bytes")
)

// Tree is a binary merkle tree over transaction hashes.
type Tree struct {
	mu     sync.RWMutex
	leaves [][]byte
	levels [][][]byte
	root   []byte
	built  bool
}

// BuildTree creates a new Merkle tree from the given leaf hashes (one per
// transaction, in block order). Each leaf must be exactly 32 bytes.
func BuildTree(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	for i, leaf := range leaves {
		if len(leaf) != 32 {
			return nil, fmt.Errorf("%w: leaf %d has %d bytes", ErrInvalidLeafHash, i, len(leaf))
		}
	}

	tree := &Tree{
		leaves: make([][]byte, len(leaves)),
		levels: make([][][]byte, 0),
	}
	for i, leaf := range leaves {
		tree.leaves[i] = make([]byte, 32)
		copy(tree.leaves[i], leaf)
	}
	if err := tree.build(); err != nil {
		return nil, err
	}
	return tree, nil
}

// TxRoot is a convenience wrapper computing a block's merkle-root directly
// from its transaction hashes. A block with no transactions has a zero
// merkle-root.
func TxRoot(txHashes []primitives.Uint256) primitives.Uint256 {
	if len(txHashes) == 0 {
		return primitives.Uint256{}
	}
	leaves := make([][]byte, len(txHashes))
	for i, h := range txHashes {
		b := h // copy
		leaves[i] = b[:]
	}
	tree, err := BuildTree(leaves)
	if err != nil {
		return primitives.Uint256{}
	}
	root, _ := primitives.Uint256FromBytes(tree.Root())
	return root
}

func (t *Tree) build() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.leaves) == 0 {
		return ErrEmptyTree
	}

	currentLevel := make([][]byte, len(t.leaves))
	for i, leaf := range t.leaves {
		currentLevel[i] = make([]byte, 32)
		copy(currentLevel[i], leaf)
	}
	t.levels = append(t.levels, currentLevel)

	for len(currentLevel) > 1 {
		nextLevel := make([][]byte, 0, (len(currentLevel)+1)/2)
		for i := 0; i < len(currentLevel); i += 2 {
			var combined []byte
			if i+1 < len(currentLevel) {
				combined = hashPair(currentLevel[i], currentLevel[i+1])
			} else {
				// Odd node: duplicate it.
				combined = hashPair(currentLevel[i], currentLevel[i])
			}
			nextLevel = append(nextLevel, combined)
		}
		t.levels = append(t.levels, nextLevel)
		currentLevel = nextLevel
	}

	t.root = currentLevel[0]
	t.built = true
	return nil
}

// hashPair combines two 32-byte hashes with Hash256 (SHA256 twice).
func hashPair(left, right []byte) []byte {
	combined := make([]byte, 64)
	copy(combined[:32], left)
	copy(combined[32:], right)
	h := primitives.Hash256(combined)
	return h[:]
}

// Root returns the Merkle root as a 32-byte slice
func (t *Tree) Root() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.built || t.root == nil {
		return nil
	}
	root := make([]byte, 32)
	copy(root, t.root)
	return root
}
