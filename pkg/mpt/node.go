// Copyright 2025 The neocore Authors
//
// Package mpt implements a binary-nibble Merkle Patricia Trie, the
// authenticated key/value structure backing contract and root state.
package mpt

import (
	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// NodeType tags the variant of a trie node.
type NodeType byte

const (
	NodeEmpty NodeType = iota
	NodeLeaf
	NodeExtension
	NodeBranch
	NodeHash
)

// BranchChildCount is the fixed fanout of a branch node: 16 nibble slots
// plus one value slot.
const BranchChildCount = 17

// BranchValueIndex is the slot holding a value terminating at a branch.
const BranchValueIndex = 16

// Canonical encoding tags.
const (
	tagExtension byte = 0x01
	tagBranch    byte = 0x02
	tagLeaf      byte = 0x03
)

// Node is a single node of the trie. Only the fields relevant to Type are
// populated; the others are zero.
type Node struct {
	Type NodeType

	Value []byte // Leaf

	Key  []byte // Extension: nibble path
	Next *Node  // Extension: child

	Children [BranchChildCount]*Node // Branch

	HashValue primitives.Uint256 // Hash: the referenced node hash

	hashCache *primitives.Uint256
}

func newEmptyNode() *Node { return &Node{Type: NodeEmpty} }

func newHashNode(h primitives.Uint256) *Node { return &Node{Type: NodeHash, HashValue: h} }

func newLeafNode(value []byte) *Node {
	return &Node{Type: NodeLeaf, Value: append([]byte(nil), value...)}
}

func newExtensionNode(key []byte, next *Node) *Node {
	return &Node{Type: NodeExtension, Key: append([]byte(nil), key...), Next: next}
}

func newBranchNode() *Node {
	n := &Node{Type: NodeBranch}
	for i := range n.Children {
		n.Children[i] = newEmptyNode()
	}
	return n
}

// IsEmpty reports whether n is the Empty node variant.
func (n *Node) IsEmpty() bool { return n == nil || n.Type == NodeEmpty }

// setDirty invalidates a memoized hash after in-place mutation.
func (n *Node) setDirty() { n.hashCache = nil }

// Hash returns the node's content hash. For a Hash node this is simply the
// referenced hash; for every other non-empty variant it is Hash256 of the
// canonical encoding, memoized until the node is mutated.
func (n *Node) Hash() primitives.Uint256 {
	if n.Type == NodeHash {
		return n.HashValue
	}
	if n.hashCache != nil {
		return *n.hashCache
	}
	h := primitives.Hash256(n.Encode())
	n.hashCache = &h
	return h
}

// Encode renders the node's canonical encoding: the form used both for
// hashing and for the proof set (without any storage reference-count
// header).
func (n *Node) Encode() []byte {
	switch n.Type {
	case NodeLeaf:
		out := []byte{tagLeaf}
		out = primitives.PutVarint(out, uint64(len(n.Value)))
		return append(out, n.Value...)
	case NodeExtension:
		out := []byte{tagExtension}
		out = primitives.PutVarint(out, uint64(len(n.Key)))
		out = append(out, packNibbles(n.Key)...)
		childHash := n.Next.Hash()
		return append(out, childHash[:]...)
	case NodeBranch:
		out := []byte{tagBranch}
		for _, child := range n.Children {
			if child.IsEmpty() {
				out = append(out, 0x00)
				continue
			}
			h := child.Hash()
			out = append(out, h[:]...)
		}
		return out
	default:
		return nil
	}
}

// packNibbles packs a nibble slice two-per-byte, high nibble first. The
// nibble count (tracked separately as the klen varint) disambiguates an odd
// trailing nibble from a zero-padded one on unpack.
func packNibbles(nibbles []byte) []byte {
	out := make([]byte, (len(nibbles)+1)/2)
	for i, nb := range nibbles {
		if i%2 == 0 {
			out[i/2] = nb << 4
		} else {
			out[i/2] |= nb & 0x0F
		}
	}
	return out
}

func unpackNibbles(packed []byte, count int) []byte {
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		b := packed[i/2]
		if i%2 == 0 {
			out[i] = b >> 4
		} else {
			out[i] = b & 0x0F
		}
	}
	return out
}
