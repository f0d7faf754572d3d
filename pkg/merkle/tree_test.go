// Copyright 2025 The neocore Authors
//
// Merkle Tree Tests

package merkle

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/ironvale-labs/neocore/pkg/primitives"
)

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaf := sha256.Sum256([]byte("test data"))
	tree, err := BuildTree([][]byte{leaf[:]})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	if !bytes.Equal(tree.Root(), leaf[:]) {
		t.Errorf("single leaf root mismatch: got %x, want %x", tree.Root(), leaf[:])
	}
}

func TestBuildTree_TwoLeaves(t *testing.T) {
	leaf1 := sha256.Sum256([]byte("leaf 1"))
	leaf2 := sha256.Sum256([]byte("leaf 2"))

	tree, err := BuildTree([][]byte{leaf1[:], leaf2[:]})
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	want := hashPair(leaf1[:], leaf2[:])
	if !bytes.Equal(tree.Root(), want) {
		t.Errorf("two-leaf root mismatch: got %x, want %x", tree.Root(), want)
	}
}

func TestBuildTree_OddLeafDuplicates(t *testing.T) {
	leaf1 := sha256.Sum256([]byte("a"))
	leaf2 := sha256.Sum256([]byte("b"))
	leaf3 := sha256.Sum256([]byte("c"))

	tree, err := BuildTree([][]byte{leaf1[:], leaf2[:], leaf3[:]})
	if err != nil {
		t.Fatal(err)
	}

	left := hashPair(leaf1[:], leaf2[:])
	right := hashPair(leaf3[:], leaf3[:])
	want := hashPair(left, right)
	if !bytes.Equal(tree.Root(), want) {
		t.Errorf("odd-leaf root mismatch: got %x, want %x", tree.Root(), want)
	}
}

func TestBuildTree_RejectsShortLeaf(t *testing.T) {
	_, err := BuildTree([][]byte{{1, 2, 3}})
	if err == nil {
		t.Fatal("expected error for a leaf shorter than 32 bytes")
	}
}

func TestBuildTree_RejectsEmptyLeafSet(t *testing.T) {
	_, err := BuildTree(nil)
	if err != ErrEmptyTree {
		t.Fatalf("got %v, want ErrEmptyTree", err)
	}
}

func TestTxRootEmptyBlockIsZero(t *testing.T) {
	root := TxRoot(nil)
	if !root.IsZero() {
		t.Fatal("expected zero merkle-root for a block with no transactions")
	}
}

func TestTxRootMatchesHash256Pairing(t *testing.T) {
	h1 := primitives.Hash256([]byte("tx a"))
	h2 := primitives.Hash256([]byte("tx b"))
	root := TxRoot([]primitives.Uint256{h1, h2})

	tree, err := BuildTree([][]byte{h1[:], h2[:]})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := primitives.Uint256FromBytes(tree.Root())
	if root != want {
		t.Fatal("TxRoot must match BuildTree root for the same tx hashes")
	}
}
