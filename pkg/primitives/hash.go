// Copyright 2025 The neocore Authors
//
// Package primitives implements the fixed-width identifiers, curve points,
// signatures and wire-framing helpers shared by the consensus, ledger and
// trie packages.
package primitives

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // intentional: Hash160 is RIPEMD160(SHA256(x))
)

// Uint160Size is the byte length of a UInt160 (contract/account hash).
const Uint160Size = 20

// Uint256Size is the byte length of a UInt256 (block/transaction hash).
const Uint256Size = 32

// Uint160 is a 20-byte, little-endian-on-the-wire address-space identifier.
type Uint160 [Uint160Size]byte

// Uint256 is a 32-byte, little-endian-on-the-wire block/transaction hash.
type Uint256 [Uint256Size]byte

// ErrInvalidHashLength is returned when decoding a hash of the wrong size.
var ErrInvalidHashLength = errors.New("primitives: invalid hash length")

// Uint160FromBytes copies a 20-byte slice into a Uint160, keeping the byte
// order as given.
func Uint160FromBytes(b []byte) (Uint160, error) {
	var u Uint160
	if len(b) != Uint160Size {
		return u, fmt.Errorf("%w: got %d want %d", ErrInvalidHashLength, len(b), Uint160Size)
	}
	copy(u[:], b)
	return u, nil
}

// Uint256FromBytes copies a 32-byte slice into a Uint256, keeping the byte
// order as given.
func Uint256FromBytes(b []byte) (Uint256, error) {
	var u Uint256
	if len(b) != Uint256Size {
		return u, fmt.Errorf("%w: got %d want %d", ErrInvalidHashLength, len(b), Uint256Size)
	}
	copy(u[:], b)
	return u, nil
}

// Bytes returns a copy of the underlying bytes.
func (u Uint160) Bytes() []byte {
	b := make([]byte, Uint160Size)
	copy(b, u[:])
	return b
}

// Bytes returns a copy of the underlying bytes.
func (u Uint256) Bytes() []byte {
	b := make([]byte, Uint256Size)
	copy(b, u[:])
	return b
}

// String renders the hash as a hex string (no 0x prefix), matching the
// ledger's on-disk key encoding rather than a display-reversed form.
func (u Uint160) String() string { return hex.EncodeToString(u[:]) }
func (u Uint256) String() string { return hex.EncodeToString(u[:]) }

// IsZero reports whether the hash is the all-zero value.
func (u Uint160) IsZero() bool { return u == Uint160{} }
func (u Uint256) IsZero() bool { return u == Uint256{} }

// Less gives Uint256 a total order, used for deterministic iteration (e.g.
// conflict stub indexing, sorted validator-key lists keyed by account hash).
func (u Uint256) Less(o Uint256) bool {
	for i := range u {
		if u[i] != o[i] {
			return u[i] < o[i]
		}
	}
	return false
}

// Less gives Uint160 a total order.
func (u Uint160) Less(o Uint160) bool {
	for i := range u {
		if u[i] != o[i] {
			return u[i] < o[i]
		}
	}
	return false
}

// Hash256 computes SHA256(SHA256(x)), the block/transaction hash function.
func Hash256(data []byte) Uint256 {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return Uint256(second)
}

// Hash160 computes RIPEMD160(SHA256(x)), the script/account hash function.
func Hash160(data []byte) Uint160 {
	first := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(first[:]) //nolint:errcheck // hash.Hash.Write never errors
	var out Uint160
	copy(out[:], h.Sum(nil))
	return out
}
