// Copyright 2025 The neocore Authors
//
// Package consensus implements the dBFT v2 state machine: the primary
// election rule, the PrepareRequest/PrepareResponse/ChangeView/Commit/
// Recovery message protocol, and the single-threaded event loop that turns
// an incoming message or a fired timer into zero or more outgoing messages
// and (at commit) a candidate block handed to the ledger.
package consensus

// M returns the honest quorum: the minimum number of validators whose
// agreement is sufficient to make progress, n - floor((n-1)/3).
func M(n int) int {
	return n - F(n)
}

// F returns the maximum number of Byzantine validators the network
// tolerates at size n, floor((n-1)/3).
func F(n int) int {
	return (n - 1) / 3
}

// PrimaryIndex returns the index of the validator acting as primary
// (speaker) at the given height and view: (height - view) mod n, computed
// over non-negative residues.
func PrimaryIndex(height uint32, view byte, n int) int {
	p := (int64(height) - int64(view)) % int64(n)
	if p < 0 {
		p += int64(n)
	}
	return int(p)
}
