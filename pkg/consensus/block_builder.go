// Copyright 2025 The neocore Authors
package consensus

import (
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"

	"github.com/ironvale-labs/neocore/pkg/ledger"
	"github.com/ironvale-labs/neocore/pkg/merkle"
	"github.com/ironvale-labs/neocore/pkg/primitives"
	"github.com/ironvale-labs/neocore/pkg/witness"
)

// makeHeader builds the candidate header for the current round from the
// primary's PrepareRequest. It is only possible once the primary's slot
// holds a request, and its witness is left empty until enough Commit
// signatures are collected (buildMultiSigWitness fills it in).
func (sm *StateMachine) makeHeader(viewNumber byte) *ledger.Header {
	req := sm.round.Prepares[sm.primaryIndex]
	if !req.hasRequest() {
		return nil
	}
	r := req.Request

	return &ledger.Header{
		Version:       sm.settings.Version,
		PrevHash:      sm.prevHash,
		MerkleRoot:    merkle.TxRoot(r.TxHashes),
		TimestampMs:   r.TimestampMs,
		Nonce:         r.Nonce,
		Index:         sm.blockIndex,
		PrimaryIndex:  byte(sm.primaryIndex),
		NextConsensus: witness.ConsensusScriptHash(sm.validators),
	}
}

// tryMakeHeader returns the cached candidate header, building it from the
// current round if necessary.
func (sm *StateMachine) tryMakeHeader(viewNumber byte) *ledger.Header {
	if sm.header != nil {
		return sm.header
	}
	sm.header = sm.makeHeader(viewNumber)
	return sm.header
}

// signHeader produces a raw 64-byte r||s ECDSA signature over the header's
// unsigned-bytes digest, the value every Commit signature authenticates.
func (sm *StateMachine) signHeader(h *ledger.Header) ([primitives.SignatureSize]byte, error) {
	var out [primitives.SignatureSize]byte
	digest := h.Hash()
	r, s, err := ecdsa.Sign(rand.Reader, sm.privKey, digest[:])
	if err != nil {
		return out, err
	}
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

// verifyCommitSignature checks a Commit's signature against h, as signed by
// the validator at index validator.
func (sm *StateMachine) verifyCommitSignature(h *ledger.Header, validator int, sig [primitives.SignatureSize]byte) bool {
	if validator < 0 || validator >= len(sm.validators) {
		return false
	}
	digest := h.Hash()
	ok, err := primitives.VerifyECDSA(digest[:], sig[:], sm.validators[validator])
	return err == nil && ok
}

// buildMultiSigWitness assembles the header's final witness from the
// collected Commit signatures, in validator order, once M have been
// gathered. The invocation script pushes every available signature in
// committee order; positional signature verification skips slots with no
// signature.
func buildMultiSigWitness(commits []*Commit, validators []*primitives.ECPoint) witness.Witness {
	var invocation []byte
	for _, c := range commits {
		if c == nil {
			continue
		}
		invocation = append(invocation, 0x0C, byte(primitives.SignatureSize))
		invocation = append(invocation, c.Signature[:]...)
	}
	m := len(validators)*2/3 + 1
	verification := witness.BuildMultiSigScript(m, validators)
	return witness.Witness{InvocationScript: invocation, VerificationScript: verification}
}
