// Copyright 2025 The neocore Authors
package consensus

import (
	"fmt"

	"github.com/ironvale-labs/neocore/pkg/ledger"
	"github.com/ironvale-labs/neocore/pkg/merkle"
	"github.com/ironvale-labs/neocore/pkg/primitives"
	"github.com/ironvale-labs/neocore/pkg/witness"
)

// VerifyBlockInvariants checks that a block produced by createBlockIfNeeded
// is internally consistent before it is handed to a BlockSink. It does not
// re-verify the multisig witness cryptographically (that is the ledger's
// job at persist time) — only the structural invariants a correctly
// functioning state machine must have upheld.
func VerifyBlockInvariants(block *ledger.Block, validators []*primitives.ECPoint) error {
	if block == nil || block.Header == nil {
		return fmt.Errorf("block: header must not be nil")
	}
	h := block.Header

	var violations []string
	add := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	if len(validators) == 0 {
		add("validators must not be empty")
	}
	if int(h.PrimaryIndex) >= len(validators) {
		add("primary_index %d out of range for %d validators", h.PrimaryIndex, len(validators))
	}
	if len(validators) > 0 {
		want := witness.ConsensusScriptHash(validators)
		if h.NextConsensus != want {
			add("next_consensus does not match the committee's multisig script hash")
		}
	}

	wantRoot := merkle.TxRoot(hashesOf(block.Transactions))
	if block.Transactions != nil && h.MerkleRoot != wantRoot {
		add("merkle_root does not match the block's transaction hashes")
	}

	if len(h.Witness.VerificationScript) == 0 {
		add("witness.verification_script must not be empty")
	}
	if len(h.Witness.InvocationScript) == 0 {
		add("witness.invocation_script must not be empty")
	}

	if len(violations) == 0 {
		return nil
	}
	return fmt.Errorf("block invariant violations: %v", violations)
}

func hashesOf(txs []*ledger.Transaction) []primitives.Uint256 {
	out := make([]primitives.Uint256, len(txs))
	for i, tx := range txs {
		out[i] = tx.Hash()
	}
	return out
}
