package witness

import (
	"errors"
	"fmt"

	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// Witness is the (invocation_script, verification_script) pair that
// authorizes a signer's presence.
type Witness struct {
	InvocationScript   []byte
	VerificationScript []byte
}

// Result is the outcome of verifying a single witness.
type Result int

const (
	ResultSucceed Result = iota
	ResultInvalidWitness
	ResultInvalidSignature
)

func (r Result) String() string {
	switch r {
	case ResultSucceed:
		return "Succeed"
	case ResultInvalidWitness:
		return "InvalidWitness"
	case ResultInvalidSignature:
		return "InvalidSignature"
	default:
		return "Unknown"
	}
}

// VMRunner executes an invocation+verification script pair under the
// Verification trigger and reports whether the VM halted with a truthy top
//-of-stack result. The VM itself lives outside this package; the
// ledger/consensus caller supplies an adapter over its embedding engine.
type VMRunner interface {
	RunVerification(invocation, verification, messageHash []byte, gasLimit int64) (halted bool, truthy bool, err error)
}

// ComplexScriptGasLimit is the fixed gas cap for "complex" verification
// scripts.
const ComplexScriptGasLimit = 30_000_000

// ErrNoVMRunner is returned when a "complex" verification script is
// encountered but no VMRunner was supplied.
var ErrNoVMRunner = errors.New("witness: complex script requires a VM runner")

// Verifier checks witnesses against an expected script hash and message
// hash, per the per-witness verification policy.
type Verifier struct {
	VM VMRunner
}

// NewVerifier constructs a Verifier. vm may be nil if the caller never
// expects to encounter complex (VM-driven) verification scripts; doing so
// will surface as ResultInvalidWitness via ErrNoVMRunner.
func NewVerifier(vm VMRunner) *Verifier {
	return &Verifier{VM: vm}
}

// VerifyOne checks a single witness against the signer's expected script
// hash and the message hash (Hash256 of the unsigned form).
func (v *Verifier) VerifyOne(w Witness, expectedScriptHash primitives.Uint160, messageHash primitives.Uint256) (Result, error) {
	if len(w.InvocationScript) == 0 && len(w.VerificationScript) == 0 {
		return ResultInvalidWitness, nil
	}

	if len(w.VerificationScript) > 0 {
		if primitives.Hash160(w.VerificationScript) != expectedScriptHash {
			return ResultInvalidSignature, nil
		}
	}

	class := Classify(w.VerificationScript)
	switch class.Kind {
	case KindSingleSig:
		return v.verifySingleSig(w.InvocationScript, class.PubKey, messageHash)
	case KindMultiSig:
		return v.verifyMultiSig(w.InvocationScript, class.M, class.PubKeys, messageHash)
	default:
		return v.verifyComplex(w, messageHash)
	}
}

func (v *Verifier) verifySingleSig(invocation []byte, pub *primitives.ECPoint, messageHash primitives.Uint256) (Result, error) {
	sigs, err := ParseSignatures(invocation)
	if err != nil || len(sigs) != 1 {
		return ResultInvalidSignature, nil
	}
	ok, err := primitives.VerifyECDSA(messageHash[:], sigs[0], pub)
	if err != nil {
		return ResultInvalidSignature, nil
	}
	if !ok {
		return ResultInvalidSignature, nil
	}
	return ResultSucceed, nil
}

// verifyMultiSig implements the positional multisig variant: each signature,
// in order, is tried against the public keys in script order starting after
// the key the previous signature matched, skipping keys it does not verify
// against. Every supplied signature must find a key, at least m signatures
// must be supplied, and signature order must follow key order (no
// reordering/any-key pairing is attempted).
func (v *Verifier) verifyMultiSig(invocation []byte, m int, pubKeys []*primitives.ECPoint, messageHash primitives.Uint256) (Result, error) {
	sigs, err := ParseSignatures(invocation)
	if err != nil || len(sigs) < m {
		return ResultInvalidSignature, nil
	}

	keyIdx := 0
	verified := 0
	for _, sig := range sigs {
		found := false
		for keyIdx < len(pubKeys) {
			ok, verr := primitives.VerifyECDSA(messageHash[:], sig, pubKeys[keyIdx])
			keyIdx++
			if verr == nil && ok {
				found = true
				break
			}
		}
		if !found {
			return ResultInvalidSignature, nil
		}
		verified++
	}
	if verified < m {
		return ResultInvalidSignature, nil
	}
	return ResultSucceed, nil
}

func (v *Verifier) verifyComplex(w Witness, messageHash primitives.Uint256) (Result, error) {
	if v.VM == nil {
		return ResultInvalidWitness, ErrNoVMRunner
	}
	halted, truthy, err := v.VM.RunVerification(w.InvocationScript, w.VerificationScript, messageHash[:], ComplexScriptGasLimit)
	if err != nil || !halted {
		// VM execution errors (gas, fault) yield InvalidWitness, not a
		// propagated error.
		return ResultInvalidWitness, nil
	}
	if !truthy {
		return ResultInvalidSignature, nil
	}
	return ResultSucceed, nil
}

// VerifyAll checks an ordered list of witnesses against their expected
// script hashes (one per signer, same order), returning the first non-Succeed
// result encountered, or ResultSucceed if all pass.
func (v *Verifier) VerifyAll(witnesses []Witness, expectedHashes []primitives.Uint160, messageHash primitives.Uint256) (Result, error) {
	if len(witnesses) != len(expectedHashes) {
		return ResultInvalidWitness, fmt.Errorf("witness: %d witnesses for %d signers", len(witnesses), len(expectedHashes))
	}
	for i, w := range witnesses {
		res, err := v.VerifyOne(w, expectedHashes[i], messageHash)
		if err != nil {
			return res, err
		}
		if res != ResultSucceed {
			return res, nil
		}
	}
	return ResultSucceed, nil
}

// VerifyHeaderWitness additionally requires that the single header witness's
// verification-script hash equals the expected consensus multisig hash
// computed from the current committee.
func (v *Verifier) VerifyHeaderWitness(w Witness, consensusScriptHash primitives.Uint160, messageHash primitives.Uint256) (Result, error) {
	if primitives.Hash160(w.VerificationScript) != consensusScriptHash {
		return ResultInvalidSignature, nil
	}
	return v.VerifyOne(w, consensusScriptHash, messageHash)
}

// ConsensusScriptHash computes Hash160(multisig_script(m, sortedCommittee))
// for m = floor(2n/3)+1, the expected next_consensus / header-witness
// script hash.
func ConsensusScriptHash(committee []*primitives.ECPoint) primitives.Uint160 {
	m := len(committee)*2/3 + 1
	script := BuildMultiSigScript(m, committee)
	return primitives.Hash160(script)
}
