// Copyright 2025 The neocore Authors
//
// Package witness implements witness (invocation+verification script)
// classification and verification against an expected script hash, plus
// the witness-rule condition tree from
// original_source/neo-core/src/witness_rule.rs.
package witness

import (
	"errors"

	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// Opcodes relevant to witness classification. The VM itself lives outside
// this package; these are the handful of opcode values needed to recognize
// the single-sig and multi-sig verification-script shapes without a VM.
const (
	opPushData1 = 0x0C
	opPushBytes = 0x21 // push-33-bytes: opcode value equals the byte count being pushed
	opSyscall   = 0x41
	opPush1     = 0x51
	opPush16    = 0x60
)

// Interop hashes for the two syscalls a verification script may end with.
// These are the well-known Neo N3 interop method IDs.
var (
	interopCheckSig      = [4]byte{0xe0, 0xb6, 0x6c, 0x72} // System.Crypto.CheckSig
	interopCheckMultisig = [4]byte{0xc5, 0x0e, 0x8b, 0x13} // System.Crypto.CheckMultisig
)

// Kind classifies a verification script's shape.
type Kind int

const (
	KindComplex Kind = iota
	KindSingleSig
	KindMultiSig
)

// ErrMalformedScript is returned when a script does not parse as a valid
// push sequence (as opposed to simply not matching the single/multi shape,
// which is reported as KindComplex).
var ErrMalformedScript = errors.New("witness: malformed script")

// Classified holds the result of classifying a verification script.
type Classified struct {
	Kind Kind
	// Single-sig:
	PubKey *primitives.ECPoint
	// Multi-sig:
	M       int
	PubKeys []*primitives.ECPoint
}

// Classify inspects a verification script and determines whether it is a
// single-signature script (35-41 bytes), an m-of-n multisig script, or
// something else ("complex", to be executed by the VM).
func Classify(script []byte) Classified {
	if k, ok := classifySingleSig(script); ok {
		return k
	}
	if k, ok := classifyMultiSig(script); ok {
		return k
	}
	return Classified{Kind: KindComplex}
}

func classifySingleSig(script []byte) (Classified, bool) {
	if len(script) < 35 || len(script) > 41 {
		return Classified{}, false
	}
	pk, rest, ok := readPushedPubKey(script)
	if !ok {
		return Classified{}, false
	}
	if !endsWithSyscall(rest, interopCheckSig) {
		return Classified{}, false
	}
	return Classified{Kind: KindSingleSig, PubKey: pk}, true
}

func classifyMultiSig(script []byte) (Classified, bool) {
	if len(script) < 1 {
		return Classified{}, false
	}
	m, ok := readPushInt(script[0])
	if !ok || m < 1 || m > 16 {
		return Classified{}, false
	}
	rest := script[1:]

	var pubKeys []*primitives.ECPoint
	for {
		if len(rest) == 0 {
			return Classified{}, false
		}
		// Stop consuming pubkeys once we hit a PUSHn opcode for the count.
		if n, ok := readPushInt(rest[0]); ok && len(pubKeys) >= 2 {
			if n != len(pubKeys) {
				return Classified{}, false
			}
			rest = rest[1:]
			break
		}
		pk, next, ok := readPushedPubKey(rest)
		if !ok {
			return Classified{}, false
		}
		pubKeys = append(pubKeys, pk)
		rest = next
	}

	if m > len(pubKeys) {
		return Classified{}, false
	}
	if !endsWithSyscall(rest, interopCheckMultisig) {
		return Classified{}, false
	}
	return Classified{Kind: KindMultiSig, M: m, PubKeys: pubKeys}, true
}

// readPushedPubKey consumes either `0x21 <33 bytes>` or `0x0C 0x21 <33
// bytes>` from the front of script and returns the decoded point plus the
// remaining bytes.
func readPushedPubKey(script []byte) (*primitives.ECPoint, []byte, bool) {
	switch {
	case len(script) >= 1+primitives.CompressedSize && script[0] == opPushBytes:
		pk, err := primitives.DecodeECPoint(script[1 : 1+primitives.CompressedSize])
		if err != nil {
			return nil, nil, false
		}
		return pk, script[1+primitives.CompressedSize:], true
	case len(script) >= 2+primitives.CompressedSize && script[0] == opPushData1 && script[1] == primitives.CompressedSize:
		pk, err := primitives.DecodeECPoint(script[2 : 2+primitives.CompressedSize])
		if err != nil {
			return nil, nil, false
		}
		return pk, script[2+primitives.CompressedSize:], true
	default:
		return nil, nil, false
	}
}

// readPushInt decodes a PUSH1..PUSH16 opcode into its integer value (1..16).
func readPushInt(op byte) (int, bool) {
	if op < opPush1 || op > opPush16 {
		return 0, false
	}
	return int(op-opPush1) + 1, true
}

// endsWithSyscall checks that rest is exactly `SYSCALL <4-byte interop id>`.
func endsWithSyscall(rest []byte, interop [4]byte) bool {
	if len(rest) != 5 || rest[0] != opSyscall {
		return false
	}
	return [4]byte(rest[1:5]) == interop
}

// readPushedSignature consumes a single 64-byte signature push, in either
// `0x40 <sig>` or `0x0C 0x40 <sig>` form, as found in an invocation script.
func readPushedSignature(script []byte) ([]byte, []byte, bool) {
	const opPushSig = 0x40
	switch {
	case len(script) >= 1+primitives.SignatureSize && script[0] == opPushSig:
		return script[1 : 1+primitives.SignatureSize], script[1+primitives.SignatureSize:], true
	case len(script) >= 2+primitives.SignatureSize && script[0] == opPushData1 && script[1] == primitives.SignatureSize:
		return script[2 : 2+primitives.SignatureSize], script[2+primitives.SignatureSize:], true
	default:
		return nil, nil, false
	}
}

// ParseSignatures reads every signature push out of an invocation script,
// in order, failing if anything other than signature pushes remain.
func ParseSignatures(invocation []byte) ([][]byte, error) {
	var sigs [][]byte
	rest := invocation
	for len(rest) > 0 {
		sig, next, ok := readPushedSignature(rest)
		if !ok {
			return nil, ErrMalformedScript
		}
		sigs = append(sigs, sig)
		rest = next
	}
	return sigs, nil
}

// BuildSingleSigScript constructs the canonical verification script for a
// single public key: PUSHDATA1 33 <pubkey> SYSCALL CheckSig.
func BuildSingleSigScript(pub *primitives.ECPoint) []byte {
	script := make([]byte, 0, 40)
	script = append(script, opPushData1, primitives.CompressedSize)
	script = append(script, pub.Compressed()...)
	script = append(script, opSyscall)
	script = append(script, interopCheckSig[:]...)
	return script
}

// BuildMultiSigScript constructs the canonical m-of-n multisig verification
// script. pubKeys must already be sorted (callers hold validators sorted by
// compressed encoding, matching the committee/validator ordering rule).
func BuildMultiSigScript(m int, pubKeys []*primitives.ECPoint) []byte {
	script := make([]byte, 0, 3+len(pubKeys)*36)
	script = append(script, pushIntOpcode(m))
	for _, pk := range pubKeys {
		script = append(script, opPushData1, primitives.CompressedSize)
		script = append(script, pk.Compressed()...)
	}
	script = append(script, pushIntOpcode(len(pubKeys)))
	script = append(script, opSyscall)
	script = append(script, interopCheckMultisig[:]...)
	return script
}

func pushIntOpcode(n int) byte {
	return opPush1 + byte(n-1)
}
