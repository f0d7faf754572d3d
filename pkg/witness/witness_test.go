package witness

import (
	"crypto/ecdsa"
	"crypto/rand"

	"testing"

	"github.com/ironvale-labs/neocore/pkg/primitives"
)

func genKey(t *testing.T) (*ecdsa.PrivateKey, *primitives.ECPoint) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(primitives.Secp256r1(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return priv, &primitives.ECPoint{X: priv.PublicKey.X, Y: priv.PublicKey.Y}
}

func sign(t *testing.T, priv *ecdsa.PrivateKey, hash primitives.Uint256) []byte {
	t.Helper()
	r, s, err := ecdsa.Sign(rand.Reader, priv, hash[:])
	if err != nil {
		t.Fatal(err)
	}
	sig := make([]byte, 64)
	rb, sb := r.Bytes(), s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):], sb)
	return sig
}

func pushSig(sig []byte) []byte {
	out := []byte{0x0C, 0x40}
	return append(out, sig...)
}

func TestClassifySingleSigLengths(t *testing.T) {
	_, pub := genKey(t)
	script := BuildSingleSigScript(pub)
	if len(script) != 40 {
		t.Fatalf("expected 40-byte script, got %d", len(script))
	}
	c := Classify(script)
	if c.Kind != KindSingleSig {
		t.Fatalf("expected KindSingleSig, got %v", c.Kind)
	}

	// length 34 must not be classified as single-sig (boundary: 35-41).
	short := script[:34]
	if Classify(short).Kind == KindSingleSig {
		t.Fatal("34-byte script must not classify as single-sig")
	}
}

func TestVerifyOneSingleSigSucceeds(t *testing.T) {
	priv, pub := genKey(t)
	verScript := BuildSingleSigScript(pub)
	scriptHash := primitives.Hash160(verScript)
	msgHash := primitives.Hash256([]byte("tx body"))
	invocation := pushSig(sign(t, priv, msgHash))

	v := NewVerifier(nil)
	res, err := v.VerifyOne(Witness{InvocationScript: invocation, VerificationScript: verScript}, scriptHash, msgHash)
	if err != nil {
		t.Fatal(err)
	}
	if res != ResultSucceed {
		t.Fatalf("expected Succeed, got %v", res)
	}
}

func TestVerifyOneWrongScriptHash(t *testing.T) {
	priv, pub := genKey(t)
	verScript := BuildSingleSigScript(pub)
	msgHash := primitives.Hash256([]byte("tx body"))
	invocation := pushSig(sign(t, priv, msgHash))

	v := NewVerifier(nil)
	var wrongHash primitives.Uint160
	res, _ := v.VerifyOne(Witness{InvocationScript: invocation, VerificationScript: verScript}, wrongHash, msgHash)
	if res != ResultInvalidSignature {
		t.Fatalf("expected InvalidSignature for mismatched script hash, got %v", res)
	}
}

func TestVerifyOneBothScriptsEmpty(t *testing.T) {
	v := NewVerifier(nil)
	var hash primitives.Uint160
	var msgHash primitives.Uint256
	res, _ := v.VerifyOne(Witness{}, hash, msgHash)
	if res != ResultInvalidWitness {
		t.Fatalf("expected InvalidWitness for empty scripts, got %v", res)
	}
}

func TestMultiSigPositionalVerification(t *testing.T) {
	priv1, pub1 := genKey(t)
	priv2, pub2 := genKey(t)
	priv3, pub3 := genKey(t)
	pubs := []*primitives.ECPoint{pub1, pub2, pub3}
	verScript := BuildMultiSigScript(2, pubs)
	scriptHash := primitives.Hash160(verScript)
	msgHash := primitives.Hash256([]byte("block header"))

	_ = priv3 // only sign with 1 and 2 below

	invocation := append(pushSig(sign(t, priv1, msgHash)), pushSig(sign(t, priv2, msgHash))...)
	v := NewVerifier(nil)
	res, err := v.VerifyOne(Witness{InvocationScript: invocation, VerificationScript: verScript}, scriptHash, msgHash)
	if err != nil {
		t.Fatal(err)
	}
	if res != ResultSucceed {
		t.Fatalf("expected Succeed for 2-of-3 with signers 1,2, got %v", res)
	}
}

func TestMultiSigInsufficientSignatures(t *testing.T) {
	priv1, pub1 := genKey(t)
	_, pub2 := genKey(t)
	_, pub3 := genKey(t)
	pubs := []*primitives.ECPoint{pub1, pub2, pub3}
	verScript := BuildMultiSigScript(2, pubs)
	scriptHash := primitives.Hash160(verScript)
	msgHash := primitives.Hash256([]byte("block header"))

	invocation := pushSig(sign(t, priv1, msgHash))
	v := NewVerifier(nil)
	res, _ := v.VerifyOne(Witness{InvocationScript: invocation, VerificationScript: verScript}, scriptHash, msgHash)
	if res != ResultInvalidSignature {
		t.Fatalf("expected InvalidSignature for 1-of-2 minimum unmet, got %v", res)
	}
}

func TestMultiSigOutOfOrderSignaturesRejected(t *testing.T) {
	priv1, pub1 := genKey(t)
	priv2, pub2 := genKey(t)
	pubs := []*primitives.ECPoint{pub1, pub2}
	verScript := BuildMultiSigScript(2, pubs)
	scriptHash := primitives.Hash160(verScript)
	msgHash := primitives.Hash256([]byte("block header"))

	// signature for key 2 first, then key 1 -- violates "signature order
	// must follow key order".
	invocation := append(pushSig(sign(t, priv2, msgHash)), pushSig(sign(t, priv1, msgHash))...)
	v := NewVerifier(nil)
	res, _ := v.VerifyOne(Witness{InvocationScript: invocation, VerificationScript: verScript}, scriptHash, msgHash)
	if res != ResultInvalidSignature {
		t.Fatalf("expected InvalidSignature for out-of-order signatures, got %v", res)
	}
}

func TestWitnessRuleDepthAndFanoutBounds(t *testing.T) {
	leaf := &Condition{Type: ConditionBoolean, BooleanValue: true}

	// depth 3 is fine: And(Not(Boolean))
	ok := &Condition{Type: ConditionAnd, Children: []*Condition{{Type: ConditionNot, Not: leaf}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid depth-3 tree, got %v", err)
	}

	// depth 5 must fail: And(Not(And(Not(Boolean)))).
	tooDeep := &Condition{Type: ConditionAnd, Children: []*Condition{{Type: ConditionNot, Not: ok}}}
	if err := tooDeep.Validate(); err == nil {
		t.Fatal("expected depth-5 tree to be rejected")
	}

	many := make([]*Condition, 17)
	for i := range many {
		many[i] = leaf
	}
	tooWide := &Condition{Type: ConditionOr, Children: many}
	if err := tooWide.Validate(); err == nil {
		t.Fatal("expected 17-child Or to be rejected")
	}
}

func TestWitnessRuleEval(t *testing.T) {
	entry := primitives.Uint160{1}
	cond := &Condition{Type: ConditionCalledByEntry}
	if !cond.Eval(EvalContext{CurrentScriptHash: entry, EntryScriptHash: entry}) {
		t.Fatal("expected CalledByEntry to match when current == entry")
	}
	other := primitives.Uint160{2}
	if cond.Eval(EvalContext{CurrentScriptHash: other, EntryScriptHash: entry}) {
		t.Fatal("expected CalledByEntry to fail when current != entry")
	}
}
