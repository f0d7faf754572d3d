package primitives

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"testing"
)

func TestHash256NonZeroAndDistinct(t *testing.T) {
	// Hash256("") == SHA256(SHA256("")).
	h := Hash256(nil)
	if h.IsZero() {
		t.Fatal("Hash256 of empty input should not be zero")
	}
	if Hash256([]byte("a")) == Hash256([]byte("b")) {
		t.Fatal("distinct inputs hashed equal")
	}
}

func TestVarintRoundtrip(t *testing.T) {
	cases := []uint64{0, 1, 0xFC, 0xFD, 0xFFFF, 0x10000, 0xFFFFFFFF, 0x100000000, 1 << 40}
	for _, n := range cases {
		buf := PutVarint(nil, n)
		got, err := ReadVarint(bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if got != n {
			t.Fatalf("n=%d roundtrip got %d", n, got)
		}
	}
}

func TestVarintSizeClasses(t *testing.T) {
	if len(PutVarint(nil, 0xFC)) != 1 {
		t.Fatal("expected 1 byte for 0xFC")
	}
	if len(PutVarint(nil, 0xFFFF)) != 3 {
		t.Fatal("expected 3 bytes for 0xFFFF")
	}
	if len(PutVarint(nil, 0xFFFFFFFF)) != 5 {
		t.Fatal("expected 5 bytes for 0xFFFFFFFF")
	}
	if len(PutVarint(nil, 1<<40)) != 9 {
		t.Fatal("expected 9 bytes for a u64-range value")
	}
}

func TestSignatureBoundaries(t *testing.T) {
	sBytes := make([]byte, 64)
	sBytes[31] = 1 // r = 1
	sBytes[63] = 0 // s = 0 -> invalid
	if _, err := DecodeSignature(sBytes); err == nil {
		t.Fatal("s=0 must be rejected")
	}

	// s = n (curve order) must be rejected.
	nBytes := curveOrder.Bytes()
	copy(sBytes[32:], nBytes)
	if _, err := DecodeSignature(sBytes); err == nil {
		t.Fatal("s=n must be rejected")
	}
}

func TestECDSAVerifyRoundtrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(Secp256r1(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	msgHash := Hash256([]byte("message"))
	r, s, err := ecdsa.Sign(rand.Reader, priv, msgHash[:])
	if err != nil {
		t.Fatal(err)
	}
	sig := make([]byte, 64)
	rBytes, sBytesRaw := r.Bytes(), s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytesRaw):], sBytesRaw)

	pub := &ECPoint{X: priv.PublicKey.X, Y: priv.PublicKey.Y}
	ok, err := VerifyECDSA(msgHash[:], sig, pub)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}

	sig[0] ^= 0xFF
	ok, err = VerifyECDSA(msgHash[:], sig, pub)
	if err == nil && ok {
		t.Fatal("corrupted signature must not verify")
	}
}

func TestECPointCompressedRoundtrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(Secp256r1(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	p := &ECPoint{X: priv.PublicKey.X, Y: priv.PublicKey.Y}
	enc := p.Compressed()
	if len(enc) != CompressedSize {
		t.Fatalf("expected %d bytes, got %d", CompressedSize, len(enc))
	}
	decoded, err := DecodeECPoint(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Equal(decoded) {
		t.Fatal("decoded point does not match original")
	}
}

func TestStackItemOrderingTypeTag(t *testing.T) {
	items := []*Item{
		{Type: ItemTypeNull},
		{Type: ItemTypeBoolean, Bytes: []byte{1}},
		{Type: ItemTypeInteger, Bytes: []byte{1}},
		{Type: ItemTypeByteString, Bytes: []byte{1}},
		{Type: ItemTypeArray},
		{Type: ItemTypeStruct},
		{Type: ItemTypeMap},
		{Type: ItemTypePointer, Pointer: 1},
		{Type: ItemTypeInteropInterface},
	}
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if Compare(items[i], items[j]) >= 0 {
				t.Fatalf("expected items[%d] < items[%d] (%v < %v)", i, j, items[i].Type, items[j].Type)
			}
		}
	}
}

func TestStackItemByteStringBufferCompareAsBytes(t *testing.T) {
	a := &Item{Type: ItemTypeByteString, Bytes: []byte("abc")}
	b := &Item{Type: ItemTypeBuffer, Bytes: []byte("abc")}
	if Compare(a, b) != 0 {
		t.Fatal("ByteString and Buffer with equal content must compare equal")
	}
}

func TestMapComparesBySizeThenSortedPairs(t *testing.T) {
	k1 := &Item{Type: ItemTypeInteger, Bytes: []byte{1}}
	k2 := &Item{Type: ItemTypeInteger, Bytes: []byte{2}}
	v := &Item{Type: ItemTypeBoolean, Bytes: []byte{1}}

	m1 := NewMapItem([]MapPair{{Key: k2, Value: v}, {Key: k1, Value: v}})
	m2 := NewMapItem([]MapPair{{Key: k1, Value: v}, {Key: k2, Value: v}})
	if Compare(m1, m2) != 0 {
		t.Fatal("maps with same pairs in different insertion order must compare equal")
	}

	bigger := NewMapItem([]MapPair{{Key: k1, Value: v}, {Key: k2, Value: v}, {Key: &Item{Type: ItemTypeInteger, Bytes: []byte{3}}, Value: v}})
	if Compare(m1, bigger) >= 0 {
		t.Fatal("smaller map must sort before larger map")
	}
}
