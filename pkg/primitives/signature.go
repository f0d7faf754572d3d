package primitives

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
)

// SignatureSize is the fixed wire length of r||s, both 32-byte big-endian.
const SignatureSize = 64

// curveOrder is secp256r1's order n.
var curveOrder = Secp256r1().Params().N

// ErrInvalidSignature is returned for structurally malformed signatures
// (wrong length, r or s out of (0, n)) prior to any cryptographic check.
var ErrInvalidSignature = errors.New("primitives: invalid signature encoding")

// Signature is a parsed (r, s) pair ready for ECDSA verification.
type Signature struct {
	R, S *big.Int
}

// DecodeSignature parses a 64-byte r||s signature, rejecting r or s that
// are zero or not strictly less than the curve order.
func DecodeSignature(b []byte) (*Signature, error) {
	if len(b) != SignatureSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(b))
	}
	r := new(big.Int).SetBytes(b[:32])
	s := new(big.Int).SetBytes(b[32:])
	if r.Sign() <= 0 || r.Cmp(curveOrder) >= 0 {
		return nil, fmt.Errorf("%w: r out of range", ErrInvalidSignature)
	}
	if s.Sign() <= 0 || s.Cmp(curveOrder) >= 0 {
		return nil, fmt.Errorf("%w: s out of range", ErrInvalidSignature)
	}
	return &Signature{R: r, S: s}, nil
}

// VerifyECDSA verifies sig over msgHash (a 32-byte digest that must NOT be
// re-hashed — the caller already produced the message digest) against pub.
// Returns false, without error, for a structurally valid signature that
// simply does not verify; returns an error only for malformed inputs.
func VerifyECDSA(msgHash []byte, sig []byte, pub *ECPoint) (bool, error) {
	if len(msgHash) != Uint256Size {
		return false, fmt.Errorf("primitives: message hash must be %d bytes, got %d", Uint256Size, len(msgHash))
	}
	parsed, err := DecodeSignature(sig)
	if err != nil {
		return false, err
	}
	if pub == nil {
		return false, fmt.Errorf("%w: nil public key", ErrInvalidPoint)
	}
	key := &ecdsa.PublicKey{Curve: Secp256r1(), X: pub.X, Y: pub.Y}
	return ecdsa.Verify(key, msgHash, parsed.R, parsed.S), nil
}
