package primitives

import (
	"crypto/elliptic"
	"errors"
	"fmt"
	"math/big"
)

// Secp256r1 returns the NIST P-256 curve used for all dBFT witness and
// block-header signatures. No example repo in this lineage carries a
// secp256r1-specific curve library (the pack's curve libraries are all
// secp256k1, via dcrec/secp256k1 or go-ethereum's crypto/secp256k1); P-256 is
// only available from the standard library, see DESIGN.md.
func Secp256r1() elliptic.Curve { return elliptic.P256() }

// ErrInvalidPoint is returned when a byte string does not decode to a valid
// point on the secp256r1 curve.
var ErrInvalidPoint = errors.New("primitives: invalid ec point encoding")

// ECPoint is a secp256r1 curve point, held in affine coordinates.
type ECPoint struct {
	X, Y *big.Int
}

// CompressedSize and UncompressedSize are the two accepted wire encodings.
const (
	CompressedSize   = 33
	UncompressedSize = 65
)

// DecodeECPoint parses a compressed (0x02/0x03 prefix) or uncompressed
// (0x04 prefix) encoding of a secp256r1 point.
func DecodeECPoint(b []byte) (*ECPoint, error) {
	curve := Secp256r1()
	switch {
	case len(b) == CompressedSize && (b[0] == 0x02 || b[0] == 0x03):
		x, y := elliptic.UnmarshalCompressed(curve, b)
		if x == nil {
			return nil, fmt.Errorf("%w: compressed point not on curve", ErrInvalidPoint)
		}
		return &ECPoint{X: x, Y: y}, nil
	case len(b) == UncompressedSize && b[0] == 0x04:
		x, y := elliptic.Unmarshal(curve, b)
		if x == nil {
			return nil, fmt.Errorf("%w: uncompressed point not on curve", ErrInvalidPoint)
		}
		return &ECPoint{X: x, Y: y}, nil
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPoint, len(b))
	}
}

// Compressed encodes the point in its 33-byte compressed form.
func (p *ECPoint) Compressed() []byte {
	return elliptic.MarshalCompressed(Secp256r1(), p.X, p.Y)
}

// Equal reports whether two points have the same affine coordinates.
func (p *ECPoint) Equal(o *ECPoint) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.X.Cmp(o.X) == 0 && p.Y.Cmp(o.Y) == 0
}
