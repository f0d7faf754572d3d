package primitives

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Varint size-class prefixes.
const (
	varintPrefix16 = 0xFD
	varintPrefix32 = 0xFE
	varintPrefix64 = 0xFF
)

// PutVarint appends the varint encoding of n to dst and returns the result.
func PutVarint(dst []byte, n uint64) []byte {
	switch {
	case n < varintPrefix16:
		return append(dst, byte(n))
	case n < 0x10000:
		buf := make([]byte, 3)
		buf[0] = varintPrefix16
		binary.LittleEndian.PutUint16(buf[1:], uint16(n))
		return append(dst, buf...)
	case n < 0x100000000:
		buf := make([]byte, 5)
		buf[0] = varintPrefix32
		binary.LittleEndian.PutUint32(buf[1:], uint32(n))
		return append(dst, buf...)
	default:
		buf := make([]byte, 9)
		buf[0] = varintPrefix64
		binary.LittleEndian.PutUint64(buf[1:], n)
		return append(dst, buf...)
	}
}

// ReadVarint decodes a varint from r.
func ReadVarint(r io.ByteReader) (uint64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch first {
	case varintPrefix16:
		return readUintLE(r, 2)
	case varintPrefix32:
		return readUintLE(r, 4)
	case varintPrefix64:
		return readUintLE(r, 8)
	default:
		return uint64(first), nil
	}
}

func readUintLE(r io.ByteReader, n int) (uint64, error) {
	var v uint64
	for i := 0; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("primitives: short varint read: %w", err)
		}
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

// PutVarBytes appends a varint-prefixed byte array to dst.
func PutVarBytes(dst []byte, b []byte) []byte {
	dst = PutVarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// ReadVarBytes reads a varint length prefix followed by that many bytes.
// maxLen bounds the allocation to guard against a hostile length prefix.
func ReadVarBytes(r io.Reader, maxLen uint64) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = singleByteReader{r}
	}
	n, err := ReadVarint(br)
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, fmt.Errorf("primitives: varbytes length %d exceeds max %d", n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("primitives: short varbytes read: %w", err)
	}
	return buf, nil
}

type singleByteReader struct{ io.Reader }

func (s singleByteReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(s.Reader, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
