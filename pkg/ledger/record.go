// Copyright 2025 The neocore Authors

package ledger

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// VMState records the outcome of a transaction's script execution.
// VMStateUnknown is the value written by the on-persist hook, before
// execution has happened.
type VMState byte

const (
	VMStateUnknown VMState = iota
	VMStateHalt
	VMStateFault
)

// recordTag discriminates the two TransactionStateRecord variants on the
// wire: all records carry a 1-byte discriminant.
type recordTag byte

const (
	tagFull     recordTag = iota // Full: {transaction, block_index, vm_state_byte}
	tagConflict                  // ConflictStub: {block_index}
)

// TransactionStateRecord is the value stored at PREFIX_TRANSACTION, in
// either of its two variants.
type TransactionStateRecord struct {
	IsConflictStub bool

	// Full variant
	Transaction *Transaction
	VMState     VMState

	// Both variants
	BlockIndex uint32
}

// NewFullRecord constructs a Full transaction state record with the
// vm_state set to unknown, as written by the on-persist hook.
func NewFullRecord(tx *Transaction, blockIndex uint32) *TransactionStateRecord {
	return &TransactionStateRecord{
		Transaction: tx,
		BlockIndex:  blockIndex,
		VMState:     VMStateUnknown,
	}
}

// NewConflictStub constructs a ConflictStub record.
func NewConflictStub(blockIndex uint32) *TransactionStateRecord {
	return &TransactionStateRecord{IsConflictStub: true, BlockIndex: blockIndex}
}

// Encode serializes the record per its tag.
func (r *TransactionStateRecord) Encode() []byte {
	buf := &bytes.Buffer{}
	if r.IsConflictStub {
		buf.WriteByte(byte(tagConflict))
		binary.Write(buf, binary.LittleEndian, r.BlockIndex)
		return buf.Bytes()
	}
	buf.WriteByte(byte(tagFull))
	buf.Write(r.Transaction.Encode())
	binary.Write(buf, binary.LittleEndian, r.BlockIndex)
	buf.WriteByte(byte(r.VMState))
	return buf.Bytes()
}

// DecodeTransactionStateRecord parses a TransactionStateRecord from its
// wire form.
func DecodeTransactionStateRecord(data []byte) (*TransactionStateRecord, error) {
	if len(data) == 0 {
		return nil, ErrMalformedRecord
	}
	r := bytes.NewReader(data)
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch recordTag(tagByte) {
	case tagConflict:
		var idx uint32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return nil, err
		}
		return &TransactionStateRecord{IsConflictStub: true, BlockIndex: idx}, nil
	case tagFull:
		rest := make([]byte, r.Len())
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil, err
		}
		tail := bytes.NewReader(rest)

		// A Transaction's own wire form has no outer length prefix, so
		// decode it in place against the shared cursor, then read the
		// trailing block_index/vm_state fields that follow it.
		tx, remaining, err := decodeTransactionWithRemainder(tail)
		if err != nil {
			return nil, err
		}
		remReader := bytes.NewReader(remaining)
		var idx uint32
		if err := binary.Read(remReader, binary.LittleEndian, &idx); err != nil {
			return nil, err
		}
		vmByte, err := remReader.ReadByte()
		if err != nil {
			return nil, err
		}
		return &TransactionStateRecord{
			Transaction: tx,
			BlockIndex:  idx,
			VMState:     VMState(vmByte),
		}, nil
	default:
		return nil, ErrMalformedRecord
	}
}

// decodeTransactionWithRemainder decodes one transaction from r and returns
// whatever bytes remain unread afterward.
func decodeTransactionWithRemainder(r *bytes.Reader) (*Transaction, []byte, error) {
	tx, err := decodeTransaction(r)
	if err != nil {
		return nil, nil, err
	}
	remaining := make([]byte, r.Len())
	if _, err := io.ReadFull(r, remaining); err != nil {
		return nil, nil, err
	}
	return tx, remaining, nil
}

// ConflictStubKey builds the per-signer conflict-stub key suffix
// (conflict_hash || signer_hash), completing the
// `PREFIX_TRANSACTION || conflict_hash || signer_hash` layout.
func ConflictStubKey(conflictHash primitives.Uint256, signer primitives.Uint160) []byte {
	out := make([]byte, primitives.Uint256Size+primitives.Uint160Size)
	copy(out, conflictHash[:])
	copy(out[primitives.Uint256Size:], signer[:])
	return out
}
