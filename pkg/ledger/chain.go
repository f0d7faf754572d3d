// Copyright 2025 The neocore Authors

package ledger

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ironvale-labs/neocore/pkg/merkle"
	"github.com/ironvale-labs/neocore/pkg/primitives"
	"github.com/ironvale-labs/neocore/pkg/witness"
)

// WitnessScope flags which contracts/groups a signer's witness covers.
type WitnessScope byte

const (
	ScopeNone            WitnessScope = 0
	ScopeCalledByEntry    WitnessScope = 1 << 0
	ScopeCustomContracts  WitnessScope = 1 << 4
	ScopeCustomGroups     WitnessScope = 1 << 5
	ScopeWitnessRules     WitnessScope = 1 << 6
	ScopeGlobal           WitnessScope = 1 << 7
)

// Signer is a transaction signer: the authorizing account plus the scope of
// contracts/groups/rules its witness is valid for.
type Signer struct {
	Account          primitives.Uint160
	Scopes           WitnessScope
	AllowedContracts []primitives.Uint160
	AllowedGroups    []*primitives.ECPoint
	Rules            []*witness.Rule
}

func (s *Signer) encode(buf *bytes.Buffer) {
	buf.Write(s.Account[:])
	buf.WriteByte(byte(s.Scopes))
	if s.Scopes&ScopeCustomContracts != 0 {
		buf.Write(primitives.PutVarint(nil, uint64(len(s.AllowedContracts))))
		for _, c := range s.AllowedContracts {
			buf.Write(c[:])
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		buf.Write(primitives.PutVarint(nil, uint64(len(s.AllowedGroups))))
		for _, g := range s.AllowedGroups {
			buf.Write(g.Compressed())
		}
	}
	if s.Scopes&ScopeWitnessRules != 0 {
		buf.Write(primitives.PutVarint(nil, uint64(len(s.Rules))))
		for _, r := range s.Rules {
			buf.WriteByte(byte(r.Action))
			encodeCondition(buf, r.Condition)
		}
	}
}

func decodeSigner(r *bytes.Reader) (*Signer, error) {
	accBytes := make([]byte, primitives.Uint160Size)
	if _, err := io.ReadFull(r, accBytes); err != nil {
		return nil, err
	}
	acc, err := primitives.Uint160FromBytes(accBytes)
	if err != nil {
		return nil, err
	}
	scopeByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	s := &Signer{Account: acc, Scopes: WitnessScope(scopeByte)}

	if s.Scopes&ScopeCustomContracts != 0 {
		n, err := primitives.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < n; i++ {
			b := make([]byte, primitives.Uint160Size)
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, err
			}
			c, err := primitives.Uint160FromBytes(b)
			if err != nil {
				return nil, err
			}
			s.AllowedContracts = append(s.AllowedContracts, c)
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		n, err := primitives.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < n; i++ {
			pk := make([]byte, 33)
			if _, err := io.ReadFull(r, pk); err != nil {
				return nil, err
			}
			pt, err := primitives.DecodeECPoint(pk)
			if err != nil {
				return nil, err
			}
			s.AllowedGroups = append(s.AllowedGroups, pt)
		}
	}
	if s.Scopes&ScopeWitnessRules != 0 {
		n, err := primitives.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < n; i++ {
			actionByte, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			cond, err := decodeCondition(r, 1)
			if err != nil {
				return nil, err
			}
			s.Rules = append(s.Rules, &witness.Rule{Action: witness.Action(actionByte), Condition: cond})
		}
	}
	return s, nil
}

// encodeCondition/decodeCondition give witness.Condition a minimal tagged
// wire form (tag byte | type-specific payload), consumed only by Signer's
// rule list — pkg/witness itself stays transport-agnostic.
func encodeCondition(buf *bytes.Buffer, c *witness.Condition) {
	buf.WriteByte(byte(c.Type))
	switch c.Type {
	case witness.ConditionBoolean:
		if c.BooleanValue {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case witness.ConditionNot:
		encodeCondition(buf, c.Not)
	case witness.ConditionAnd, witness.ConditionOr:
		buf.Write(primitives.PutVarint(nil, uint64(len(c.Children))))
		for _, ch := range c.Children {
			encodeCondition(buf, ch)
		}
	case witness.ConditionScriptHash, witness.ConditionCalledByContract:
		buf.Write(c.ScriptHash[:])
	case witness.ConditionGroup, witness.ConditionCalledByGroup:
		buf.Write(c.Group.Compressed())
	case witness.ConditionCalledByEntry:
		// no payload
	}
}

func decodeCondition(r *bytes.Reader, depth int) (*witness.Condition, error) {
	if depth > witness.MaxConditionDepth {
		return nil, witness.ErrTooDeep
	}
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	c := &witness.Condition{Type: witness.ConditionType(tagByte)}
	switch c.Type {
	case witness.ConditionBoolean:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		c.BooleanValue = b != 0
	case witness.ConditionNot:
		child, err := decodeCondition(r, depth+1)
		if err != nil {
			return nil, err
		}
		c.Not = child
	case witness.ConditionAnd, witness.ConditionOr:
		n, err := primitives.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		if n > witness.MaxConditionChildren {
			return nil, witness.ErrTooManyChildren
		}
		for i := uint64(0); i < n; i++ {
			child, err := decodeCondition(r, depth+1)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
	case witness.ConditionScriptHash, witness.ConditionCalledByContract:
		b := make([]byte, primitives.Uint160Size)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		h, err := primitives.Uint160FromBytes(b)
		if err != nil {
			return nil, err
		}
		c.ScriptHash = h
	case witness.ConditionGroup, witness.ConditionCalledByGroup:
		b := make([]byte, 33)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		pt, err := primitives.DecodeECPoint(b)
		if err != nil {
			return nil, err
		}
		c.Group = pt
	case witness.ConditionCalledByEntry:
		// no payload
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// AttributeType tags a transaction attribute variant.
type AttributeType byte

const (
	AttrConflicts       AttributeType = iota // Conflicts: {conflict_hash}
	AttrNotaryAssisted                        // NotaryAssisted: {n_keys}
	AttrHighPriority                          // HighPriority: {}
)

// Attribute is a transaction attribute. Only the field matching Type is
// meaningful.
type Attribute struct {
	Type         AttributeType
	ConflictHash primitives.Uint256 // AttrConflicts
	NKeys        byte               // AttrNotaryAssisted
}

func (a *Attribute) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(a.Type))
	switch a.Type {
	case AttrConflicts:
		buf.Write(a.ConflictHash[:])
	case AttrNotaryAssisted:
		buf.WriteByte(a.NKeys)
	case AttrHighPriority:
		// no payload
	}
}

func decodeAttribute(r *bytes.Reader) (*Attribute, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	a := &Attribute{Type: AttributeType(tagByte)}
	switch a.Type {
	case AttrConflicts:
		b := make([]byte, primitives.Uint256Size)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		h, err := primitives.Uint256FromBytes(b)
		if err != nil {
			return nil, err
		}
		a.ConflictHash = h
	case AttrNotaryAssisted:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		a.NKeys = b
	case AttrHighPriority:
		// no payload
	}
	return a, nil
}

// Transaction is a Neo-style transaction.
type Transaction struct {
	Version     byte
	Nonce       uint32
	SysFee      int64
	NetFee      int64
	ValidUntil  uint32
	Signers     []*Signer
	Attributes  []*Attribute
	Script      []byte
	Witnesses   []witness.Witness
}

// unsignedBytes encodes the transaction header through script, omitting
// witnesses — the preimage for Hash(): Hash256(header-without-witnesses).
func (tx *Transaction) unsignedBytes() []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(tx.Version)
	binary.Write(buf, binary.LittleEndian, tx.Nonce)
	binary.Write(buf, binary.LittleEndian, tx.SysFee)
	binary.Write(buf, binary.LittleEndian, tx.NetFee)
	binary.Write(buf, binary.LittleEndian, tx.ValidUntil)

	buf.Write(primitives.PutVarint(nil, uint64(len(tx.Signers))))
	for _, s := range tx.Signers {
		s.encode(buf)
	}
	buf.Write(primitives.PutVarint(nil, uint64(len(tx.Attributes))))
	for _, a := range tx.Attributes {
		a.encode(buf)
	}
	buf.Write(primitives.PutVarBytes(nil, tx.Script))
	return buf.Bytes()
}

// Hash computes the transaction's identity hash.
func (tx *Transaction) Hash() primitives.Uint256 {
	return primitives.Hash256(tx.unsignedBytes())
}

// Encode serializes the full transaction to its wire format.
func (tx *Transaction) Encode() []byte {
	buf := bytes.NewBuffer(tx.unsignedBytes())
	buf.Write(primitives.PutVarint(nil, uint64(len(tx.Witnesses))))
	for _, w := range tx.Witnesses {
		buf.Write(primitives.PutVarBytes(nil, w.InvocationScript))
		buf.Write(primitives.PutVarBytes(nil, w.VerificationScript))
	}
	return buf.Bytes()
}

// DecodeTransaction parses a transaction from its wire format.
func DecodeTransaction(data []byte) (*Transaction, error) {
	r := bytes.NewReader(data)
	return decodeTransaction(r)
}

func decodeTransaction(r *bytes.Reader) (*Transaction, error) {
	tx := &Transaction{}
	var err error
	if tx.Version, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &tx.Nonce); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &tx.SysFee); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &tx.NetFee); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.LittleEndian, &tx.ValidUntil); err != nil {
		return nil, err
	}

	nSigners, err := primitives.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nSigners; i++ {
		s, err := decodeSigner(r)
		if err != nil {
			return nil, err
		}
		tx.Signers = append(tx.Signers, s)
	}

	nAttrs, err := primitives.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nAttrs; i++ {
		a, err := decodeAttribute(r)
		if err != nil {
			return nil, err
		}
		tx.Attributes = append(tx.Attributes, a)
	}

	script, err := primitives.ReadVarBytes(r, 64*1024)
	if err != nil {
		return nil, err
	}
	tx.Script = script

	nWitnesses, err := primitives.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nWitnesses; i++ {
		inv, err := primitives.ReadVarBytes(r, 64*1024)
		if err != nil {
			return nil, err
		}
		ver, err := primitives.ReadVarBytes(r, 64*1024)
		if err != nil {
			return nil, err
		}
		tx.Witnesses = append(tx.Witnesses, witness.Witness{InvocationScript: inv, VerificationScript: ver})
	}
	return tx, nil
}

// Conflicts returns the set of transaction hashes this transaction declares
// via Conflicts attributes.
func (tx *Transaction) Conflicts() []primitives.Uint256 {
	var out []primitives.Uint256
	for _, a := range tx.Attributes {
		if a.Type == AttrConflicts {
			out = append(out, a.ConflictHash)
		}
	}
	return out
}

// Header is a block header.
type Header struct {
	Version        uint32
	PrevHash       primitives.Uint256
	MerkleRoot     primitives.Uint256
	TimestampMs    uint64
	Nonce          uint64
	Index          uint32
	PrimaryIndex   byte
	NextConsensus  primitives.Uint160
	Witness        witness.Witness
}

// unsignedBytes encodes the header through next_consensus, the preimage
// for Hash().
func (h *Header) unsignedBytes() []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, h.Version)
	buf.Write(h.PrevHash[:])
	buf.Write(h.MerkleRoot[:])
	binary.Write(buf, binary.LittleEndian, h.TimestampMs)
	binary.Write(buf, binary.LittleEndian, h.Nonce)
	binary.Write(buf, binary.LittleEndian, h.Index)
	buf.WriteByte(h.PrimaryIndex)
	buf.Write(h.NextConsensus[:])
	return buf.Bytes()
}

// Hash computes the block header's identity hash:
// `Hash256(B.header_unsigned) = B.hash`.
func (h *Header) Hash() primitives.Uint256 {
	return primitives.Hash256(h.unsignedBytes())
}

// Encode serializes the header with its single BFT-multisig witness.
func (h *Header) Encode() []byte {
	buf := bytes.NewBuffer(h.unsignedBytes())
	buf.Write(primitives.PutVarint(nil, 1)) // witness_count=1
	buf.Write(primitives.PutVarBytes(nil, h.Witness.InvocationScript))
	buf.Write(primitives.PutVarBytes(nil, h.Witness.VerificationScript))
	return buf.Bytes()
}

func decodeHeader(r *bytes.Reader) (*Header, error) {
	h := &Header{}
	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return nil, err
	}
	prevB := make([]byte, primitives.Uint256Size)
	if _, err := io.ReadFull(r, prevB); err != nil {
		return nil, err
	}
	prev, err := primitives.Uint256FromBytes(prevB)
	if err != nil {
		return nil, err
	}
	h.PrevHash = prev

	rootB := make([]byte, primitives.Uint256Size)
	if _, err := io.ReadFull(r, rootB); err != nil {
		return nil, err
	}
	root, err := primitives.Uint256FromBytes(rootB)
	if err != nil {
		return nil, err
	}
	h.MerkleRoot = root

	if err := binary.Read(r, binary.LittleEndian, &h.TimestampMs); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Nonce); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Index); err != nil {
		return nil, err
	}
	primaryIdx, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	h.PrimaryIndex = primaryIdx

	ncB := make([]byte, primitives.Uint160Size)
	if _, err := io.ReadFull(r, ncB); err != nil {
		return nil, err
	}
	nc, err := primitives.Uint160FromBytes(ncB)
	if err != nil {
		return nil, err
	}
	h.NextConsensus = nc

	witnessCount, err := primitives.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	if witnessCount != 1 {
		return nil, ErrMalformedHeader
	}
	inv, err := primitives.ReadVarBytes(r, 64*1024)
	if err != nil {
		return nil, err
	}
	ver, err := primitives.ReadVarBytes(r, 64*1024)
	if err != nil {
		return nil, err
	}
	h.Witness = witness.Witness{InvocationScript: inv, VerificationScript: ver}
	return h, nil
}

// Block is a header plus its transactions.
type Block struct {
	Header       *Header
	Transactions []*Transaction
}

// ComputeMerkleRoot derives the header's merkle-root field from the
// block's transaction hashes: SHA256∘SHA256 of the tx hashes as a Merkle
// tree.
func (b *Block) ComputeMerkleRoot() primitives.Uint256 {
	hashes := make([]primitives.Uint256, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return merkle.TxRoot(hashes)
}

// Encode serializes the full block to its wire format.
func (b *Block) Encode() []byte {
	buf := bytes.NewBuffer(b.Header.Encode())
	buf.Write(primitives.PutVarint(nil, uint64(len(b.Transactions))))
	for _, tx := range b.Transactions {
		buf.Write(tx.Encode())
	}
	return buf.Bytes()
}

// DecodeBlock parses a block from its wire format.
func DecodeBlock(data []byte) (*Block, error) {
	r := bytes.NewReader(data)
	h, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	nTx, err := primitives.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	b := &Block{Header: h}
	for i := uint64(0); i < nTx; i++ {
		tx, err := decodeTransaction(r)
		if err != nil {
			return nil, err
		}
		b.Transactions = append(b.Transactions, tx)
	}
	return b, nil
}

// TrimmedBlock is the on-disk block payload: header plus transaction
// hashes only.
type TrimmedBlock struct {
	Header   *Header
	TxHashes []primitives.Uint256
}

// Trim reduces a full Block to its TrimmedBlock form.
func (b *Block) Trim() *TrimmedBlock {
	hashes := make([]primitives.Uint256, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return &TrimmedBlock{Header: b.Header, TxHashes: hashes}
}

// Encode serializes a TrimmedBlock: header followed by a varint-prefixed
// list of 32-byte transaction hashes.
func (tb *TrimmedBlock) Encode() []byte {
	buf := bytes.NewBuffer(tb.Header.Encode())
	buf.Write(primitives.PutVarint(nil, uint64(len(tb.TxHashes))))
	for _, h := range tb.TxHashes {
		buf.Write(h[:])
	}
	return buf.Bytes()
}

// DecodeTrimmedBlock parses a TrimmedBlock from its wire format.
func DecodeTrimmedBlock(data []byte) (*TrimmedBlock, error) {
	r := bytes.NewReader(data)
	h, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	n, err := primitives.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	tb := &TrimmedBlock{Header: h}
	for i := uint64(0); i < n; i++ {
		b := make([]byte, primitives.Uint256Size)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		hh, err := primitives.Uint256FromBytes(b)
		if err != nil {
			return nil, err
		}
		tb.TxHashes = append(tb.TxHashes, hh)
	}
	return tb, nil
}
