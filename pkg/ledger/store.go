package ledger

import (
	"encoding/binary"

	"github.com/ironvale-labs/neocore/pkg/primitives"
	"github.com/ironvale-labs/neocore/pkg/storage"
)

// Storage layout prefixes.
const (
	PrefixBlockHash    byte = 0x09
	PrefixBlock        byte = 0x05
	PrefixTransaction  byte = 0x0B
	PrefixCurrentBlock byte = 0x0C
)

// MaxMaxTraceableBlocks is the Policy contract's ceiling on
// max_traceable_blocks.
const MaxMaxTraceableBlocks uint32 = 2102400

func blockHashKey(index uint32) []byte {
	key := make([]byte, 1+4)
	key[0] = PrefixBlockHash
	binary.LittleEndian.PutUint32(key[1:], index)
	return key
}

func blockKey(hash primitives.Uint256) []byte {
	key := make([]byte, 1+primitives.Uint256Size)
	key[0] = PrefixBlock
	copy(key[1:], hash[:])
	return key
}

func txKey(hash primitives.Uint256) []byte {
	key := make([]byte, 1+primitives.Uint256Size)
	key[0] = PrefixTransaction
	copy(key[1:], hash[:])
	return key
}

func conflictSignerKey(conflictHash primitives.Uint256, signer primitives.Uint160) []byte {
	suffix := ConflictStubKey(conflictHash, signer)
	key := make([]byte, 1+len(suffix))
	key[0] = PrefixTransaction
	copy(key[1:], suffix)
	return key
}

var currentBlockKey = []byte{PrefixCurrentBlock}

// CurrentBlock is the value at PREFIX_CURRENT_BLOCK.
type CurrentBlock struct {
	Hash  primitives.Uint256
	Index uint32
}

func (c *CurrentBlock) encode() []byte {
	out := make([]byte, primitives.Uint256Size+4)
	copy(out, c.Hash[:])
	binary.LittleEndian.PutUint32(out[primitives.Uint256Size:], c.Index)
	return out
}

func decodeCurrentBlock(b []byte) (*CurrentBlock, error) {
	if len(b) != primitives.Uint256Size+4 {
		return nil, ErrMalformedRecord
	}
	hash, err := primitives.Uint256FromBytes(b[:primitives.Uint256Size])
	if err != nil {
		return nil, err
	}
	return &CurrentBlock{
		Hash:  hash,
		Index: binary.LittleEndian.Uint32(b[primitives.Uint256Size:]),
	}, nil
}

// PolicyReader resolves max_traceable_blocks from the Policy contract, when
// one is wired in; LedgerStore falls back to static settings when it
// returns ok=false or value 0.
type PolicyReader interface {
	GetMaxTraceableBlocks(snap storage.Snapshot) (value uint32, ok bool)
}

// TraceabilitySettings is the static fallback for max_traceable_blocks and
// the Echidna hardfork activation test.
type TraceabilitySettings struct {
	MaxTraceableBlocks   uint32
	EchidnaActive        func(height uint32) bool
}

// LedgerStore is the native ledger contract: block/transaction persistence,
// the traceability window, and conflict-stub admission.
//
// CONCURRENCY: the ledger's storage backend is the single shared resource
// under a single-writer/many-reader policy. LedgerStore itself holds no
// lock; callers on the write path (on-persist/post-persist) must be
// serialized by the block executor, and readers must use a Snapshot
// captured before the writer's commit barrier.
type LedgerStore struct {
	kv       storage.Store
	settings TraceabilitySettings
	policy   PolicyReader // may be nil
}

// NewLedgerStore constructs a LedgerStore over kv.
func NewLedgerStore(kv storage.Store, settings TraceabilitySettings, policy PolicyReader) *LedgerStore {
	return &LedgerStore{kv: kv, settings: settings, policy: policy}
}

// maxTraceableBlocks resolves the effective traceability window, applying
// the Echidna-hardfork Policy-contract override and falling back to the
// static setting when the policy read is unavailable or zero.
func (s *LedgerStore) maxTraceableBlocks(snap storage.Snapshot, currentIndex uint32) uint32 {
	value := s.settings.MaxTraceableBlocks
	echidna := s.settings.EchidnaActive != nil && s.settings.EchidnaActive(currentIndex)
	if echidna && s.policy != nil {
		if v, ok := s.policy.GetMaxTraceableBlocks(snap); ok && v != 0 {
			value = v
		}
	}
	if value == 0 {
		value = s.settings.MaxTraceableBlocks
	}
	if value > MaxMaxTraceableBlocks {
		value = MaxMaxTraceableBlocks
	}
	if value < 1 {
		value = 1
	}
	return value
}

// IsTraceable implements `is_traceable(current, target, max) ⇔ target ≤
// current ∧ target + max > current`.
func IsTraceable(current, target, max uint32) bool {
	return target <= current && uint64(target)+uint64(max) > uint64(current)
}

// ====== queries (read-only; through a snapshot, per §5) ======

// CurrentHash returns the hash of the most recently persisted block.
func (s *LedgerStore) CurrentHash(snap storage.Snapshot) (primitives.Uint256, error) {
	cb, err := s.currentBlock(snap)
	if err != nil {
		return primitives.Uint256{}, err
	}
	return cb.Hash, nil
}

// CurrentIndex returns the height of the most recently persisted block.
func (s *LedgerStore) CurrentIndex(snap storage.Snapshot) (uint32, error) {
	cb, err := s.currentBlock(snap)
	if err != nil {
		return 0, err
	}
	return cb.Index, nil
}

func (s *LedgerStore) currentBlock(snap storage.Snapshot) (*CurrentBlock, error) {
	b, err := snap.TryGet(currentBlockKey)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNoCurrentBlock
	}
	return decodeCurrentBlock(b)
}

// GetBlockByHash returns the TrimmedBlock stored at hash, or
// (nil, ErrUnknownBlock).
func (s *LedgerStore) GetBlockByHash(snap storage.Snapshot, hash primitives.Uint256) (*TrimmedBlock, error) {
	b, err := snap.TryGet(blockKey(hash))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrUnknownBlock
	}
	return DecodeTrimmedBlock(b)
}

// GetBlockByIndex returns the TrimmedBlock stored at index, or
// (nil, ErrUnknownBlock).
func (s *LedgerStore) GetBlockByIndex(snap storage.Snapshot, index uint32) (*TrimmedBlock, error) {
	hb, err := snap.TryGet(blockHashKey(index))
	if err != nil {
		return nil, err
	}
	if hb == nil {
		return nil, ErrUnknownBlock
	}
	hash, err := primitives.Uint256FromBytes(hb)
	if err != nil {
		return nil, err
	}
	return s.GetBlockByHash(snap, hash)
}

// ContainsBlock reports whether hash names a persisted block.
func (s *LedgerStore) ContainsBlock(snap storage.Snapshot, hash primitives.Uint256) (bool, error) {
	b, err := snap.TryGet(blockKey(hash))
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// readTransactionRecord fetches and decodes the record at txKey(hash), or
// returns (nil, nil) if absent.
func (s *LedgerStore) readTransactionRecord(snap storage.Snapshot, hash primitives.Uint256) (*TransactionStateRecord, error) {
	b, err := snap.TryGet(txKey(hash))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return DecodeTransactionStateRecord(b)
}

// GetTransaction returns the Full transaction at hash, applying the
// traceability window.
func (s *LedgerStore) GetTransaction(snap storage.Snapshot, hash primitives.Uint256) (*Transaction, error) {
	current, err := s.CurrentIndex(snap)
	if err != nil {
		return nil, err
	}
	rec, err := s.readTransactionRecord(snap, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.IsConflictStub {
		return nil, ErrUnknownTransaction
	}
	max := s.maxTraceableBlocks(snap, current)
	if !IsTraceable(current, rec.BlockIndex, max) {
		return nil, ErrUnknownTransaction
	}
	return rec.Transaction, nil
}

// GetTransactionHeight returns the block index a transaction was persisted
// in, applying the traceability window.
func (s *LedgerStore) GetTransactionHeight(snap storage.Snapshot, hash primitives.Uint256) (uint32, error) {
	tx, err := s.transactionRecordWithinWindow(snap, hash)
	if err != nil {
		return 0, err
	}
	return tx.BlockIndex, nil
}

// GetTransactionVMState returns the VM execution outcome for hash, 0
// (VMStateUnknown) if the transaction is unknown or untraceable.
func (s *LedgerStore) GetTransactionVMState(snap storage.Snapshot, hash primitives.Uint256) (VMState, error) {
	rec, err := s.transactionRecordWithinWindow(snap, hash)
	if err == ErrUnknownTransaction {
		return VMStateUnknown, nil
	}
	if err != nil {
		return VMStateUnknown, err
	}
	return rec.VMState, nil
}

func (s *LedgerStore) transactionRecordWithinWindow(snap storage.Snapshot, hash primitives.Uint256) (*TransactionStateRecord, error) {
	current, err := s.CurrentIndex(snap)
	if err != nil {
		return nil, err
	}
	rec, err := s.readTransactionRecord(snap, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.IsConflictStub {
		return nil, ErrUnknownTransaction
	}
	max := s.maxTraceableBlocks(snap, current)
	if !IsTraceable(current, rec.BlockIndex, max) {
		return nil, ErrUnknownTransaction
	}
	return rec, nil
}

// ContainsTransaction reports whether hash names a traceable Full
// transaction record.
func (s *LedgerStore) ContainsTransaction(snap storage.Snapshot, hash primitives.Uint256) (bool, error) {
	_, err := s.transactionRecordWithinWindow(snap, hash)
	if err == ErrUnknownTransaction {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ====== conflict-stub / admission ======

// hasConflictStub reports whether a ConflictStub at key is present and
// currently traceable.
func (s *LedgerStore) hasConflictStub(snap storage.Snapshot, key []byte, current, max uint32) (bool, error) {
	b, err := snap.TryGet(key)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}
	rec, err := DecodeTransactionStateRecord(b)
	if err != nil {
		return false, err
	}
	if !rec.IsConflictStub {
		return false, nil
	}
	return IsTraceable(current, rec.BlockIndex, max), nil
}

// IsAdmissible implements the duplicate/conflict admission rule: a
// transaction T with signer set S and hash H is admissible iff (i) no Full
// record at H exists within the window AND (ii) no
// ConflictStub at H exists in the window declared by a transaction whose
// signers overlap S.
func (s *LedgerStore) IsAdmissible(snap storage.Snapshot, hash primitives.Uint256, signers []primitives.Uint160) (bool, error) {
	current, err := s.CurrentIndex(snap)
	if err != nil {
		if err == ErrNoCurrentBlock {
			current = 0
		} else {
			return false, err
		}
	}
	max := s.maxTraceableBlocks(snap, current)

	rec, err := s.readTransactionRecord(snap, hash)
	if err != nil {
		return false, err
	}
	if rec != nil && !rec.IsConflictStub && IsTraceable(current, rec.BlockIndex, max) {
		return false, nil
	}

	if len(signers) == 0 {
		return true, nil
	}
	own, err := s.hasConflictStub(snap, txKey(hash), current, max)
	if err != nil {
		return false, err
	}
	if !own {
		return true, nil
	}
	for _, signer := range signers {
		hit, err := s.hasConflictStub(snap, conflictSignerKey(hash, signer), current, max)
		if err != nil {
			return false, err
		}
		if hit {
			return false, nil
		}
	}
	return true, nil
}

// ====== on-persist / post-persist ======

// OnPersist implements the on-persist hook, called once per block before
// transactions execute against user scripts.
func (s *LedgerStore) OnPersist(batch *storage.Batch, block *Block) error {
	hash := block.Header.Hash()
	batch.Put(blockHashKey(block.Header.Index), hash[:])
	batch.Put(blockKey(hash), block.Trim().Encode())

	for _, tx := range block.Transactions {
		txHash := tx.Hash()
		rec := NewFullRecord(tx, block.Header.Index)
		batch.Put(txKey(txHash), rec.Encode())

		for _, conflictHash := range tx.Conflicts() {
			stub := NewConflictStub(block.Header.Index)
			batch.Put(txKey(conflictHash), stub.Encode())
			for _, signer := range tx.Signers {
				batch.Put(conflictSignerKey(conflictHash, signer.Account), stub.Encode())
			}
		}
	}
	return nil
}

// VMStateUpdate is one accumulated vm_state overwrite to apply in the
// post-persist hook, in execution order.
type VMStateUpdate struct {
	TxHash  primitives.Uint256
	VMState VMState
}

// PostPersist implements the post-persist hook: updates
// PREFIX_CURRENT_BLOCK and applies accumulated VM-state updates in-order,
// overwriting only the vm_state byte of each Full record.
func (s *LedgerStore) PostPersist(snap storage.Snapshot, batch *storage.Batch, block *Block, updates []VMStateUpdate) error {
	hash := block.Header.Hash()
	cb := &CurrentBlock{Hash: hash, Index: block.Header.Index}
	batch.Put(currentBlockKey, cb.encode())

	for _, u := range updates {
		b, err := snap.TryGet(txKey(u.TxHash))
		if err != nil {
			return err
		}
		if b == nil {
			continue
		}
		rec, err := DecodeTransactionStateRecord(b)
		if err != nil {
			return err
		}
		if rec.IsConflictStub {
			continue
		}
		rec.VMState = u.VMState
		batch.Put(txKey(u.TxHash), rec.Encode())
	}
	return nil
}

// Persist runs the on-persist hook, commits it, then runs the post-persist
// hook against a fresh snapshot and commits that — modeling the two
// distinct commit points around transaction execution (before, and after).
// updates carries the VM-state results accumulated while executing block's
// transactions; that execution happens outside this package, against an
// external VM.
func (s *LedgerStore) Persist(block *Block, updates []VMStateUpdate) error {
	onPersistBatch := storage.NewBatch()
	if err := s.OnPersist(onPersistBatch, block); err != nil {
		return err
	}
	if err := s.kv.Commit(onPersistBatch); err != nil {
		return err
	}

	snap := s.kv.Snapshot()
	postPersistBatch := storage.NewBatch()
	if err := s.PostPersist(snap, postPersistBatch, block, updates); err != nil {
		return err
	}
	return s.kv.Commit(postPersistBatch)
}

// Snapshot returns a read-only view over the current store state, for
// query methods.
func (s *LedgerStore) Snapshot() storage.Snapshot {
	return s.kv.Snapshot()
}
