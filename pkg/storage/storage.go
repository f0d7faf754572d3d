// Copyright 2025 The neocore Authors
//
// Package storage wraps CometBFT's dbm.DB into the key-value backend the
// ledger and the trie share: get/put/delete, read-only snapshot views, and
// atomic batch commit.
package storage

import (
	"errors"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
)

// ErrClosed is returned once a Store has been closed.
var ErrClosed = errors.New("storage: store is closed")

// Store is the backend consumed by pkg/ledger and pkg/mpt.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Snapshot() Snapshot
	Commit(batch *Batch) error
	Close() error
}

// Snapshot is a read-only view of a Store. KVStore's snapshot is not a
// point-in-time copy: its reads go to the live store and do observe writes
// committed after it was taken.
type Snapshot interface {
	TryGet(key []byte) ([]byte, error)
}

// Batch is an in-memory write-set applied atomically by Commit. Deletions
// are staged with Delete; Put always stages a write.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	key     []byte
	value   []byte
	deleted bool
}

// NewBatch returns an empty Batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put stages a key/value write.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Delete stages a key deletion.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), deleted: true})
}

// Len reports the number of staged operations.
func (b *Batch) Len() int { return len(b.ops) }

// KVStore wraps a CometBFT dbm.DB, exposing Store. Grounded on
// pkg/kvdb.KVAdapter's db-wrapping shape, generalized to the
// get/put/delete/snapshot/commit contract.
type KVStore struct {
	mu     sync.RWMutex
	db     dbm.DB
	closed bool
}

// NewKVStore constructs a KVStore over db.
func NewKVStore(db dbm.DB) *KVStore {
	return &KVStore{db: db}
}

func (s *KVStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.db.Get(key)
}

func (s *KVStore) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.SetSync(key, value)
}

func (s *KVStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.DeleteSync(key)
}

// Snapshot returns a read-only view over the store as it stands right now.
// Because KVStore serializes writers behind mu, a snapshot's underlying db
// handle is stable for the lifetime of the read; this is not MVCC, matching
// the single-writer/many-reader policy the ledger itself enforces above this
// layer.
func (s *KVStore) Snapshot() Snapshot {
	return &kvSnapshot{store: s}
}

type kvSnapshot struct {
	store *KVStore
}

func (sn *kvSnapshot) TryGet(key []byte) ([]byte, error) {
	return sn.store.Get(key)
}

// Commit applies batch atomically via the underlying DB's native batch type.
func (s *KVStore) Commit(batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	dbBatch := s.db.NewBatch()
	defer dbBatch.Close()
	for _, op := range batch.ops {
		if op.deleted {
			if err := dbBatch.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := dbBatch.Set(op.key, op.value); err != nil {
			return err
		}
	}
	return dbBatch.WriteSync()
}

func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
