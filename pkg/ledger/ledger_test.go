package ledger

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/ironvale-labs/neocore/pkg/primitives"
	"github.com/ironvale-labs/neocore/pkg/storage"
	"github.com/ironvale-labs/neocore/pkg/witness"
)

func newTestStore(t *testing.T, maxTraceable uint32) *LedgerStore {
	t.Helper()
	kv := storage.NewKVStore(dbm.NewMemDB())
	settings := TraceabilitySettings{
		MaxTraceableBlocks: maxTraceable,
		EchidnaActive:      func(height uint32) bool { return false },
	}
	return NewLedgerStore(kv, settings, nil)
}

func accountOf(name string) primitives.Uint160 {
	h := primitives.Hash160([]byte(name))
	return h
}

func simpleTx(scriptTag string, signerNames ...string) *Transaction {
	tx := &Transaction{
		Version:    0,
		Nonce:      1,
		ValidUntil: 1000,
		Script:     []byte(scriptTag),
	}
	for _, name := range signerNames {
		tx.Signers = append(tx.Signers, &Signer{Account: accountOf(name), Scopes: ScopeCalledByEntry})
	}
	tx.Witnesses = make([]witness.Witness, len(signerNames))
	return tx
}

func blockAt(index uint32, prev primitives.Uint256, txs ...*Transaction) *Block {
	b := &Block{
		Header: &Header{
			Version:       0,
			PrevHash:      prev,
			TimestampMs:   uint64(index) * 15000,
			Index:         index,
			PrimaryIndex:  0,
			NextConsensus: primitives.Uint160{},
		},
		Transactions: txs,
	}
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	return b
}

func TestPersistAndQueryRoundTrip(t *testing.T) {
	store := newTestStore(t, 100)
	tx := simpleTx("script-a", "alice")
	b := blockAt(1, primitives.Uint256{}, tx)

	if err := store.Persist(b, nil); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	idx, err := store.CurrentIndex(snap)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Fatalf("got index %d, want 1", idx)
	}

	hash, err := store.CurrentHash(snap)
	if err != nil {
		t.Fatal(err)
	}
	if hash != b.Header.Hash() {
		t.Fatal("current hash does not match persisted block's header hash")
	}

	got, err := store.GetBlockByIndex(snap, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.TxHashes) != 1 || got.TxHashes[0] != tx.Hash() {
		t.Fatal("trimmed block tx hashes mismatch")
	}

	present, err := store.ContainsTransaction(snap, tx.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("expected persisted transaction to be traceable")
	}
}

func TestPostPersistAppliesVMStateInOrder(t *testing.T) {
	store := newTestStore(t, 100)
	tx := simpleTx("script-a", "alice")
	b := blockAt(1, primitives.Uint256{}, tx)

	if err := store.Persist(b, []VMStateUpdate{{TxHash: tx.Hash(), VMState: VMStateHalt}}); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	vm, err := store.GetTransactionVMState(snap, tx.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if vm != VMStateHalt {
		t.Fatalf("got vm state %d, want VMStateHalt", vm)
	}
}

func TestBlockHashChainsPrevHash(t *testing.T) {
	store := newTestStore(t, 100)
	b1 := blockAt(1, primitives.Uint256{})
	if err := store.Persist(b1, nil); err != nil {
		t.Fatal(err)
	}
	b2 := blockAt(2, b1.Header.Hash())
	if err := store.Persist(b2, nil); err != nil {
		t.Fatal(err)
	}
	if b2.Header.PrevHash != b1.Header.Hash() {
		t.Fatal("block 2's prev_hash must equal block 1's hash")
	}
}

func TestTraceabilityWindowBoundary(t *testing.T) {
	// IsTraceable(current, target, max) <=> target <= current && target+max > current.
	// At target+max = current+1, traceable; at target+max = current, not.
	if !IsTraceable(10, 5, 6) { // 5+6=11 = 10+1
		t.Fatal("expected traceable at target+max = current+1")
	}
	if IsTraceable(10, 5, 5) { // 5+5=10 = current
		t.Fatal("expected not traceable at target+max = current")
	}
}

func TestConflictRejectionScenario(t *testing.T) {
	// T1 signed by A; T2 with signers {A,B} and Conflicts=[h1] persisted
	// into block 5; resubmitting T1 is rejected while traceable, accepted
	// once the window expires.
	store := newTestStore(t, 3)

	t1 := simpleTx("t1", "alice")
	h1 := t1.Hash()

	t2 := simpleTx("t2", "alice", "bob")
	t2.Attributes = []*Attribute{{Type: AttrConflicts, ConflictHash: h1}}

	var prev primitives.Uint256
	for i := uint32(1); i <= 4; i++ {
		b := blockAt(i, prev)
		if err := store.Persist(b, nil); err != nil {
			t.Fatal(err)
		}
		prev = b.Header.Hash()
	}
	b5 := blockAt(5, prev, t2)
	if err := store.Persist(b5, nil); err != nil {
		t.Fatal(err)
	}
	prev = b5.Header.Hash()

	snap := store.Snapshot()
	admissible, err := store.IsAdmissible(snap, h1, []primitives.Uint160{accountOf("alice")})
	if err != nil {
		t.Fatal(err)
	}
	if admissible {
		t.Fatal("expected T1 to be rejected as conflicting while within the traceability window")
	}

	// Advance to current index 8: the stub is no longer traceable once
	// target(5) + max(3) = 8 <= current (not(target+max > current)).
	for i := uint32(6); i <= 8; i++ {
		b := blockAt(i, prev)
		if err := store.Persist(b, nil); err != nil {
			t.Fatal(err)
		}
		prev = b.Header.Hash()
	}

	snap = store.Snapshot()
	admissible, err = store.IsAdmissible(snap, h1, []primitives.Uint160{accountOf("alice")})
	if err != nil {
		t.Fatal(err)
	}
	if !admissible {
		t.Fatal("expected T1 to be admissible again once the conflict stub's traceability window expired")
	}
}

func TestDuplicateFullRecordRejected(t *testing.T) {
	store := newTestStore(t, 100)
	tx := simpleTx("dup", "alice")
	b := blockAt(1, primitives.Uint256{}, tx)
	if err := store.Persist(b, nil); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	admissible, err := store.IsAdmissible(snap, tx.Hash(), []primitives.Uint160{accountOf("alice")})
	if err != nil {
		t.Fatal(err)
	}
	if admissible {
		t.Fatal("expected a transaction already persisted as a Full record to be inadmissible")
	}
}

func TestTransactionRoundTripSerialization(t *testing.T) {
	tx := simpleTx("roundtrip", "alice", "bob")
	tx.Attributes = []*Attribute{{Type: AttrHighPriority}}
	encoded := tx.Encode()
	decoded, err := DecodeTransaction(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Hash() != tx.Hash() {
		t.Fatal("decoded transaction hash must match original")
	}
}

func TestUnknownBlockBeforeGenesis(t *testing.T) {
	store := newTestStore(t, 100)
	snap := store.Snapshot()
	if _, err := store.GetBlockByIndex(snap, 1); err != ErrNoCurrentBlock && err != ErrUnknownBlock {
		t.Fatalf("expected an error looking up a block before genesis, got %v", err)
	}
}
