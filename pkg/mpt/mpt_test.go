package mpt

import (
	"bytes"
	"testing"
)

func newTestTrie() (*Trie, *memStore) {
	store := newMemStore()
	return NewTrie(store, nil, false), store
}

func TestPutGetRoundtrip(t *testing.T) {
	trie, _ := newTestTrie()
	if err := trie.Put([]byte("do"), []byte("verb")); err != nil {
		t.Fatal(err)
	}
	v, err := trie.Get([]byte("do"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "verb" {
		t.Fatalf("got %q, want verb", v)
	}
}

func TestPutDeleteGetIsNil(t *testing.T) {
	trie, _ := newTestTrie()
	if err := trie.Put([]byte("dog"), []byte("puppy")); err != nil {
		t.Fatal(err)
	}
	ok, err := trie.Delete([]byte("dog"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected delete to report removal")
	}
	v, err := trie.Get([]byte("dog"))
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("expected nil after delete, got %q", v)
	}
}

func TestPutSameKeyValueIsIdempotentRoot(t *testing.T) {
	trie1, _ := newTestTrie()
	trie1.Put([]byte("k"), []byte("v"))
	trie1.Put([]byte("k"), []byte("v"))
	h1, _ := trie1.RootHash()

	trie2, _ := newTestTrie()
	trie2.Put([]byte("k"), []byte("v"))
	h2, _ := trie2.RootHash()

	if h1 != h2 {
		t.Fatal("repeated put of same (k,v) must not change the root")
	}
}

func TestRootHashOrderIndependent(t *testing.T) {
	pairs := map[string]string{
		"do":   "verb",
		"dog":  "puppy",
		"doge": "coin",
		"cat":  "mew",
	}

	trieA, _ := newTestTrie()
	for _, k := range []string{"do", "dog", "doge", "cat"} {
		trieA.Put([]byte(k), []byte(pairs[k]))
	}
	hA, _ := trieA.RootHash()

	trieB, _ := newTestTrie()
	for _, k := range []string{"cat", "doge", "do", "dog"} {
		trieB.Put([]byte(k), []byte(pairs[k]))
	}
	hB, _ := trieB.RootHash()

	if hA != hB {
		t.Fatal("root hash must not depend on insertion order for the same logical map")
	}
}

func TestProofRoundTrip(t *testing.T) {
	trie, store := newTestTrie()
	trie.Put([]byte("do"), []byte("verb"))
	trie.Put([]byte("dog"), []byte("puppy"))
	trie.Put([]byte("doge"), []byte("coin"))
	if err := trie.Commit(); err != nil {
		t.Fatal(err)
	}
	_ = store

	root, ok := trie.RootHash()
	if !ok {
		t.Fatal("expected non-empty root")
	}

	proof, err := trie.Proof([]byte("dog"))
	if err != nil {
		t.Fatal(err)
	}
	if proof == nil {
		t.Fatal("expected a proof for an existing key")
	}

	val, err := VerifyProof(root, []byte("dog"), proof)
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "puppy" {
		t.Fatalf("got %q, want puppy", val)
	}
}

func TestProofSurvivesLaterMutation(t *testing.T) {
	trie, _ := newTestTrie()
	trie.Put([]byte("do"), []byte("verb"))
	trie.Put([]byte("dog"), []byte("puppy"))
	trie.Put([]byte("doge"), []byte("coin"))
	if err := trie.Commit(); err != nil {
		t.Fatal(err)
	}

	oldRoot, _ := trie.RootHash()
	proof, err := trie.Proof([]byte("dog"))
	if err != nil {
		t.Fatal(err)
	}

	trie.Put([]byte("cat"), []byte("mew"))
	if err := trie.Commit(); err != nil {
		t.Fatal(err)
	}

	val, err := VerifyProof(oldRoot, []byte("dog"), proof)
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "puppy" {
		t.Fatalf("proof captured before mutation must still verify against the old root: got %q", val)
	}
}

func TestProofMissingKeyReturnsNil(t *testing.T) {
	trie, _ := newTestTrie()
	trie.Put([]byte("do"), []byte("verb"))

	proof, err := trie.Proof([]byte("cat"))
	if err != nil {
		t.Fatal(err)
	}
	if proof != nil {
		t.Fatal("expected nil proof for absent key")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	trie, _ := newTestTrie()
	if err := trie.Put(nil, []byte("x")); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestMaxKeyLengthBoundary(t *testing.T) {
	trie, _ := newTestTrie()

	okKey := make([]byte, MaxKeyLength/2) // MaxKeyLength nibbles
	if err := trie.Put(okKey, []byte("v")); err != nil {
		t.Fatalf("key of exactly MaxKeyLength nibbles must be accepted: %v", err)
	}

	tooLong := make([]byte, MaxKeyLength/2+1)
	if err := trie.Put(tooLong, []byte("v")); err != ErrKeyTooLong {
		t.Fatalf("expected ErrKeyTooLong, got %v", err)
	}
}

func TestFindEnumeratesPrefix(t *testing.T) {
	trie, _ := newTestTrie()
	data := map[string]string{
		"aa": "1",
		"ab": "2",
		"ac": "3",
		"bb": "4",
	}
	for k, v := range data {
		trie.Put([]byte(k), []byte(v))
	}

	entries, err := trie.Find([]byte("a"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries under prefix 'a', got %d", len(entries))
	}
	for _, e := range entries {
		if !bytes.HasPrefix(e.Key, []byte("a")) {
			t.Fatalf("entry %q does not have prefix 'a'", e.Key)
		}
	}
}

func TestFindFromMustHavePrefix(t *testing.T) {
	trie, _ := newTestTrie()
	trie.Put([]byte("aa"), []byte("1"))
	_, err := trie.Find([]byte("a"), []byte("zz"))
	if err != ErrFromMustHavePrefix {
		t.Fatalf("expected ErrFromMustHavePrefix, got %v", err)
	}
}

func TestPackUnpackNibblesRoundtrip(t *testing.T) {
	nibbles := []byte{1, 2, 3, 4, 5}
	packed := packNibbles(nibbles)
	got := unpackNibbles(packed, len(nibbles))
	if !bytes.Equal(got, nibbles) {
		t.Fatalf("got %v, want %v", got, nibbles)
	}
}

func TestCacheRefcountKeepsSharedNodeAlive(t *testing.T) {
	trie, _ := newTestTrie()
	// "doge" and "dog" share the "dog" extension path; deleting "doge" must
	// not break "dog"'s lookup.
	trie.Put([]byte("dog"), []byte("puppy"))
	trie.Put([]byte("doge"), []byte("coin"))
	if err := trie.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := trie.Delete([]byte("doge")); err != nil {
		t.Fatal(err)
	}
	if err := trie.Commit(); err != nil {
		t.Fatal(err)
	}
	v, err := trie.Get([]byte("dog"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "puppy" {
		t.Fatalf("expected 'dog' to survive deletion of 'doge', got %q", v)
	}
}
