package storage

// MPTAdapter narrows a Store down to the TryGet/Put/Delete shape pkg/mpt's
// Cache expects, so the trie and the ledger can share one backend.
type MPTAdapter struct {
	Store Store
}

func (a MPTAdapter) TryGet(key []byte) ([]byte, error) { return a.Store.Get(key) }
func (a MPTAdapter) Put(key, value []byte) error       { return a.Store.Put(key, value) }
func (a MPTAdapter) Delete(key []byte) error            { return a.Store.Delete(key) }
