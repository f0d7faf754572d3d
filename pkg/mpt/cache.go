package mpt

import (
	"bytes"
	"sync"

	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// Store is the key-value backend the trie's cache writes through to.
type Store interface {
	TryGet(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// CachePrefix namespaces trie node keys within the shared store: nodes are
// addressed by CachePrefix || hash.
const CachePrefix = 0xf0

// Cache is a write-through, reference-counted cache in front of a Store. A
// node's stored record is `varint(refcount) || canonical_encoding`;
// put_node increments the refcount (creating it at 1), delete_node
// decrements it and only deletes the record once it reaches zero (unless
// fullState is requested by the caller, which retains every node forever).
type Cache struct {
	store   Store
	mu      sync.Mutex
	writes  map[string][]byte
	deletes map[string]bool
}

// NewCache constructs a Cache over store.
func NewCache(store Store) *Cache {
	return &Cache{
		store:   store,
		writes:  make(map[string][]byte),
		deletes: make(map[string]bool),
	}
}

func cacheKey(hash primitives.Uint256) []byte {
	key := make([]byte, 1+primitives.Uint256Size)
	key[0] = CachePrefix
	copy(key[1:], hash[:])
	return key
}

func (c *Cache) rawGet(hash primitives.Uint256) ([]byte, error) {
	k := string(cacheKey(hash))
	c.mu.Lock()
	if v, ok := c.writes[k]; ok {
		c.mu.Unlock()
		return v, nil
	}
	if c.deletes[k] {
		c.mu.Unlock()
		return nil, nil
	}
	c.mu.Unlock()
	return c.store.TryGet(cacheKey(hash))
}

// PutNode upserts node's canonical encoding, incrementing its refcount.
// Empty and Hash nodes are not persisted.
func (c *Cache) PutNode(n *Node) error {
	if n.IsEmpty() || n.Type == NodeHash {
		return nil
	}
	h := n.Hash()
	existing, err := c.rawGet(h)
	if err != nil {
		return err
	}
	refcount := uint64(0)
	if existing != nil {
		r := bytes.NewReader(existing)
		refcount, err = primitives.ReadVarint(r)
		if err != nil {
			return err
		}
	}
	refcount++
	buf := primitives.PutVarint(nil, refcount)
	buf = append(buf, n.Encode()...)

	c.mu.Lock()
	k := string(cacheKey(h))
	c.writes[k] = buf
	delete(c.deletes, k)
	c.mu.Unlock()
	return nil
}

// DeleteNode decrements hash's refcount, removing the record once it
// reaches zero.
func (c *Cache) DeleteNode(hash primitives.Uint256) error {
	existing, err := c.rawGet(hash)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	r := bytes.NewReader(existing)
	refcount, err := primitives.ReadVarint(r)
	if err != nil {
		return err
	}
	k := string(cacheKey(hash))
	if refcount <= 1 {
		c.mu.Lock()
		delete(c.writes, k)
		c.deletes[k] = true
		c.mu.Unlock()
		return nil
	}
	tail := make([]byte, r.Len())
	_, _ = r.Read(tail)
	buf := primitives.PutVarint(nil, refcount-1)
	buf = append(buf, tail...)

	c.mu.Lock()
	c.writes[k] = buf
	c.mu.Unlock()
	return nil
}

// Resolve fetches and decodes the node addressed by hash, or returns
// (nil, nil) if absent. Children of the decoded node are Hash nodes, left
// for the caller to resolve further on demand.
func (c *Cache) Resolve(hash primitives.Uint256) (*Node, error) {
	raw, err := c.rawGet(hash)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	r := bytes.NewReader(raw)
	if _, err := primitives.ReadVarint(r); err != nil {
		return nil, err
	}
	rest := make([]byte, r.Len())
	_, _ = r.Read(rest)
	return decodeNode(rest)
}

// Commit flushes the pending writeset and deleteset to the underlying
// store. Pre-commit reads already observe the writeset (via rawGet), so
// commit only needs to make it durable.
func (c *Cache) Commit() error {
	c.mu.Lock()
	writes := c.writes
	deletes := c.deletes
	c.writes = make(map[string][]byte)
	c.deletes = make(map[string]bool)
	c.mu.Unlock()

	for k, v := range writes {
		if err := c.store.Put([]byte(k), v); err != nil {
			return err
		}
	}
	for k := range deletes {
		if err := c.store.Delete([]byte(k)); err != nil {
			return err
		}
	}
	return nil
}

func decodeNode(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, ErrMalformedNode
	}
	tag, rest := data[0], data[1:]
	switch tag {
	case tagLeaf:
		r := bytes.NewReader(rest)
		vlen, err := primitives.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		value := make([]byte, vlen)
		if _, err := r.Read(value); err != nil && vlen > 0 {
			return nil, ErrMalformedNode
		}
		return newLeafNode(value), nil
	case tagExtension:
		r := bytes.NewReader(rest)
		klen, err := primitives.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		packed := make([]byte, (klen+1)/2)
		if len(packed) > 0 {
			if _, err := r.Read(packed); err != nil {
				return nil, ErrMalformedNode
			}
		}
		key := unpackNibbles(packed, int(klen))
		childHashBytes := make([]byte, primitives.Uint256Size)
		if _, err := r.Read(childHashBytes); err != nil {
			return nil, ErrMalformedNode
		}
		childHash, err := primitives.Uint256FromBytes(childHashBytes)
		if err != nil {
			return nil, err
		}
		return newExtensionNode(key, newHashNode(childHash)), nil
	case tagBranch:
		branch := newBranchNode()
		pos := 0
		for i := 0; i < BranchChildCount; i++ {
			if pos >= len(rest) {
				return nil, ErrMalformedNode
			}
			if rest[pos] == 0x00 {
				branch.Children[i] = newEmptyNode()
				pos++
				continue
			}
			if pos+primitives.Uint256Size > len(rest) {
				return nil, ErrMalformedNode
			}
			h, err := primitives.Uint256FromBytes(rest[pos : pos+primitives.Uint256Size])
			if err != nil {
				return nil, err
			}
			branch.Children[i] = newHashNode(h)
			pos += primitives.Uint256Size
		}
		return branch, nil
	default:
		return nil, ErrMalformedNode
	}
}

// memStore is a transient in-memory Store, used by VerifyProof to rebuild a
// trie from a captured proof set without touching the real backend.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) TryGet(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *memStore) Put(key, value []byte) error {
	m.data[string(key)] = value
	return nil
}

func (m *memStore) Delete(key []byte) error {
	delete(m.data, string(key))
	return nil
}
