package mpt

import (
	"bytes"

	"github.com/ironvale-labs/neocore/pkg/primitives"
)

// Trie is a Merkle Patricia Trie over a Store.
type Trie struct {
	cache     *Cache
	root      *Node
	fullState bool
}

// NewTrie opens a trie against store, starting from root (nil for a fresh
// empty trie). fullState disables refcount-driven garbage collection of
// superseded nodes, for callers that want to keep every historical state
// root reachable ("full state tracking") rather than pruning old nodes.
func NewTrie(store Store, root *primitives.Uint256, fullState bool) *Trie {
	var rootNode *Node
	if root == nil {
		rootNode = newEmptyNode()
	} else {
		rootNode = newHashNode(*root)
	}
	return &Trie{cache: NewCache(store), root: rootNode, fullState: fullState}
}

// RootHash returns the current root hash, or (zero, false) for an empty
// trie.
func (t *Trie) RootHash() (primitives.Uint256, bool) {
	if t.root.IsEmpty() {
		return primitives.Uint256{}, false
	}
	return t.root.Hash(), true
}

// Commit flushes pending cache changes to the underlying store.
func (t *Trie) Commit() error {
	return t.cache.Commit()
}

// Get retrieves the value stored under key, or (nil, nil) if absent.
func (t *Trie) Get(key []byte) ([]byte, error) {
	path, err := ensureLookupKey(key)
	if err != nil {
		return nil, err
	}
	return t.tryGet(&t.root, path)
}

// GetRequired is Get, but returns ErrKeyNotFound instead of a nil value.
func (t *Trie) GetRequired(key []byte) ([]byte, error) {
	v, err := t.Get(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (t *Trie) tryGet(node **Node, path []byte) ([]byte, error) {
	n := *node
	switch n.Type {
	case NodeLeaf:
		if len(path) == 0 {
			return n.Value, nil
		}
		return nil, nil
	case NodeEmpty:
		return nil, nil
	case NodeHash:
		resolved, err := t.cache.Resolve(n.HashValue)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			return nil, ErrMissingNode
		}
		*node = resolved
		return t.tryGet(node, path)
	case NodeBranch:
		if len(path) == 0 {
			return t.tryGet(&n.Children[BranchValueIndex], path)
		}
		idx := path[0]
		return t.tryGet(&n.Children[idx], path[1:])
	case NodeExtension:
		if bytes.HasPrefix(path, n.Key) {
			return t.tryGet(&n.Next, path[len(n.Key):])
		}
		return nil, nil
	}
	return nil, nil
}

// Put inserts or updates the value stored under key.
func (t *Trie) Put(key, value []byte) error {
	path, err := ensureLookupKey(key)
	if err != nil {
		return err
	}
	if err := ensureValueLength(value); err != nil {
		return err
	}
	return t.putInternal(&t.root, path, newLeafNode(value))
}

func (t *Trie) putInternal(node **Node, path []byte, val *Node) error {
	n := *node
	switch n.Type {
	case NodeLeaf:
		if len(path) == 0 {
			if !t.fullState {
				if err := t.cache.DeleteNode(n.Hash()); err != nil {
					return err
				}
			}
			*node = val
			return t.cache.PutNode(val)
		}
		branch := newBranchNode()
		branch.Children[BranchValueIndex] = n
		idx := path[0]
		if err := t.putInternal(&branch.Children[idx], path[1:], val); err != nil {
			return err
		}
		if err := t.cache.PutNode(branch); err != nil {
			return err
		}
		*node = branch
		return nil

	case NodeExtension:
		if bytes.HasPrefix(path, n.Key) {
			oldHash := n.Hash()
			if err := t.putInternal(&n.Next, path[len(n.Key):], val); err != nil {
				return err
			}
			if !t.fullState {
				if err := t.cache.DeleteNode(oldHash); err != nil {
					return err
				}
			}
			n.setDirty()
			return t.cache.PutNode(n)
		}

		prefixLen := commonPrefixLen(n.Key, path)
		oldHash := n.Hash()
		if !t.fullState {
			if err := t.cache.DeleteNode(oldHash); err != nil {
				return err
			}
		}

		prefix := append([]byte(nil), n.Key[:prefixLen]...)
		keyRemain := append([]byte(nil), n.Key[prefixLen:]...)
		pathRemain := append([]byte(nil), path[prefixLen:]...)

		childBranch := newBranchNode()
		nextNode := n.Next

		if len(keyRemain) == 1 {
			childBranch.Children[keyRemain[0]] = nextNode
		} else {
			extChild := newExtensionNode(keyRemain[1:], nextNode)
			if err := t.cache.PutNode(extChild); err != nil {
				return err
			}
			childBranch.Children[keyRemain[0]] = extChild
		}

		if len(pathRemain) == 0 {
			valueChild := newEmptyNode()
			if err := t.putInternal(&valueChild, nil, val); err != nil {
				return err
			}
			childBranch.Children[BranchValueIndex] = valueChild
		} else {
			valueChild := newEmptyNode()
			if err := t.putInternal(&valueChild, pathRemain[1:], val); err != nil {
				return err
			}
			childBranch.Children[pathRemain[0]] = valueChild
		}

		if err := t.cache.PutNode(childBranch); err != nil {
			return err
		}

		if len(prefix) == 0 {
			*node = childBranch
		} else {
			ext := newExtensionNode(prefix, childBranch)
			if err := t.cache.PutNode(ext); err != nil {
				return err
			}
			*node = ext
		}
		return nil

	case NodeBranch:
		oldHash := n.Hash()
		var err error
		if len(path) == 0 {
			err = t.putInternal(&n.Children[BranchValueIndex], path, val)
		} else {
			idx := path[0]
			err = t.putInternal(&n.Children[idx], path[1:], val)
		}
		if err != nil {
			return err
		}
		if !t.fullState {
			if err := t.cache.DeleteNode(oldHash); err != nil {
				return err
			}
		}
		n.setDirty()
		return t.cache.PutNode(n)

	case NodeEmpty:
		if len(path) == 0 {
			*node = val
			return t.cache.PutNode(val)
		}
		if err := t.cache.PutNode(val); err != nil {
			return err
		}
		ext := newExtensionNode(path, val)
		if err := t.cache.PutNode(ext); err != nil {
			return err
		}
		*node = ext
		return nil

	case NodeHash:
		resolved, err := t.cache.Resolve(n.HashValue)
		if err != nil {
			return err
		}
		if resolved == nil {
			return ErrMissingNode
		}
		*node = resolved
		return t.putInternal(node, path, val)
	}
	return nil
}

// Delete removes the entry stored under key. Returns true iff an entry was
// removed.
func (t *Trie) Delete(key []byte) (bool, error) {
	path, err := ensureLookupKey(key)
	if err != nil {
		return false, err
	}
	return t.tryDelete(&t.root, path)
}

func (t *Trie) tryDelete(node **Node, path []byte) (bool, error) {
	n := *node
	switch n.Type {
	case NodeLeaf:
		if len(path) == 0 {
			if !t.fullState {
				if err := t.cache.DeleteNode(n.Hash()); err != nil {
					return false, err
				}
			}
			*node = newEmptyNode()
			return true, nil
		}
		return false, nil

	case NodeExtension:
		if !bytes.HasPrefix(path, n.Key) {
			return false, nil
		}
		oldHash := n.Hash()
		deleted, err := t.tryDelete(&n.Next, path[len(n.Key):])
		if err != nil {
			return false, err
		}
		if !deleted {
			return false, nil
		}
		if !t.fullState {
			if err := t.cache.DeleteNode(oldHash); err != nil {
				return false, err
			}
		}
		if n.Next.IsEmpty() {
			*node = newEmptyNode()
			return true, nil
		}
		if n.Next.Type == NodeExtension {
			if !t.fullState {
				if err := t.cache.DeleteNode(n.Next.Hash()); err != nil {
					return false, err
				}
			}
			merged := append(append([]byte(nil), n.Key...), n.Next.Key...)
			n.Key = merged
			n.Next = n.Next.Next
		}
		n.setDirty()
		if err := t.cache.PutNode(n); err != nil {
			return false, err
		}
		return true, nil

	case NodeBranch:
		oldHash := n.Hash()
		var deleted bool
		var err error
		if len(path) == 0 {
			deleted, err = t.tryDelete(&n.Children[BranchValueIndex], path)
		} else {
			idx := path[0]
			deleted, err = t.tryDelete(&n.Children[idx], path[1:])
		}
		if err != nil {
			return false, err
		}
		if !deleted {
			return false, nil
		}
		if !t.fullState {
			if err := t.cache.DeleteNode(oldHash); err != nil {
				return false, err
			}
		}

		nonEmptyIdx := -1
		count := 0
		for i := 0; i < BranchChildCount; i++ {
			if !n.Children[i].IsEmpty() {
				count++
				if count == 1 {
					nonEmptyIdx = i
				} else {
					break
				}
			}
		}

		if count > 1 {
			n.setDirty()
			if err := t.cache.PutNode(n); err != nil {
				return false, err
			}
			return true, nil
		}
		if count == 0 {
			*node = newEmptyNode()
			return true, nil
		}
		if nonEmptyIdx == BranchValueIndex {
			*node = n.Children[BranchValueIndex]
			return true, nil
		}

		lastChild := n.Children[nonEmptyIdx]
		if lastChild.Type == NodeHash {
			resolved, err := t.cache.Resolve(lastChild.HashValue)
			if err != nil {
				return false, err
			}
			if resolved == nil {
				return false, ErrMissingNode
			}
			lastChild = resolved
		}
		if lastChild.Type == NodeExtension {
			if !t.fullState {
				if err := t.cache.DeleteNode(lastChild.Hash()); err != nil {
					return false, err
				}
			}
			newKey := append([]byte{byte(nonEmptyIdx)}, lastChild.Key...)
			lastChild.Key = newKey
			lastChild.setDirty()
			if err := t.cache.PutNode(lastChild); err != nil {
				return false, err
			}
			*node = lastChild
			return true, nil
		}
		ext := newExtensionNode([]byte{byte(nonEmptyIdx)}, lastChild)
		if err := t.cache.PutNode(ext); err != nil {
			return false, err
		}
		*node = ext
		return true, nil

	case NodeEmpty:
		return false, nil

	case NodeHash:
		resolved, err := t.cache.Resolve(n.HashValue)
		if err != nil {
			return false, err
		}
		if resolved == nil {
			return false, ErrMissingNode
		}
		*node = resolved
		return t.tryDelete(node, path)
	}
	return false, nil
}

// Proof walks to key, collecting the canonical encoding of every visited
// node into a semantic set (order is not meaningful). Returns (nil, nil) if
// key is absent.
func (t *Trie) Proof(key []byte) ([][]byte, error) {
	path, err := ensureLookupKey(key)
	if err != nil {
		return nil, err
	}
	set := make(map[string][]byte)
	ok, err := t.collectProof(&t.root, path, set)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	out := make([][]byte, 0, len(set))
	for _, v := range set {
		out = append(out, v)
	}
	return out, nil
}

func (t *Trie) collectProof(node **Node, path []byte, set map[string][]byte) (bool, error) {
	n := *node
	switch n.Type {
	case NodeLeaf:
		if len(path) != 0 {
			return false, nil
		}
		enc := n.Encode()
		set[string(enc)] = enc
		return true, nil
	case NodeEmpty:
		return false, nil
	case NodeHash:
		resolved, err := t.cache.Resolve(n.HashValue)
		if err != nil {
			return false, err
		}
		if resolved == nil {
			return false, ErrMissingNode
		}
		*node = resolved
		return t.collectProof(node, path, set)
	case NodeBranch:
		enc := n.Encode()
		set[string(enc)] = enc
		if len(path) == 0 {
			return t.collectProof(&n.Children[BranchValueIndex], path, set)
		}
		idx := path[0]
		return t.collectProof(&n.Children[idx], path[1:], set)
	case NodeExtension:
		if !bytes.HasPrefix(path, n.Key) {
			return false, nil
		}
		enc := n.Encode()
		set[string(enc)] = enc
		return t.collectProof(&n.Next, path[len(n.Key):], set)
	}
	return false, nil
}

// VerifyProof rebuilds a transient trie from proof (keyed by Hash256 of
// each element) and issues GetRequired(key) against it opened at root.
func VerifyProof(root primitives.Uint256, key []byte, proof [][]byte) ([]byte, error) {
	store := newMemStore()
	for _, elem := range proof {
		h := primitives.Hash256(elem)
		buf := primitives.PutVarint(nil, 1)
		buf = append(buf, elem...)
		store.data[string(cacheKey(h))] = buf
	}
	trie := NewTrie(store, &root, false)
	return trie.GetRequired(key)
}

// Entry is a key/value pair returned by Find.
type Entry struct {
	Key   []byte
	Value []byte
}

// Find enumerates key/value pairs under prefix in nibble order, optionally
// resuming strictly after from. from, if given, must start with prefix.
func (t *Trie) Find(prefix []byte, from []byte) ([]Entry, error) {
	if from != nil && !bytes.HasPrefix(from, prefix) {
		return nil, ErrFromMustHavePrefix
	}

	path, err := ensurePrefixKey(prefix)
	if err != nil {
		return nil, err
	}
	var fromPath []byte
	if from != nil {
		fromPath, err = ensurePrefixKey(from)
		if err != nil {
			return nil, err
		}
	}

	resolvedPath, start, err := t.seek(&t.root, path)
	if err != nil {
		return nil, err
	}

	offset := 0
	if len(fromPath) > 0 {
		limit := len(resolvedPath)
		if len(fromPath) < limit {
			limit = len(fromPath)
		}
		matched := false
		for i := 0; i < limit; i++ {
			if resolvedPath[i] < fromPath[i] {
				return nil, nil
			}
			if resolvedPath[i] > fromPath[i] {
				offset = len(fromPath)
				matched = true
				break
			}
		}
		if !matched {
			offset = limit
		}
	}

	var results []Entry
	if err := t.traverse(start, resolvedPath, fromPath, offset, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Trie) seek(node **Node, path []byte) ([]byte, *Node, error) {
	n := *node
	switch n.Type {
	case NodeLeaf:
		if len(path) == 0 {
			return nil, n, nil
		}
		return nil, nil, nil
	case NodeEmpty:
		return nil, nil, nil
	case NodeHash:
		resolved, err := t.cache.Resolve(n.HashValue)
		if err != nil {
			return nil, nil, err
		}
		if resolved == nil {
			return nil, nil, ErrMissingNode
		}
		*node = resolved
		return t.seek(node, path)
	case NodeBranch:
		if len(path) == 0 {
			return nil, n, nil
		}
		nibble := path[0]
		suffix, start, err := t.seek(&n.Children[nibble], path[1:])
		if err != nil {
			return nil, nil, err
		}
		if start == nil && len(suffix) == 0 {
			return nil, nil, nil
		}
		result := append([]byte{nibble}, suffix...)
		return result, start, nil
	case NodeExtension:
		if len(path) == 0 {
			return append([]byte(nil), n.Key...), n.Next, nil
		}
		if bytes.HasPrefix(path, n.Key) {
			suffix, start, err := t.seek(&n.Next, path[len(n.Key):])
			if err != nil {
				return nil, nil, err
			}
			result := append(append([]byte(nil), n.Key...), suffix...)
			return result, start, nil
		}
		if bytes.HasPrefix(n.Key, path) {
			return append([]byte(nil), n.Key...), n.Next, nil
		}
		return nil, nil, nil
	}
	return nil, nil, nil
}

func (t *Trie) traverse(node *Node, path []byte, from []byte, offset int, results *[]Entry) error {
	if node == nil {
		return nil
	}
	switch node.Type {
	case NodeLeaf:
		if len(from) <= offset && !bytes.Equal(path, from) {
			key, err := fromNibbles(path)
			if err != nil {
				return err
			}
			*results = append(*results, Entry{Key: key, Value: append([]byte(nil), node.Value...)})
		}
	case NodeEmpty:
	case NodeHash:
		resolved, err := t.cache.Resolve(node.HashValue)
		if err != nil {
			return err
		}
		if resolved == nil {
			return ErrMissingNode
		}
		return t.traverse(resolved, path, from, offset, results)
	case NodeBranch:
		if offset < len(from) {
			for i := 0; i < BranchChildCount-1; i++ {
				nibble := byte(i)
				switch {
				case from[offset] < nibble:
					newPath := append(append([]byte(nil), path...), nibble)
					if err := t.traverse(node.Children[i], newPath, from, len(from), results); err != nil {
						return err
					}
				case from[offset] == nibble:
					newPath := append(append([]byte(nil), path...), nibble)
					if err := t.traverse(node.Children[i], newPath, from, offset+1, results); err != nil {
						return err
					}
				}
			}
		} else {
			if err := t.traverse(node.Children[BranchValueIndex], append([]byte(nil), path...), from, offset, results); err != nil {
				return err
			}
			for i := 0; i < BranchChildCount-1; i++ {
				newPath := append(append([]byte(nil), path...), byte(i))
				if err := t.traverse(node.Children[i], newPath, from, offset, results); err != nil {
					return err
				}
			}
		}
	case NodeExtension:
		newPath := append(append([]byte(nil), path...), node.Key...)
		switch {
		case offset < len(from) && bytes.HasPrefix(from[offset:], node.Key):
			return t.traverse(node.Next, newPath, from, offset+len(node.Key), results)
		case len(from) <= offset || bytes.Compare(node.Key, from[offset:]) > 0:
			return t.traverse(node.Next, newPath, from, len(from), results)
		}
	}
	return nil
}
