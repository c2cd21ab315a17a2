package store

import (
	"github.com/dgraph-io/badger"
)

// BlockStore is a content-addressed block DAG with parent/children
// indices and descendant-preserving pruning.
type BlockStore struct {
	db *DB
}

// NewBlockStore wraps db.
func NewBlockStore(db *DB) *BlockStore {
	return &BlockStore{db: db}
}

func childKey(parent, child Hash) []byte {
	key := make([]byte, 0, 2*HashSize)
	key = append(key, parent[:]...)
	key = append(key, child[:]...)
	return nsKey(nsBlockToChildren, key)
}

// Put idempotently stores b. A put on an already-stored block is a
// no-op.
func (s *BlockStore) Put(b Block) error {
	h, err := b.Hash()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nsKey(nsBlock, h[:])); err == nil {
			return nil // already stored
		}

		raw, err := b.Marshal()
		if err != nil {
			return err
		}
		if err := txn.Set(nsKey(nsBlock, h[:]), raw); err != nil {
			return err
		}
		if err := txn.Set(nsKey(nsBlockToParent, h[:]), b.ParentHash[:]); err != nil {
			return err
		}
		return txn.Set(childKey(b.ParentHash, h), nil)
	})
}

// Get fetches the block stored under h.
func (s *BlockStore) Get(h Hash) (Block, error) {
	var b Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nsKey(nsBlock, h[:]))
		if err != nil {
			return NewErr(KeyNotFound, h.String())
		}
		var raw []byte
		if err := item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		return b.Unmarshal(raw)
	})
	return b, err
}

// Contains reports whether h is stored.
func (s *BlockStore) Contains(h Hash) bool {
	_, err := s.Get(h)
	return err == nil
}

// PathFromRoot walks parent pointers from h toward the root and returns
// the root-to-h ordered list. It fails with a BrokenChain error if a
// link is missing before reaching a recorded root (a zero parent hash).
func (s *BlockStore) PathFromRoot(h Hash) ([]Hash, error) {
	path := []Hash{h}

	cur := h
	for {
		var parent Hash
		err := s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(nsKey(nsBlockToParent, cur[:]))
			if err != nil {
				return NewErr(BrokenChain, cur.String())
			}
			if err := item.Value(func(val []byte) error {
				copy(parent[:], val)
				return nil
			}); err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		if parent.IsZero() {
			break
		}
		path = append(path, parent)
		cur = parent
	}

	// reverse to root-to-h order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// descendants computes the closure of root over the children index,
// including root itself.
func (s *BlockStore) descendants(txn *badger.Txn, root Hash) (map[Hash]struct{}, error) {
	closure := map[Hash]struct{}{root: {}}
	frontier := []Hash{root}

	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]

		prefix := nsKey(nsBlockToChildren, parent[:])
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var child Hash
			copy(child[:], key[len(prefix):len(prefix)+HashSize])
			if _, seen := closure[child]; !seen {
				closure[child] = struct{}{}
				frontier = append(frontier, child)
			}
		}
		it.Close()
	}

	return closure, nil
}

// PruneNonDescendants deletes every Block/ChildToParent/ParentToChildren
// entry that is not in the descendant closure of newRoot, and severs
// newRoot from its old parent. The whole operation is a single atomic
// Badger transaction, so a crash mid-prune leaves either the old or the
// new root consistent, never a half-pruned tree.
func (s *BlockStore) PruneNonDescendants(newRoot Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		closure, err := s.descendants(txn, newRoot)
		if err != nil {
			return err
		}

		// delete every Block/ChildToParent entry outside the closure
		if err := deleteNonMembers(txn, nsBlock, HashSize, closure); err != nil {
			return err
		}
		if err := deleteNonMembers(txn, nsBlockToParent, HashSize, closure); err != nil {
			return err
		}

		// delete every ParentToChildren bucket whose parent is outside the
		// closure (its children, if any, are already outside too)
		if err := deleteChildIndexForNonMembers(txn, closure); err != nil {
			return err
		}

		// sever newRoot from its old parent: drop the old parent's bucket
		// entirely and clear newRoot's recorded parent
		item, err := txn.Get(nsKey(nsBlockToParent, newRoot[:]))
		if err == nil {
			var oldParent Hash
			if verr := item.Value(func(val []byte) error {
				copy(oldParent[:], val)
				return nil
			}); verr != nil {
				return verr
			}
			if err := deleteChildBucket(txn, oldParent); err != nil {
				return err
			}
		}

		var zero Hash
		return txn.Set(nsKey(nsBlockToParent, newRoot[:]), zero[:])
	})
}

func deleteNonMembers(txn *badger.Txn, ns namespace, keyLen int, keep map[Hash]struct{}) error {
	prefix := []byte{byte(ns)}
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var toDelete [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		var h Hash
		copy(h[:], key[1:1+keyLen])
		if _, ok := keep[h]; !ok {
			toDelete = append(toDelete, key)
		}
	}
	for _, k := range toDelete {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func deleteChildIndexForNonMembers(txn *badger.Txn, keep map[Hash]struct{}) error {
	prefix := []byte{byte(nsBlockToChildren)}
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var toDelete [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		var parent Hash
		copy(parent[:], key[1:1+HashSize])
		if _, ok := keep[parent]; !ok {
			toDelete = append(toDelete, key)
		}
	}
	for _, k := range toDelete {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func deleteChildBucket(txn *badger.Txn, parent Hash) error {
	prefix := nsKey(nsBlockToChildren, parent[:])
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var toDelete [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		toDelete = append(toDelete, it.Item().KeyCopy(nil))
	}
	for _, k := range toDelete {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
