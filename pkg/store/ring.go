package store

import (
	"encoding/binary"
	"sync"

	"github.com/dgraph-io/badger"
)

// StateRing is a fixed-capacity FIFO over (Hash -> StateSnapshot): a
// hash-keyed window persisted in Badger, with in-memory insertion-order
// bookkeeping rebuilt from disk on open.
type StateRing struct {
	db       *DB
	capacity int

	mu      sync.Mutex
	order   []ringEntry // oldest first, len <= capacity
	nextSeq uint64
}

type ringEntry struct {
	seq  uint64
	hash Hash
}

const (
	orderMetaPrefix  = "order:"
	genesisMetaKey   = "genesis"
)

func orderMetaKey(seq uint64) []byte {
	key := make([]byte, 0, len(orderMetaPrefix)+8)
	key = append(key, orderMetaPrefix...)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return append(key, seqBuf[:]...)
}

// NewStateRing opens a StateRing over db, rebuilding its insertion-order
// window from persisted metadata.
func NewStateRing(db *DB, capacity int) (*StateRing, error) {
	r := &StateRing{db: db, capacity: capacity}

	prefix := nsKey(nsStateMeta, []byte(orderMetaPrefix))
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			seq := binary.BigEndian.Uint64(key[len(prefix):])

			var h Hash
			if err := item.Value(func(val []byte) error {
				copy(h[:], val)
				return nil
			}); err != nil {
				return err
			}

			r.order = append(r.order, ringEntry{seq: seq, hash: h})
			if seq+1 > r.nextSeq {
				r.nextSeq = seq + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Put inserts (h, snapshot). If the ring now holds more than capacity
// entries, the oldest insertion is evicted.
func (r *StateRing) Put(h Hash, snapshot []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.nextSeq

	var evict *ringEntry
	if len(r.order) >= r.capacity {
		e := r.order[0]
		evict = &e
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(nsKey(nsState, h[:]), snapshot); err != nil {
			return err
		}
		if err := txn.Set(nsKey(nsStateMeta, orderMetaKey(seq)), h[:]); err != nil {
			return err
		}
		if evict != nil {
			if err := txn.Delete(nsKey(nsState, evict.hash[:])); err != nil {
				return err
			}
			if err := txn.Delete(nsKey(nsStateMeta, orderMetaKey(evict.seq))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.nextSeq++
	if evict != nil {
		r.order = r.order[1:]
	}
	r.order = append(r.order, ringEntry{seq: seq, hash: h})

	return nil
}

// PutGenesis writes the genesis snapshot directly, bypassing the ring so
// it is never evicted.
func (r *StateRing) PutGenesis(h Hash, snapshot []byte) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(nsKey(nsState, h[:]), snapshot); err != nil {
			return err
		}
		return txn.Set(nsKey(nsStateMeta, []byte(genesisMetaKey)), h[:])
	})
}

// Get returns the snapshot stored under h, whether it was written via Put
// or PutGenesis.
func (r *StateRing) Get(h Hash) ([]byte, error) {
	var out []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nsKey(nsState, h[:]))
		if err != nil {
			return NewErr(KeyNotFound, h.String())
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	return out, err
}
