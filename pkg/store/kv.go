// Package store implements the block store, the view state store, and
// the bounded state ring: the persistent, content-addressed, crash-safe
// data plane of a consensus node.
//
// One Badger database per node, namespaced by a key prefix per logical
// collection, all mutation routed through Badger transactions so every
// call commits as a single atomic batch.
package store

import (
	"os"

	"github.com/dgraph-io/badger"
)

// namespace is the byte tag prefixing every key in a logical collection.
// Readers and writers agree on the tag set statically.
type namespace byte

const (
	nsBlock            namespace = 'B'
	nsBlockToParent    namespace = 'P'
	nsBlockToChildren  namespace = 'C'
	nsState            namespace = 'S'
	nsStateMeta        namespace = 'M'
	nsViewState        namespace = 'V'
)

func nsKey(ns namespace, key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, byte(ns))
	out = append(out, key...)
	return out
}

// DB wraps a Badger handle opened at a per-node directory
// (<db.path>/<nodeIndex>/).
type DB struct {
	badger *badger.DB
	path   string
}

// Open creates the directory if needed and opens (or creates) the Badger
// database rooted there.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true // consensus safety requires durable writes to survive a crash

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &DB{badger: handle, path: path}, nil
}

// Update runs fn inside a single atomic read-write transaction.
func (d *DB) Update(fn func(txn *badger.Txn) error) error {
	return d.badger.Update(fn)
}

// View runs fn inside a read-only, lock-free snapshot transaction.
func (d *DB) View(fn func(txn *badger.Txn) error) error {
	return d.badger.View(fn)
}

// Close releases the underlying Badger handle.
func (d *DB) Close() error {
	return d.badger.Close()
}
