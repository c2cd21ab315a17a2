package store

import (
	"encoding/hex"

	rcrypto "github.com/mosaicnetworks/robot/pkg/crypto"
	"github.com/mosaicnetworks/robot/pkg/wire"
)

// HashSize is the width of a content hash (SHA-256).
const HashSize = 32

// Hash is a content-addressed block identifier. The zero value
// represents "no parent" (used by the genesis block's ParentHash).
type Hash [HashSize]byte

// String renders h as a hex string.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// Block is (parentHash, postStateHash, command). Identity is its
// content hash.
type Block struct {
	ParentHash    Hash
	PostStateHash Hash
	Command       []byte
}

type blockWire struct {
	ParentHash    [HashSize]byte
	PostStateHash [HashSize]byte
	Command       []byte
}

// Marshal serializes b for storage and hashing.
func (b Block) Marshal() ([]byte, error) {
	return wire.Encode(blockWire{ParentHash: b.ParentHash, PostStateHash: b.PostStateHash, Command: b.Command})
}

// Unmarshal decodes a payload produced by Marshal.
func (b *Block) Unmarshal(data []byte) error {
	var w blockWire
	if err := wire.Decode(data, &w); err != nil {
		return err
	}
	b.ParentHash = w.ParentHash
	b.PostStateHash = w.PostStateHash
	b.Command = w.Command
	return nil
}

// Hash computes the content-addressed identity of b.
func (b Block) Hash() (Hash, error) {
	raw, err := b.Marshal()
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], rcrypto.SHA256(raw))
	return h, nil
}

// NewGenesisBlock returns the genesis block for a fresh chain: no parent,
// the given initial application state hash, and an empty command.
func NewGenesisBlock(initialStateHash Hash) Block {
	return Block{ParentHash: Hash{}, PostStateHash: initialStateHash, Command: nil}
}
