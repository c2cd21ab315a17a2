package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockMarshalUnmarshalRoundTrip(t *testing.T) {
	assert := assert.New(t)

	b := Block{ParentHash: Hash{1}, PostStateHash: Hash{2}, Command: []byte("U")}
	raw, err := b.Marshal()
	assert.Nil(err)

	var got Block
	assert.Nil(got.Unmarshal(raw))
	assert.Equal(b, got)
}

func TestBlockHashIsDeterministic(t *testing.T) {
	assert := assert.New(t)

	b := Block{ParentHash: Hash{1}, Command: []byte("U")}
	h1, err := b.Hash()
	assert.Nil(err)
	h2, err := b.Hash()
	assert.Nil(err)
	assert.Equal(h1, h2)
}

func TestBlockHashDiffersOnContent(t *testing.T) {
	assert := assert.New(t)

	a := Block{ParentHash: Hash{1}, Command: []byte("U")}
	b := Block{ParentHash: Hash{1}, Command: []byte("D")}

	ha, err := a.Hash()
	assert.Nil(err)
	hb, err := b.Hash()
	assert.Nil(err)

	assert.NotEqual(ha, hb)
}

func TestNewGenesisBlockHasNoParent(t *testing.T) {
	g := NewGenesisBlock(Hash{7})
	assert.True(t, g.ParentHash.IsZero())
	assert.Equal(t, Hash{7}, g.PostStateHash)
	assert.Empty(t, g.Command)
}

func TestHashStringAndIsZero(t *testing.T) {
	assert := assert.New(t)

	var zero Hash
	assert.True(zero.IsZero())

	nonZero := Hash{1}
	assert.False(nonZero.IsZero())
	assert.Len(nonZero.String(), HashSize*2)
}
