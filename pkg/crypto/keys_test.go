package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarshalUnmarshalPublicKeyRoundTrip(t *testing.T) {
	assert := assert.New(t)

	priv, err := GenerateKey()
	assert.Nil(err)

	raw := MarshalPublicKey(&priv.PublicKey)
	assert.NotEmpty(raw)

	pub, err := UnmarshalPublicKey(raw)
	assert.Nil(err)
	assert.Equal(0, priv.PublicKey.X.Cmp(pub.X))
	assert.Equal(0, priv.PublicKey.Y.Cmp(pub.Y))
}

func TestMarshalUnmarshalPrivateKeyRoundTrip(t *testing.T) {
	assert := assert.New(t)

	priv, err := GenerateKey()
	assert.Nil(err)

	raw := MarshalPrivateKey(priv)
	recovered, err := UnmarshalPrivateKey(raw)
	assert.Nil(err)

	assert.Equal(0, priv.D.Cmp(recovered.D))
	assert.Equal(0, priv.PublicKey.X.Cmp(recovered.PublicKey.X))
	assert.Equal(0, priv.PublicKey.Y.Cmp(recovered.PublicKey.Y))
}

func TestUnmarshalPublicKeyRejectsGarbage(t *testing.T) {
	_, err := UnmarshalPublicKey([]byte{0x01, 0x02, 0x03})
	assert.NotNil(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	assert := assert.New(t)

	priv, err := GenerateKey()
	assert.Nil(err)

	hash := SHA256([]byte("a block worth signing"))
	r, s, err := Sign(priv, hash)
	assert.Nil(err)
	assert.True(Verify(&priv.PublicKey, hash, r, s))

	otherHash := SHA256([]byte("a different block"))
	assert.False(Verify(&priv.PublicKey, otherHash, r, s))
}
