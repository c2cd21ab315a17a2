package peers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	rcrypto "github.com/mosaicnetworks/robot/pkg/crypto"
)

func newTestMember(t *testing.T, address string) Member {
	t.Helper()
	priv, err := rcrypto.GenerateKey()
	assert.Nil(t, err)
	return Member{Key: NewPeerKey(&priv.PublicKey), Address: PeerAddress(address)}
}

func TestNewFederationLocalMustBeMember(t *testing.T) {
	assert := assert.New(t)

	a := newTestMember(t, "127.0.0.1:1001")
	b := newTestMember(t, "127.0.0.1:1002")

	_, err := NewFederation([]Member{a, b}, PeerKey("not-a-member"))
	assert.NotNil(err)
}

func TestNewFederationRejectsDuplicateKeys(t *testing.T) {
	a := newTestMember(t, "127.0.0.1:1001")
	dup := a
	dup.Address = "127.0.0.1:1002"

	_, err := NewFederation([]Member{a, dup}, a.Key)
	assert.NotNil(t, err)
}

func TestFederationSelfAndLookup(t *testing.T) {
	assert := assert.New(t)

	a := newTestMember(t, "127.0.0.1:1001")
	b := newTestMember(t, "127.0.0.1:1002")

	f, err := NewFederation([]Member{a, b}, a.Key)
	assert.Nil(err)

	assert.Equal(a, f.Self())

	m, ok := f.Lookup(b.Key)
	assert.True(ok)
	assert.Equal(b, m)

	_, ok = f.Lookup(PeerKey("unknown"))
	assert.False(ok)
}

func TestFederationPeersExcludesSelf(t *testing.T) {
	assert := assert.New(t)

	a := newTestMember(t, "127.0.0.1:1001")
	b := newTestMember(t, "127.0.0.1:1002")
	c := newTestMember(t, "127.0.0.1:1003")

	f, err := NewFederation([]Member{a, b, c}, a.Key)
	assert.Nil(err)

	peers := f.Peers()
	assert.Len(peers, 2)
	for _, p := range peers {
		assert.NotEqual(a.Key, p.Key)
	}
}

func TestFederationQuorumSize(t *testing.T) {
	assert := assert.New(t)

	members := make([]Member, 4)
	for i := range members {
		members[i] = newTestMember(t, "127.0.0.1:100"+string(rune('0'+i)))
	}

	f, err := NewFederation(members, members[0].Key)
	assert.Nil(err)

	// n=4, f=1, quorum = n - f = 3
	assert.Equal(3, f.QuorumSize())
}

func TestPeerKeyPublicKeyRoundTrip(t *testing.T) {
	assert := assert.New(t)

	priv, err := rcrypto.GenerateKey()
	assert.Nil(err)

	key := NewPeerKey(&priv.PublicKey)
	pub, err := key.PublicKey()
	assert.Nil(err)
	assert.Equal(0, priv.PublicKey.X.Cmp(pub.X))
}
