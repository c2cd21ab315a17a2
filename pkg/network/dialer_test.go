package network

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/mosaicnetworks/robot/pkg/clock"
	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/transport"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestRetryPolicyDelayGrowsExponentiallyAndCaps(t *testing.T) {
	assert := assert.New(t)
	p := RetryPolicy{Initial: 500 * time.Millisecond, Factor: 2, Max: 5 * time.Second}

	assert.Equal(time.Second, p.delay(0))
	assert.Equal(2*time.Second, p.delay(1))
	assert.Equal(4*time.Second, p.delay(2))
	assert.Equal(5*time.Second, p.delay(3)) // would be 8s uncapped
}

func TestDialerRegistersOnSuccessAndOffers(t *testing.T) {
	assert := assert.New(t)

	register := NewRegister()
	dialQ := newUnboundedQueue[ConnectionRequest]()
	offerCh := make(chan *transport.Connection, 1)
	provider := newFakeProvider(peers.PeerKey("self"), peers.PeerAddress("self:0"))

	d := newDialer(provider, register, dialQ, offerCh, DefaultRetryPolicy(), clock.NewFake(), discardLogger())
	done := make(chan struct{})
	go d.run(done)
	defer close(done)

	key := peers.PeerKey("peer-a")
	dialQ.Push(ConnectionRequest{Key: key, Address: "peer-a:1234"})

	select {
	case conn := <-offerCh:
		assert.Equal(key, conn.RemoteKey)
	case <-time.After(2 * time.Second):
		t.Fatal("dialer never offered a connection")
	}

	got, ok := register.Get(key)
	assert.True(ok)
	assert.NotNil(got)
}

func TestDialerSkipsRequestForAlreadyLivePeer(t *testing.T) {
	assert := assert.New(t)

	register := NewRegister()
	dialQ := newUnboundedQueue[ConnectionRequest]()
	offerCh := make(chan *transport.Connection, 1)
	provider := newFakeProvider(peers.PeerKey("self"), peers.PeerAddress("self:0"))

	key := peers.PeerKey("peer-a")
	existing := transport.NewTestConnection(key)
	register.RegisterIfAbsent(existing)

	d := newDialer(provider, register, dialQ, offerCh, DefaultRetryPolicy(), clock.NewFake(), discardLogger())
	done := make(chan struct{})
	go d.run(done)
	defer close(done)

	dialQ.Push(ConnectionRequest{Key: key, Address: "peer-a:1234"})

	select {
	case <-offerCh:
		t.Fatal("dialer should not have redialed an already-live peer")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(0, provider.dialCount(key))
}

func TestDialerSchedulesRetryWithBackoffOnFailure(t *testing.T) {
	assert := assert.New(t)

	register := NewRegister()
	dialQ := newUnboundedQueue[ConnectionRequest]()
	offerCh := make(chan *transport.Connection, 1)
	provider := newFakeProvider(peers.PeerKey("self"), peers.PeerAddress("self:0"))

	key := peers.PeerKey("peer-a")
	provider.setUnreachable(key, true)

	fc := clock.NewFake()
	policy := RetryPolicy{Initial: time.Second, Factor: 2, Max: time.Minute}
	d := newDialer(provider, register, dialQ, offerCh, policy, fc, discardLogger())
	done := make(chan struct{})
	go d.run(done)
	defer close(done)

	dialQ.Push(ConnectionRequest{Key: key, Address: "peer-a:1234"})

	assert.Eventually(func() bool { return provider.dialCount(key) == 1 }, time.Second, 5*time.Millisecond)

	fc.Advance(2 * time.Second)

	provider.setUnreachable(key, false)

	select {
	case conn := <-offerCh:
		assert.Equal(key, conn.RemoteKey)
	case <-time.After(2 * time.Second):
		t.Fatal("dialer never retried after backoff elapsed")
	}
	assert.GreaterOrEqual(provider.dialCount(key), 2)
}

func TestDialerGlareClosesLoserAndKeepsIncumbent(t *testing.T) {
	assert := assert.New(t)

	register := NewRegister()
	dialQ := newUnboundedQueue[ConnectionRequest]()
	offerCh := make(chan *transport.Connection, 1)
	provider := newFakeProvider(peers.PeerKey("self"), peers.PeerAddress("self:0"))

	key := peers.PeerKey("peer-a")
	incumbent := transport.NewTestConnection(key)
	register.RegisterIfAbsent(incumbent)

	d := newDialer(provider, register, dialQ, offerCh, DefaultRetryPolicy(), clock.NewFake(), discardLogger())
	done := make(chan struct{})
	go d.run(done)
	defer close(done)

	dialQ.Push(ConnectionRequest{Key: key, Address: "peer-a:1234"})

	select {
	case <-offerCh:
		t.Fatal("dialer should not offer a connection for a peer already registered")
	case <-time.After(200 * time.Millisecond):
	}

	got, ok := register.Get(key)
	assert.True(ok)
	assert.Same(incumbent, got)
}
