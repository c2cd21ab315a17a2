package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/transport"
	"github.com/mosaicnetworks/robot/pkg/wire"
)

// pipeConnection builds a *transport.Connection whose other end is a real
// net.Conn the test can write to and close, so the read multiplexer's
// readLoop exercises genuine frame decoding and EOF handling.
func pipeConnection(key peers.PeerKey) (*transport.Connection, net.Conn) {
	server, client := net.Pipe()
	return transport.NewTestConnectionOn(client, key), server
}

func TestMultiplexerDeliversFramesTaggedBySender(t *testing.T) {
	assert := assert.New(t)

	register := NewRegister()
	dialQ := newUnboundedQueue[ConnectionRequest]()
	m := newMultiplexer(register, dialQ, 8, discardLogger())

	key := peers.PeerKey("peer-a")
	conn, remote := pipeConnection(key)
	register.RegisterIfAbsent(conn)

	done := make(chan struct{})
	m.handle(conn, done)

	go func() {
		w := remote
		_ = wire.WriteFrame(w, []byte("hello"))
	}()

	select {
	case msg := <-m.Messages():
		assert.Equal(key, msg.From)
		assert.Equal([]byte("hello"), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("multiplexer never delivered the frame")
	}

	close(done)
	m.wait()
}

func TestMultiplexerRequeuesDialOnRemoteClose(t *testing.T) {
	assert := assert.New(t)

	register := NewRegister()
	dialQ := newUnboundedQueue[ConnectionRequest]()
	m := newMultiplexer(register, dialQ, 8, discardLogger())

	key := peers.PeerKey("peer-a")
	conn, remote := pipeConnection(key)
	conn.RemoteAddress = "peer-a:1234"
	register.RegisterIfAbsent(conn)

	done := make(chan struct{})
	m.handle(conn, done)

	remote.Close()

	req, ok := dialQ.Pop(done)
	assert.True(ok)
	assert.Equal(key, req.Key)
	assert.Equal(peers.PeerAddress("peer-a:1234"), req.Address)
	assert.Equal(0, req.FailureCount)

	_, stillRegistered := register.Get(key)
	assert.False(stillRegistered)

	m.wait()
}

func TestMultiplexerClosesConnectionsOnDone(t *testing.T) {
	assert := assert.New(t)

	register := NewRegister()
	dialQ := newUnboundedQueue[ConnectionRequest]()
	m := newMultiplexer(register, dialQ, 8, discardLogger())

	key := peers.PeerKey("peer-a")
	conn, _ := pipeConnection(key)
	register.RegisterIfAbsent(conn)

	done := make(chan struct{})
	m.handle(conn, done)
	close(done)
	m.wait()

	_, stillRegistered := register.Get(key)
	assert.False(stillRegistered)
}
