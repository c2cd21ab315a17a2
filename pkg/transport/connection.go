package transport

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/wire"
)

// Direction records which side of a Connection originated the dial.
type Direction int

const (
	// Outgoing connections were dialed by this node.
	Outgoing Direction = iota
	// Incoming connections were accepted from a remote dialer.
	Incoming
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// Connection is a bidirectional, encrypted, length-prefixed frame
// channel with an authenticated remote identity.
type Connection struct {
	conn          net.Conn
	r             *bufio.Reader
	w             *bufio.Writer
	writeMu       sync.Mutex
	closeOnce     sync.Once
	closed        chan struct{}
	RemoteKey     peers.PeerKey
	RemoteAddress peers.PeerAddress // the remote's federation-table server address
	Dir           Direction
}

func newConnection(conn net.Conn, remoteKey peers.PeerKey, remoteAddr peers.PeerAddress, dir Direction) *Connection {
	return &Connection{
		conn:          conn,
		r:             bufio.NewReader(conn),
		w:             bufio.NewWriter(conn),
		closed:        make(chan struct{}),
		RemoteKey:     remoteKey,
		RemoteAddress: remoteAddr,
		Dir:           dir,
	}
}

// Send frames and writes payload to the peer. Safe for concurrent callers.
func (c *Connection) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrSendOnClosedConnection
	default:
	}

	if err := wire.WriteFrame(c.w, payload); err != nil {
		return err
	}
	return c.w.Flush()
}

// Receive blocks for the next inbound frame. It returns io.EOF-wrapped
// errors verbatim so the multiplexer can distinguish clean close from
// decode failure.
func (c *Connection) Receive() ([]byte, error) {
	return wire.ReadFrame(c.r)
}

// Close closes the underlying socket. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// ErrSendOnClosedConnection is returned to callers attempting to send on a
// connection that has already been closed.
var ErrSendOnClosedConnection = fmt.Errorf("transport: send on closed connection")

// NewTestConnection returns a Connection backed by an in-memory pipe,
// for tests in other packages that only need a real *Connection's
// identity and close semantics, not a live socket.
func NewTestConnection(key peers.PeerKey) *Connection {
	client, _ := net.Pipe()
	return newConnection(client, key, "", Outgoing)
}

// NewTestConnectionOn wraps an already-established net.Conn (typically
// one half of a net.Pipe) as a Connection, for tests that need to drive
// real frame reads and writes over the other half.
func NewTestConnectionOn(conn net.Conn, key peers.PeerKey) *Connection {
	return newConnection(conn, key, "", Outgoing)
}

// NewTestConnectionPair returns a Connection wrapping one end of an
// in-memory pipe, plus the bare net.Conn for the other end, so a test can
// act as the remote peer without a real socket.
func NewTestConnectionPair(key peers.PeerKey) (conn *Connection, remote net.Conn) {
	server, client := net.Pipe()
	return newConnection(server, key, "", Incoming), client
}
