package network

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/transport"
)

// InboundMessage tags a decoded frame with its sender.
type InboundMessage struct {
	From    peers.PeerKey
	Payload []byte
}

// Multiplexer is the read multiplexer: it pumps every live connection's
// inbound frames into one shared, ordered-per-peer stream, and
// re-queues a dial request when a connection terminates.
type Multiplexer struct {
	register *Register
	inbound  chan InboundMessage
	dialQ    *unboundedQueue[ConnectionRequest]
	logger   *logrus.Entry

	delivered int64

	wg sync.WaitGroup
}

// Delivered reports the total number of frames handed to Messages so far,
// for Manager.Stats.
func (m *Multiplexer) Delivered() int64 {
	return atomic.LoadInt64(&m.delivered)
}

func newMultiplexer(register *Register, dialQ *unboundedQueue[ConnectionRequest], bufSize int, logger *logrus.Entry) *Multiplexer {
	return &Multiplexer{
		register: register,
		inbound:  make(chan InboundMessage, bufSize),
		dialQ:    dialQ,
		logger:   logger,
	}
}

// Messages returns the shared inbound stream.
func (m *Multiplexer) Messages() <-chan InboundMessage { return m.inbound }

// handle spawns the reader task for conn. It returns immediately; the
// reader runs until conn errors, closes, or done fires.
func (m *Multiplexer) handle(conn *transport.Connection, done <-chan struct{}) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.readLoop(conn, done)
	}()
}

func (m *Multiplexer) readLoop(conn *transport.Connection, done <-chan struct{}) {
	type readResult struct {
		payload []byte
		err     error
	}

	for {
		resultCh := make(chan readResult, 1)
		go func() {
			payload, err := conn.Receive()
			resultCh <- readResult{payload, err}
		}()

		select {
		case <-done:
			conn.Close()
			m.register.Deregister(conn)
			return

		case res := <-resultCh:
			if res.err != nil {
				m.terminate(conn, res.err)
				return
			}

			msg := InboundMessage{From: conn.RemoteKey, Payload: res.payload}
			select {
			case m.inbound <- msg:
				atomic.AddInt64(&m.delivered, 1)
			case <-done:
				conn.Close()
				m.register.Deregister(conn)
				return
			}
		}
	}
}

func (m *Multiplexer) terminate(conn *transport.Connection, err error) {
	if errors.Is(err, io.EOF) {
		m.logger.WithField("peer", conn.RemoteKey.String()).Debug("connection closed by remote")
	} else {
		// A decode error or unexpected read error is surfaced once, then
		// treated the same as an ordinary close.
		m.logger.WithField("peer", conn.RemoteKey.String()).WithError(err).Warn("connection terminated")
	}

	conn.Close()
	m.register.Deregister(conn)

	m.dialQ.Push(ConnectionRequest{
		Key:          conn.RemoteKey,
		Address:      conn.RemoteAddress,
		FailureCount: 0,
	})
}

// wait blocks until every spawned reader task has exited.
func (m *Multiplexer) wait() { m.wg.Wait() }
