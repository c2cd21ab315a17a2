package network

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/robot/pkg/clock"
	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/transport"
	"github.com/mosaicnetworks/robot/pkg/wire"
)

// InboundQueueSize is the default per-peer inbound queue depth (100
// frames), applied here to the single shared multiplexed stream per
// federation member.
const InboundQueueSize = 100

// Manager owns the three background loops (Dialer, Acceptor,
// Multiplexer) plus one reader task per live connection. Tasks are
// spawned as children of the manager resource; when the manager is
// released, all children are cancelled and awaited.
type Manager struct {
	provider   transport.Provider
	register   *Register
	federation *peers.Federation

	dialQ   *unboundedQueue[ConnectionRequest]
	offerCh chan *transport.Connection

	dialer *Dialer
	accept *Acceptor
	mux    *Multiplexer

	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *logrus.Entry
}

// NewManager builds the connection manager and seeds the dial queue with
// every federation member except self. It does not start the
// background loops; call Start.
func NewManager(provider transport.Provider, federation *peers.Federation, policy RetryPolicy, c clock.Clock, logger *logrus.Entry) *Manager {
	register := NewRegister()
	dialQ := newUnboundedQueue[ConnectionRequest]()
	offerCh := make(chan *transport.Connection, len(federation.Peers())+1)

	m := &Manager{
		provider:   provider,
		register:   register,
		federation: federation,
		dialQ:      dialQ,
		offerCh:    offerCh,
		done:       make(chan struct{}),
		logger:     logger,
	}

	m.dialer = newDialer(provider, register, dialQ, offerCh, policy, c, logger.WithField("component", "dialer"))
	m.accept = newAcceptor(provider, register, federation, offerCh, logger.WithField("component", "acceptor"))
	m.mux = newMultiplexer(register, dialQ, InboundQueueSize*federationSizeHint(federation), logger.WithField("component", "multiplexer"))

	for _, peer := range federation.Peers() {
		dialQ.Push(ConnectionRequest{Key: peer.Key, Address: peer.Address, FailureCount: 0})
	}

	return m
}

func federationSizeHint(f *peers.Federation) int {
	n := f.Len()
	if n < 1 {
		return 1
	}
	return n
}

// Start launches the dialer, acceptor, and the offer-consuming loop that
// hands new connections to the multiplexer.
func (m *Manager) Start() {
	m.wg.Add(3)
	go func() { defer m.wg.Done(); m.dialer.run(m.done) }()
	go func() { defer m.wg.Done(); m.accept.run(m.done) }()
	go func() { defer m.wg.Done(); m.offerLoop() }()
}

func (m *Manager) offerLoop() {
	for {
		select {
		case conn, ok := <-m.offerCh:
			if !ok {
				return
			}
			m.mux.handle(conn, m.done)
		case <-m.done:
			return
		}
	}
}

// Messages returns the shared, sender-tagged inbound stream produced by
// the read multiplexer.
func (m *Manager) Messages() <-chan InboundMessage { return m.mux.Messages() }

// Send frames payload to key's live connection, if any.
func (m *Manager) Send(key peers.PeerKey, v interface{}) error {
	conn, ok := m.register.Get(key)
	if !ok {
		return transport.ErrSendOnClosedConnection
	}
	payload, err := wire.Encode(v)
	if err != nil {
		return err
	}
	if err := conn.Send(payload); err != nil {
		m.register.Deregister(conn)
		return err
	}
	return nil
}

// Peers reports the federation members currently connected.
func (m *Manager) Peers() []peers.PeerKey { return m.register.Keys() }

// Stats is a point-in-time snapshot of the connection manager's counters.
type Stats struct {
	DialAttempts      int64
	MessagesDelivered int64
}

// Stats reports the manager's running counters, for the composition
// root's status surface.
func (m *Manager) Stats() Stats {
	return Stats{
		DialAttempts:      m.dialer.Attempts(),
		MessagesDelivered: m.mux.Delivered(),
	}
}

// Release cancels every background task and closes the transport
// provider (which unblocks the acceptor), then awaits the tasks and the
// reader tasks. A single shutdown token is raced against every
// inbound read: readers observe the token, close their connection,
// deregister, and terminate.
func (m *Manager) Release() {
	m.once.Do(func() {
		close(m.done)
	})
	m.provider.Close()
	m.wg.Wait()
	m.mux.wait()
	m.dialQ.Close()
}
