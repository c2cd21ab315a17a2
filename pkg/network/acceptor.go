package network

import (
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/transport"
)

// Acceptor is the acceptor loop: it drains the transport provider's
// incoming-connection stream, rejecting handshake failures and
// connections from unknown peers.
type Acceptor struct {
	provider   transport.Provider
	register   *Register
	federation *peers.Federation
	offerCh    chan<- *transport.Connection
	logger     *logrus.Entry
}

func newAcceptor(provider transport.Provider, register *Register, federation *peers.Federation, offerCh chan<- *transport.Connection, logger *logrus.Entry) *Acceptor {
	return &Acceptor{provider: provider, register: register, federation: federation, offerCh: offerCh, logger: logger}
}

func (a *Acceptor) run(done <-chan struct{}) {
	for {
		result, ok := a.provider.NextIncoming()
		if !ok {
			return
		}

		if result.Err != nil {
			// A failed handshake is dropped silently.
			continue
		}

		conn := result.Conn

		member, known := a.federation.Lookup(conn.RemoteKey)
		if !known {
			a.logger.WithField("peer", conn.RemoteKey.String()).Warn("rejecting connection from unknown peer")
			conn.Close()
			continue
		}

		// The server address is looked up from the federation table, not
		// taken from the socket.
		conn.RemoteAddress = member.Address

		if existing, inserted := a.register.RegisterIfAbsent(conn); !inserted {
			a.logger.WithField("peer", conn.RemoteKey.String()).Debug("glare: incumbent connection wins, closing accepted connection")
			_ = existing
			conn.Close()
			continue
		}

		select {
		case a.offerCh <- conn:
		case <-done:
			return
		}
	}
}
