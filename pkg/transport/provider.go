// Package transport implements the encrypted connection provider:
// mutually authenticated, framed, length-prefixed channels keyed by
// peer public key.
//
// Identity is established with ephemeral self-signed certificates
// pinned to the federation's PeerKeys rather than a certificate
// authority: the federation is a static, known-in-advance set of public
// keys, so there is no CA to verify against.
package transport

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	rcrypto "github.com/mosaicnetworks/robot/pkg/crypto"
	"github.com/mosaicnetworks/robot/pkg/peers"
)

// HandshakeFailure is returned by NextIncoming when an accepted socket
// fails the TLS handshake or presents a malformed identity.
type HandshakeFailure struct{ Err error }

func (h *HandshakeFailure) Error() string { return fmt.Sprintf("transport: handshake failed: %v", h.Err) }

// IncomingResult carries either an authenticated Connection or a
// HandshakeFailure.
type IncomingResult struct {
	Conn *Connection
	Err  error // non-nil implies *HandshakeFailure
}

// Provider is the encrypted connection provider's contract.
type Provider interface {
	// ConnectTo dials address, authenticating that the remote holds the
	// private key matching key. It fails if that proof cannot be made.
	ConnectTo(key peers.PeerKey, address peers.PeerAddress) (*Connection, error)

	// NextIncoming blocks for the next accepted connection. It returns
	// ok=false once the provider has been shut down.
	NextIncoming() (result IncomingResult, ok bool)

	// LocalInfo returns this node's own key and advertised address.
	LocalInfo() (peers.PeerKey, peers.PeerAddress)

	Close() error
}

// TLSProvider is the Provider implementation used in production.
type TLSProvider struct {
	localKey  peers.PeerKey
	localAddr peers.PeerAddress
	priv      *ecdsa.PrivateKey

	listener net.Listener
	incoming chan IncomingResult
	logger   *logrus.Entry

	closed chan struct{}
}

// NewTLSProvider binds a listener at bindAddr and returns a Provider whose
// local identity is derived from priv.
func NewTLSProvider(bindAddr string, advertiseAddr peers.PeerAddress, priv *ecdsa.PrivateKey, logger *logrus.Entry) (*TLSProvider, error) {
	cert, err := rcrypto.IssueEphemeralCertificate(priv)
	if err != nil {
		return nil, fmt.Errorf("transport: issuing certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates:          []tls.Certificate{cert},
		ClientAuth:             tls.RequireAnyClientCert,
		InsecureSkipVerify:     true, // no CA: identity is pinned by public key, checked explicitly below
		VerifyPeerCertificate:  verifyPresentsSingleLeaf,
		MinVersion:             tls.VersionTLS12,
	}

	ln, err := tls.Listen("tcp", bindAddr, cfg)
	if err != nil {
		return nil, err
	}

	p := &TLSProvider{
		localKey:  peers.NewPeerKey(&priv.PublicKey),
		localAddr: advertiseAddr,
		priv:      priv,
		listener:  ln,
		incoming:  make(chan IncomingResult, 16),
		logger:    logger,
		closed:    make(chan struct{}),
	}

	go p.acceptLoop()

	return p, nil
}

func (p *TLSProvider) acceptLoop() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.closed:
				close(p.incoming)
				return
			default:
			}
			p.logger.WithError(err).Warn("accept failed")
			continue
		}
		go p.handleAccepted(conn)
	}
}

func (p *TLSProvider) handleAccepted(conn net.Conn) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		conn.Close()
		return
	}

	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		p.deliver(IncomingResult{Err: &HandshakeFailure{Err: err}})
		return
	}

	remoteKey, err := remoteKeyOf(tlsConn)
	if err != nil {
		conn.Close()
		p.deliver(IncomingResult{Err: &HandshakeFailure{Err: err}})
		return
	}

	// The server address advertised to the rest of the system is filled in
	// by the acceptor loop from the federation table, not from the
	// socket's ephemeral remote address.
	c := newConnection(tlsConn, remoteKey, "", Incoming)
	p.deliver(IncomingResult{Conn: c})
}

func (p *TLSProvider) deliver(r IncomingResult) {
	select {
	case p.incoming <- r:
	case <-p.closed:
	}
}

// ConnectTo implements Provider.
func (p *TLSProvider) ConnectTo(key peers.PeerKey, address peers.PeerAddress) (*Connection, error) {
	wantPub, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("transport: invalid target key: %w", err)
	}

	cert, err := rcrypto.IssueEphemeralCertificate(p.priv)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates:          []tls.Certificate{cert},
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyPresentsExpectedKey(wantPub),
		MinVersion:            tls.VersionTLS12,
	}

	rawConn, err := tls.Dial("tcp", string(address), cfg)
	if err != nil {
		return nil, err
	}

	return newConnection(rawConn, key, address, Outgoing), nil
}

// NextIncoming implements Provider.
func (p *TLSProvider) NextIncoming() (IncomingResult, bool) {
	r, ok := <-p.incoming
	return r, ok
}

// LocalInfo implements Provider.
func (p *TLSProvider) LocalInfo() (peers.PeerKey, peers.PeerAddress) {
	return p.localKey, p.localAddr
}

// ListenAddr returns the listener's actual bound address, useful when
// bindAddr was given with an ephemeral port (":0").
func (p *TLSProvider) ListenAddr() string {
	return p.listener.Addr().String()
}

// Close shuts the provider down; NextIncoming then returns ok=false once
// drained.
func (p *TLSProvider) Close() error {
	select {
	case <-p.closed:
		return nil
	default:
		close(p.closed)
	}
	return p.listener.Close()
}

// verifyPresentsSingleLeaf is used on the server side, where the expected
// identity isn't known yet: it only enforces that exactly one well-formed
// ECDSA certificate was presented. Federation membership is checked
// upstream by the acceptor loop.
func verifyPresentsSingleLeaf(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	leaf, err := parseSingleLeaf(rawCerts)
	if err != nil {
		return err
	}
	if _, err := rcrypto.LeafPublicKey(leaf); err != nil {
		return err
	}
	return nil
}

// verifyPresentsExpectedKey is used on the client side: it additionally
// pins the presented leaf's public key to the key the caller intended to
// dial, which is how ConnectTo proves remote possession of the matching
// private key.
func verifyPresentsExpectedKey(want *ecdsa.PublicKey) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		leaf, err := parseSingleLeaf(rawCerts)
		if err != nil {
			return err
		}
		got, err := rcrypto.LeafPublicKey(leaf)
		if err != nil {
			return err
		}
		if got.X.Cmp(want.X) != 0 || got.Y.Cmp(want.Y) != 0 {
			return fmt.Errorf("transport: server presented an unexpected public key")
		}
		return nil
	}
}

func parseSingleLeaf(rawCerts [][]byte) (*x509.Certificate, error) {
	if len(rawCerts) != 1 {
		return nil, fmt.Errorf("transport: expected exactly one certificate, got %d", len(rawCerts))
	}
	return x509.ParseCertificate(rawCerts[0])
}

func remoteKeyOf(conn *tls.Conn) (peers.PeerKey, error) {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) != 1 {
		return "", fmt.Errorf("transport: expected exactly one peer certificate")
	}
	pub, err := rcrypto.LeafPublicKey(state.PeerCertificates[0])
	if err != nil {
		return "", err
	}
	return peers.NewPeerKey(pub), nil
}
