package network

import (
	"fmt"
	"sync"

	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/transport"
)

// fakeProvider is a transport.Provider test double: ConnectTo succeeds or
// fails according to a scripted set of unreachable peers, and incoming
// connections are delivered by pushing onto a channel, rather than by
// actually accepting sockets.
type fakeProvider struct {
	mu          sync.Mutex
	unreachable map[peers.PeerKey]bool
	dialed      []peers.PeerKey

	incoming chan transport.IncomingResult
	closed   chan struct{}
	once     sync.Once

	localKey  peers.PeerKey
	localAddr peers.PeerAddress
}

func newFakeProvider(localKey peers.PeerKey, localAddr peers.PeerAddress) *fakeProvider {
	return &fakeProvider{
		unreachable: make(map[peers.PeerKey]bool),
		incoming:    make(chan transport.IncomingResult, 16),
		closed:      make(chan struct{}),
		localKey:    localKey,
		localAddr:   localAddr,
	}
}

func (p *fakeProvider) setUnreachable(key peers.PeerKey, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unreachable[key] = v
}

func (p *fakeProvider) ConnectTo(key peers.PeerKey, address peers.PeerAddress) (*transport.Connection, error) {
	p.mu.Lock()
	p.dialed = append(p.dialed, key)
	unreachable := p.unreachable[key]
	p.mu.Unlock()

	if unreachable {
		return nil, fmt.Errorf("fakeProvider: %s unreachable", key)
	}
	return transport.NewTestConnection(key), nil
}

func (p *fakeProvider) deliverIncoming(r transport.IncomingResult) {
	select {
	case p.incoming <- r:
	case <-p.closed:
	}
}

func (p *fakeProvider) NextIncoming() (transport.IncomingResult, bool) {
	select {
	case r, ok := <-p.incoming:
		return r, ok
	case <-p.closed:
		return transport.IncomingResult{}, false
	}
}

func (p *fakeProvider) LocalInfo() (peers.PeerKey, peers.PeerAddress) {
	return p.localKey, p.localAddr
}

func (p *fakeProvider) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakeProvider) dialCount(key peers.PeerKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.dialed {
		if k == key {
			n++
		}
	}
	return n
}
