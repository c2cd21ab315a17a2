package network

import "github.com/mosaicnetworks/robot/pkg/peers"

// ConnectionRequest is (PeerKey, PeerAddress, failureCount). It is
// seeded once per non-self federation member at startup, and
// reinserted by the multiplexer on connection termination or by the
// dialer after a failed dial.
type ConnectionRequest struct {
	Key          peers.PeerKey
	Address      peers.PeerAddress
	FailureCount int
}
