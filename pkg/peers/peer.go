// Package peers implements the federation data model: the static,
// known-to-every-node set of (PeerKey, PeerAddress) pairs, with no
// dynamic membership.
package peers

import (
	"crypto/ecdsa"
	"encoding/hex"

	rcrypto "github.com/mosaicnetworks/robot/pkg/crypto"
)

// PeerKey is the deterministic binary encoding of a peer's public key. It
// is opaque and compared byte-wise.
type PeerKey string

// NewPeerKey derives a PeerKey from an ECDSA public key.
func NewPeerKey(pub *ecdsa.PublicKey) PeerKey {
	return PeerKey(rcrypto.MarshalPublicKey(pub))
}

// PublicKey decodes the PeerKey back into an ECDSA public key.
func (k PeerKey) PublicKey() (*ecdsa.PublicKey, error) {
	return rcrypto.UnmarshalPublicKey([]byte(k))
}

// String renders the PeerKey as a hex string, for logging.
func (k PeerKey) String() string {
	return "0x" + hex.EncodeToString([]byte(k))
}

// PeerAddress is a network endpoint (host:port form is used throughout).
type PeerAddress string

func (a PeerAddress) String() string { return string(a) }

// Member is one (PeerKey, PeerAddress) entry of the federation table. A
// Member optionally carries the local node's private key, present only for
// the entry that corresponds to the running process.
type Member struct {
	Key        PeerKey
	Address    PeerAddress
	PrivateKey *ecdsa.PrivateKey // non-nil only for the local member
}
