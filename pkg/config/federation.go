package config

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/mosaicnetworks/robot/pkg/crypto"
	"github.com/mosaicnetworks/robot/pkg/peers"
)

// BuildFederation parses network.nodes into a peers.Federation, resolving
// the local node's private key either from the configured privateKey
// field or, if empty, from the on-disk PEM key under the node's data
// directory (generating one on first run).
func (c *Config) BuildFederation() (*peers.Federation, error) {
	members := make([]peers.Member, len(c.Network.Nodes))

	for i, n := range c.Network.Nodes {
		pubRaw, err := hex.DecodeString(trim0x(n.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("config: node %d: invalid publicKey: %w", i, err)
		}
		pub, err := crypto.UnmarshalPublicKey(pubRaw)
		if err != nil {
			return nil, fmt.Errorf("config: node %d: invalid publicKey: %w", i, err)
		}

		member := peers.Member{
			Key:     peers.NewPeerKey(pub),
			Address: peers.PeerAddress(n.Address),
		}

		if i == c.NodeIndex {
			priv, err := c.localPrivateKey(n)
			if err != nil {
				return nil, err
			}
			member.PrivateKey = priv
		}

		members[i] = member
	}

	return peers.NewFederation(members, members[c.NodeIndex].Key)
}

func (c *Config) localPrivateKey(n NodeEntry) (*ecdsa.PrivateKey, error) {
	if n.PrivateKey != "" {
		raw, err := hex.DecodeString(trim0x(n.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("config: invalid privateKey: %w", err)
		}
		return crypto.UnmarshalPrivateKey(raw)
	}
	return crypto.LoadOrGenerate(c.NodeDataDir())
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
