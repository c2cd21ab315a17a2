// Package crypto provides the node key pair primitives used to derive a
// PeerKey and to authenticate the encrypted transport.
//
// Keys live on the secp256k1 curve: it is also the curve used by
// Bitcoin and Ethereum, and btcec gives us a pure-Go implementation.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// Curve returns the elliptic curve that node keys are generated on.
func Curve() elliptic.Curve {
	return btcec.S256()
}

// GenerateKey creates a fresh ECDSA private key on Curve().
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(Curve(), rand.Reader)
}

// SHA256 hashes b.
func SHA256(b []byte) []byte {
	h := sha256.New()
	h.Write(b)
	return h.Sum(nil)
}

// MarshalPublicKey returns the uncompressed point encoding of pub. This is
// the deterministic binary encoding used as a PeerKey.
func MarshalPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// UnmarshalPublicKey parses the encoding produced by MarshalPublicKey.
func UnmarshalPublicKey(data []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.Unmarshal(Curve(), data)
	if x == nil {
		return nil, fmt.Errorf("crypto: invalid public key encoding")
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}, nil
}

// UnmarshalPrivateKey parses the big-endian scalar encoding of a private
// key on Curve(), deriving the matching public key.
func UnmarshalPrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = Curve()
	priv.D = new(big.Int).SetBytes(data)
	priv.PublicKey.X, priv.PublicKey.Y = Curve().ScalarBaseMult(data)
	return priv, nil
}

// MarshalPrivateKey returns the big-endian scalar encoding of priv.
func MarshalPrivateKey(priv *ecdsa.PrivateKey) []byte {
	return priv.D.Bytes()
}

// Sign produces an (r, s) signature of hash under priv.
func Sign(priv *ecdsa.PrivateKey, hash []byte) (r, s *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, priv, hash)
}

// Verify checks an (r, s) signature of hash under pub.
func Verify(pub *ecdsa.PublicKey, hash []byte, r, s *big.Int) bool {
	return ecdsa.Verify(pub, hash, r, s)
}
