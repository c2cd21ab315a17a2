package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"
)

// IssueEphemeralCertificate creates a short-lived, self-signed X.509
// certificate binding key's public key to the running process. The
// transport provider (pkg/transport) presents this certificate during the
// TLS handshake; the peer validates it against the PeerKey it expects
// rather than against a certificate authority, since the federation has
// no CA.
func IssueEphemeralCertificate(key *ecdsa.PrivateKey) (tls.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "robot-node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}, nil
}

// LeafPublicKey extracts the ECDSA public key bound to a peer certificate
// as presented during the handshake.
func LeafPublicKey(cert *x509.Certificate) (*ecdsa.PublicKey, error) {
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errNotECDSA
	}
	return pub, nil
}

var errNotECDSA = &certError{"crypto: certificate does not carry an ECDSA public key"}

type certError struct{ msg string }

func (e *certError) Error() string { return e.msg }
