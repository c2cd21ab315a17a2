package crypto

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssueEphemeralCertificateLeafKeyMatches(t *testing.T) {
	assert := assert.New(t)

	priv, err := GenerateKey()
	assert.Nil(err)

	cert, err := IssueEphemeralCertificate(priv)
	assert.Nil(err)
	assert.Len(cert.Certificate, 1)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	assert.Nil(err)

	pub, err := LeafPublicKey(leaf)
	assert.Nil(err)
	assert.Equal(0, priv.PublicKey.X.Cmp(pub.X))
	assert.Equal(0, priv.PublicKey.Y.Cmp(pub.Y))
}
