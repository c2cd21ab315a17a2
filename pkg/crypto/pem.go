package crypto

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const keyFileName = "priv_key.pem"

// PemKey persists a single node private key as a PEM file under a data
// directory.
type PemKey struct {
	mu   sync.Mutex
	path string
}

// NewPemKey returns a PemKey rooted at base.
func NewPemKey(base string) *PemKey {
	return &PemKey{path: filepath.Join(base, keyFileName)}
}

// ReadKey reads the persisted key, returning (nil, nil) if no key file
// exists yet.
func (k *PemKey) ReadKey() (*ecdsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	buf, err := os.ReadFile(k.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(buf) == 0 {
		return nil, nil
	}

	block, _ := pem.Decode(buf)
	if block == nil {
		return nil, fmt.Errorf("crypto: failed to decode PEM block from %s", k.path)
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

// WriteKey persists key, creating the parent directory if necessary.
func (k *PemKey) WriteKey(key *ecdsa.PrivateKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.path), 0755); err != nil {
		return err
	}

	b, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: b}
	return os.WriteFile(k.path, pem.EncodeToMemory(block), 0600)
}

// LoadOrGenerate reads the key at base, generating and persisting a fresh
// one if none exists.
func LoadOrGenerate(base string) (*ecdsa.PrivateKey, error) {
	pk := NewPemKey(base)

	key, err := pk.ReadKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		return key, nil
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := pk.WriteKey(key); err != nil {
		return nil, err
	}
	return key, nil
}
