package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/robot/pkg/crypto"
)

var keyOutDir string

// NewKeygenCmd produces the command that creates a fresh node key pair.
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new node key pair",
		RunE:  keygen,
	}
	cmd.Flags().StringVar(&keyOutDir, "datadir", _config.DataDir, "Directory where the private key will be written")
	return cmd
}

func keygen(cmd *cobra.Command, args []string) error {
	pk := crypto.NewPemKey(keyOutDir)

	if existing, err := pk.ReadKey(); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("a key already lives under: %s", path.Dir(keyOutDir))
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	if err := os.MkdirAll(keyOutDir, 0700); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := pk.WriteKey(key); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	pub := hex.EncodeToString(crypto.MarshalPublicKey(&key.PublicKey))
	fmt.Printf("Private key saved to: %s\n", keyOutDir)
	fmt.Printf("Public key: 0x%s\n", pub)

	return nil
}
