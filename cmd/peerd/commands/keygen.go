package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nostrpay/peerd/src/config"
	"github.com/nostrpay/peerd/src/crypto/keys"
	"github.com/spf13/cobra"
)

var (
	privKeyFile string
	pubKeyFile  string
)

// NewKeygenCmd produces a KeygenCmd which creates a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

// AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	dataDir := _config.Peerd.DataDir
	cmd.Flags().StringVar(&privKeyFile, "priv", filepath.Join(dataDir, config.DefaultKeyfile), "File where the private key will be written")
	cmd.Flags().StringVar(&pubKeyFile, "pub", filepath.Join(dataDir, "key.pub"), "File where the public key will be written, empty to skip")
}

func keygen(cmd *cobra.Command, args []string) error {
	keyfile := keys.NewSimpleKeyfile(privKeyFile)

	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("a key already lives under: %s", filepath.Dir(privKeyFile))
	}

	key, err := keys.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating key: %s", err)
	}

	if err := keyfile.WriteKey(key); err != nil {
		return fmt.Errorf("writing private key: %s", err)
	}

	pub := keys.PublicKeyHex(&key.PublicKey)

	fmt.Printf("Private key saved to: %s\n", privKeyFile)
	fmt.Printf("Identity: %s\n", pub)

	if pubKeyFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("writing public key: %s", err)
	}

	if err := os.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
		return fmt.Errorf("writing public key: %s", err)
	}

	fmt.Printf("Public key saved to: %s\n", pubKeyFile)

	return nil
}
