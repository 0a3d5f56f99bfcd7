package commands

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nostrpay/peerd/src/config"
	"github.com/nostrpay/peerd/src/crypto/keys"
)

func TestKeygen(t *testing.T) {
	dir, err := ioutil.TempDir("", "peerd-keygen")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cmd := NewKeygenCmd()
	cmd.SetArgs([]string{
		"--priv", filepath.Join(dir, config.DefaultKeyfile),
		"--pub", filepath.Join(dir, "key.pub"),
	})

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	key, err := keys.NewSimpleKeyfile(filepath.Join(dir, config.DefaultKeyfile)).ReadKey()
	if err != nil {
		t.Fatal(err)
	}

	pub, err := ioutil.ReadFile(filepath.Join(dir, "key.pub"))
	if err != nil {
		t.Fatal(err)
	}

	if string(pub) != keys.PublicKeyHex(&key.PublicKey) {
		t.Fatalf("public key file does not match private key")
	}

	// A second run refuses to overwrite the key.
	cmd = NewKeygenCmd()
	cmd.SetArgs([]string{
		"--priv", filepath.Join(dir, config.DefaultKeyfile),
		"--pub", filepath.Join(dir, "key.pub"),
	})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err = cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "already") {
		t.Fatalf("expected existing key error, got %v", err)
	}
}
