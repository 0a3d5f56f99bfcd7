package keys

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SimpleKeyfile stores a private key as 64 hex characters in a file only its
// owner can read.
type SimpleKeyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewSimpleKeyfile returns a SimpleKeyfile backed by keyfile.
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile: keyfile,
	}
}

// CheckFileInfo fails if the keyfile is missing or readable by group or
// others.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("%s is accessible by group or others (%o)", k.keyfile, perm)
	}

	return nil
}

// ReadKey loads the key written by WriteKey.
func (k *SimpleKeyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	return ParsePrivateKeyHex(string(buf))
}

// WriteKey saves key, creating the parent directory if needed.
func (k *SimpleKeyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return os.WriteFile(k.keyfile, []byte(PrivateKeyHex(key)), 0600)
}
