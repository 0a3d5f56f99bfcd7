package keys

import (
	"crypto/ecdsa"
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
)

// Keyring holds the private key of the local agent and implements the
// cryptographic primitives the protocol layer consumes: record signing,
// shared key derivation, encryption and decryption.
type Keyring struct {
	sk  string
	pub string

	l      sync.Mutex
	shared map[string][]byte
}

// NewKeyring wraps a private key.
func NewKeyring(key *ecdsa.PrivateKey) *Keyring {
	return &Keyring{
		sk:     PrivateKeyHex(key),
		pub:    PublicKeyHex(&key.PublicKey),
		shared: make(map[string][]byte),
	}
}

// GenerateKeyring creates a Keyring around a fresh key.
func GenerateKeyring() (*Keyring, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewKeyring(key), nil
}

// PublicKey returns the identity of the key owner.
func (k *Keyring) PublicKey() string {
	return k.pub
}

// Sign sets the author, id and signature of ev.
func (k *Keyring) Sign(ev *nostr.Event) error {
	ev.PubKey = k.pub
	return ev.Sign(k.sk)
}

// SharedKey derives the symmetric key shared with peer. Keys are memoised per
// peer since the derivation involves a scalar multiplication.
func (k *Keyring) SharedKey(peer string) ([]byte, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if key, ok := k.shared[peer]; ok {
		return key, nil
	}

	key, err := nip04.ComputeSharedSecret(peer, k.sk)
	if err != nil {
		return nil, err
	}
	k.shared[peer] = key

	return key, nil
}

// Encrypt encrypts plaintext for peer.
func (k *Keyring) Encrypt(peer string, plaintext string) (string, error) {
	key, err := k.SharedKey(peer)
	if err != nil {
		return "", err
	}
	return Encrypt(key, plaintext)
}

// Decrypt decrypts a ciphertext sent by peer.
func (k *Keyring) Decrypt(peer string, ciphertext string) (string, error) {
	key, err := k.SharedKey(peer)
	if err != nil {
		return "", err
	}
	return Decrypt(key, ciphertext)
}

// Encrypt encrypts plaintext under a shared key.
func Encrypt(key []byte, plaintext string) (string, error) {
	return nip04.Encrypt(plaintext, key)
}

// Decrypt reverses Encrypt. It fails on tampered or foreign ciphertexts.
func Decrypt(key []byte, ciphertext string) (string, error) {
	return nip04.Decrypt(ciphertext, key)
}

// Verify checks that the id of ev matches its content and that the signature
// was produced by its author.
func Verify(ev *nostr.Event) bool {
	if ev.ID != ev.GetID() {
		return false
	}
	ok, err := ev.CheckSignature()
	return err == nil && ok
}
