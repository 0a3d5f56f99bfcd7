// Package keys implements the public key cryptography of peerd.
//
// An agent owns a secp256k1 key-pair. Its identity on the event network is the
// x-only form of the public key, encoded as 64 lowercase hexadecimal
// characters. Records are signed with BIP-340 schnorr signatures, and the
// payment-setup exchange is encrypted with a key derived by ECDH between the
// two parties (NIP-04).
//
// The Keyring type bundles a private key with these operations so that other
// packages can treat signing and encryption as opaque primitives.
package keys
