package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// PrivateKeyLength is the number of bytes of a raw private key.
const PrivateKeyLength = 32

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(Curve(), rand.Reader)
}

// DumpPrivateKey returns the 32-byte big-endian scalar of priv.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil || priv.D == nil {
		return nil
	}
	return priv.D.FillBytes(make([]byte, PrivateKeyLength))
}

// ParsePrivateKey rebuilds a private key from its raw scalar. The scalar must
// be in [1, N-1].
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != PrivateKeyLength {
		return nil, fmt.Errorf("private key is %d bytes, need %d", len(d), PrivateKeyLength)
	}

	curve := Curve()
	scalar := new(big.Int).SetBytes(d)
	if scalar.Sign() == 0 || scalar.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("private key out of range")
	}

	x, y := curve.ScalarBaseMult(d)

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         scalar,
	}, nil
}

// ParsePrivateKeyHex parses the hexadecimal form produced by PrivateKeyHex.
// Surrounding whitespace is ignored.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(raw)
}

// PrivateKeyHex returns the secret key in the format of the event network:
// 64 lowercase hex characters.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}
