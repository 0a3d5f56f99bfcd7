package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"

	"github.com/nostrpay/peerd/src/common"
)

// PublicKeyLength is the number of hex characters of an identity.
const PublicKeyLength = 64

// PublicKeyHex returns the identity of a public key: the x coordinate of the
// point, as 64 lowercase hex characters. The y coordinate is implied by BIP-340.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	if pub == nil || pub.X == nil {
		return ""
	}
	return hex.EncodeToString(pub.X.FillBytes(make([]byte, PublicKeyLength/2)))
}

// ValidatePublicKeyHex checks that s is a well formed identity. Only the
// canonical lowercase form is accepted.
func ValidatePublicKeyHex(s string) error {
	if len(s) != PublicKeyLength {
		return common.Errorf("keys", common.InvalidIdentity, s,
			"length %d, need %d", len(s), PublicKeyLength)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return common.Errorf("keys", common.InvalidIdentity, s,
				"invalid character %q at %d", c, i)
		}
	}
	return nil
}

// NormalizePublicKeyHex trims and lowercases s before validating it. It is
// used on operator input such as configuration files and CLI arguments.
func NormalizePublicKeyHex(s string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	if err := ValidatePublicKeyHex(n); err != nil {
		return "", err
	}
	return n, nil
}
