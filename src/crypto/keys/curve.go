package keys

import (
	"crypto/elliptic"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Curve returns secp256k1, the curve identities and signatures live on.
func Curve() elliptic.Curve {
	return btcec.S256()
}
