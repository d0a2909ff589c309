// Package keys generates, persists and loads the asymmetric key material used to sign media.
package keys

import (
	"crypto"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Algorithm represents a supported signature algorithm.
type Algorithm string

const (
	// RSA signs with RSA-PSS over SHA-256.
	RSA Algorithm = "RSA"
	// ECDSA signs with ECDSA over NIST P-256 and SHA-256.
	ECDSA Algorithm = "ECDSA"
)

// DefaultRSAKeySize is used when no RSA key size is requested.
const DefaultRSAKeySize = 2048

// RecommendedRSAKeySizes are accepted without a warning.
var RecommendedRSAKeySizes = []int{2048, 3072, 4096}

// ParseAlgorithm parses an algorithm name case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToUpper(strings.TrimSpace(s))) {
	case RSA:
		return RSA, nil
	case ECDSA:
		return ECDSA, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedAlgorithm, "%q", s)
	}
}

// String returns the algorithm name.
func (a Algorithm) String() string {
	return string(a)
}

// KeyPair represents a generated or loaded key pair.
type KeyPair struct {
	// KeyID is a random identifier assigned at generation time
	KeyID string `json:"key_id"`

	// Algorithm is the signature algorithm the key belongs to
	Algorithm Algorithm `json:"algorithm"`

	// KeySize is the RSA modulus size in bits, zero for ECDSA
	KeySize int `json:"key_size,omitempty"`

	// PrivateKey is the private key, nil when only the public half was loaded
	PrivateKey crypto.Signer `json:"-"`

	// PublicKey is the public key
	PublicKey crypto.PublicKey `json:"-"`

	// CreatedAt is when the key pair was generated or loaded
	CreatedAt time.Time `json:"created_at"`
}

// Paths holds the files written for a key pair.
type Paths struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}
