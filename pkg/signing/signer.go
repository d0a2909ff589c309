// Package signing attaches verifiable signatures to media files and checks them.
package signing

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/provmark/provmark/pkg/keys"
)

var (
	// ErrSignatureMismatch is returned when a well-formed signature does not match the payload.
	ErrSignatureMismatch = errors.New("signature does not match payload")

	// ErrMalformedSignature is returned when the signature is not valid base64 or is empty.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrKeyMismatch is returned when the key type does not belong to the requested algorithm.
	ErrKeyMismatch = errors.New("key does not match algorithm")
)

var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// Payload returns the bytes covered by a signature: data followed by the canonical metadata.
// Empty metadata is treated as absent.
func Payload(data []byte, md Metadata) ([]byte, error) {
	if len(md) == 0 {
		return data, nil
	}

	canonical, err := Canonicalize(md)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, len(data)+len(canonical))
	payload = append(payload, data...)
	return append(payload, canonical...), nil
}

// Sign signs data and metadata with key and returns the base64 signature.
// RSA keys sign with PSS (SHA-256, MGF1-SHA-256, maximum salt); ECDSA keys produce an ASN.1 signature over SHA-256.
func Sign(key crypto.Signer, alg keys.Algorithm, data []byte, md Metadata) (string, error) {
	if key == nil {
		return "", errors.New("no private key loaded")
	}

	keyAlg, err := keys.AlgorithmOf(key.Public())
	if err != nil {
		return "", err
	}
	if keyAlg != alg {
		return "", errors.Wrapf(ErrKeyMismatch, "%s key used for %s", keyAlg, alg)
	}

	payload, err := Payload(data, md)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(payload)

	var opts crypto.SignerOpts = crypto.SHA256
	if alg == keys.RSA {
		opts = pssOptions
	}

	sig, err := key.Sign(rand.Reader, digest[:], opts)
	if err != nil {
		return "", errors.Wrapf(err, "failed to sign with %s", alg)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature is a valid signature of data and metadata under pub.
// It never fails loudly: undecodable signatures and wrong key types are reported as false.
func Verify(pub crypto.PublicKey, alg keys.Algorithm, data []byte, signature string, md Metadata) bool {
	return Check(pub, alg, data, signature, md) == nil
}

// Check is Verify with the reason for rejection. The payload is rebuilt from the supplied data and metadata.
func Check(pub crypto.PublicKey, alg keys.Algorithm, data []byte, signature string, md Metadata) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return errors.Wrap(ErrMalformedSignature, err.Error())
	}
	if len(sig) == 0 {
		return ErrMalformedSignature
	}

	payload, err := Payload(data, md)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(payload)

	switch alg {
	case keys.RSA:
		k, ok := pub.(*rsa.PublicKey)
		if !ok || k == nil {
			return errors.Wrapf(ErrKeyMismatch, "%T for RSA", pub)
		}
		if err := rsa.VerifyPSS(k, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
			return ErrSignatureMismatch
		}
	case keys.ECDSA:
		k, ok := pub.(*ecdsa.PublicKey)
		if !ok || k == nil {
			return errors.Wrapf(ErrKeyMismatch, "%T for ECDSA", pub)
		}
		if _, err := keys.AlgorithmOf(k); err != nil {
			return err
		}
		if !ecdsa.VerifyASN1(k, digest[:], sig) {
			return ErrSignatureMismatch
		}
	default:
		return errors.Wrapf(keys.ErrUnsupportedAlgorithm, "%q", alg)
	}
	return nil
}
