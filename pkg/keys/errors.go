package keys

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrKeyIO is returned when a key file cannot be read or written.
	ErrKeyIO = errors.New("key file i/o failed")

	// ErrNotFound is returned when a key file does not exist. It also matches ErrKeyIO.
	ErrNotFound = errors.New("key file not found")

	// ErrDecryption is returned when an encrypted private key is loaded without the right password.
	ErrDecryption = errors.New("private key decryption failed")

	// ErrUnsupportedAlgorithm is returned for algorithms other than RSA and ECDSA.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrInvalidKey is returned when key material cannot be parsed or has an unexpected type.
	ErrInvalidKey = errors.New("invalid key material")
)

// KeyError describes a failed key operation.
type KeyError struct {
	Op    string
	Path  string
	Kind  error
	Cause error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	msg = fmt.Sprintf("%s: %v", msg, e.Kind)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the kind and the underlying cause.
func (e *KeyError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Is reports whether target is the error kind. A missing file is also a key i/o failure.
func (e *KeyError) Is(target error) bool {
	return target == e.Kind || (e.Kind == ErrNotFound && target == ErrKeyIO)
}

func newKeyError(op, path string, kind, cause error) *KeyError {
	return &KeyError{Op: op, Path: path, Kind: kind, Cause: cause}
}
