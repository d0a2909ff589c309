package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/youmark/pkcs8"
	"go.uber.org/zap"
)

const (
	pemTypePrivateKey          = "PRIVATE KEY"
	pemTypeEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
	pemTypeRSAPrivateKey       = "RSA PRIVATE KEY"
	pemTypeECPrivateKey        = "EC PRIVATE KEY"
	pemTypePublicKey           = "PUBLIC KEY"
	pemTypeRSAPublicKey        = "RSA PUBLIC KEY"

	// DefaultKDFIterations is the PBKDF2-HMAC-SHA256 work factor for encrypted private keys.
	DefaultKDFIterations = 600000

	// FingerprintLength is the number of hex characters in a key fingerprint.
	FingerprintLength = 16

	// PrivateKeySuffix and PublicKeySuffix complete a key pair base name into file names.
	PrivateKeySuffix = "_private.pem"
	PublicKeySuffix  = "_public.pem"
)

// Manager generates, persists and loads key pairs.
type Manager struct {
	logger        *zap.Logger
	kdfIterations int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithKDFIterations overrides the PBKDF2 iteration count used when encrypting private keys.
func WithKDFIterations(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.kdfIterations = n
		}
	}
}

// NewManager creates a new key manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:        zap.NewNop(),
		kdfIterations: DefaultKDFIterations,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generate creates a new key pair. keySize applies to RSA only; zero selects DefaultRSAKeySize.
// ECDSA keys always use the P-256 curve.
func (m *Manager) Generate(alg Algorithm, keySize int) (*KeyPair, error) {
	var (
		priv crypto.Signer
		err  error
	)

	switch alg {
	case RSA:
		if keySize == 0 {
			keySize = DefaultRSAKeySize
		}
		if !slices.Contains(RecommendedRSAKeySizes, keySize) {
			m.logger.Warn("unusual RSA key size",
				zap.Int("key_size", keySize),
				zap.Ints("recommended", RecommendedRSAKeySizes))
		}
		priv, err = rsa.GenerateKey(rand.Reader, keySize)
	case ECDSA:
		keySize = 0
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "%q", alg)
	}
	if err != nil {
		return nil, newKeyError("generate", "", ErrInvalidKey, err)
	}

	return &KeyPair{
		KeyID:      uuid.New().String(),
		Algorithm:  alg,
		KeySize:    keySize,
		PrivateKey: priv,
		PublicKey:  priv.Public(),
		CreatedAt:  time.Now(),
	}, nil
}

// SavePrivate writes key as a PKCS#8 PEM file readable only by the owner. A non-empty password
// encrypts the container with AES-256-CBC under a PBKDF2-HMAC-SHA256 derived key.
func (m *Manager) SavePrivate(key crypto.Signer, path string, password []byte) error {
	if key == nil {
		return newKeyError("save private key", path, ErrInvalidKey, errors.New("no private key"))
	}

	var (
		der       []byte
		blockType string
		err       error
	)
	if len(password) > 0 {
		der, err = pkcs8.MarshalPrivateKey(key, password, &pkcs8.Opts{
			Cipher: pkcs8.AES256CBC,
			KDFOpts: pkcs8.PBKDF2Opts{
				SaltSize:       16,
				IterationCount: m.kdfIterations,
				HMACHash:       crypto.SHA256,
			},
		})
		blockType = pemTypeEncryptedPrivateKey
	} else {
		der, err = x509.MarshalPKCS8PrivateKey(key)
		blockType = pemTypePrivateKey
		m.logger.Warn("private key is not encrypted", zap.String("path", path))
	}
	if err != nil {
		return newKeyError("save private key", path, ErrInvalidKey, err)
	}

	return writeKeyFile("save private key", path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0o600)
}

// SavePublic writes key as an unencrypted SubjectPublicKeyInfo PEM file.
func (m *Manager) SavePublic(key crypto.PublicKey, path string) error {
	data, err := MarshalPublicKey(key)
	if err != nil {
		return newKeyError("save public key", path, ErrInvalidKey, err)
	}
	return writeKeyFile("save public key", path, data, 0o644)
}

// LoadPrivate reads a private key. Encrypted PKCS#8 containers require the password that sealed them;
// PKCS#8, PKCS#1 and SEC1 plain containers ignore it.
func (m *Manager) LoadPrivate(path string, password []byte) (*KeyPair, error) {
	const op = "load private key"

	block, err := readPEM(op, path)
	if err != nil {
		return nil, err
	}

	var parsed any
	switch block.Type {
	case pemTypeEncryptedPrivateKey:
		if len(password) == 0 {
			return nil, newKeyError(op, path, ErrDecryption, errors.New("password required"))
		}
		parsed, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
		if err != nil {
			return nil, newKeyError(op, path, ErrDecryption, err)
		}
	case pemTypePrivateKey:
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case pemTypeRSAPrivateKey:
		parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case pemTypeECPrivateKey:
		parsed, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, newKeyError(op, path, ErrInvalidKey, errors.Errorf("unsupported PEM block %q", block.Type))
	}
	if err != nil {
		return nil, newKeyError(op, path, ErrInvalidKey, err)
	}

	kp, err := keyPairFromPrivate(parsed)
	if err != nil {
		return nil, newKeyError(op, path, ErrUnsupportedAlgorithm, err)
	}
	return kp, nil
}

// LoadPublic reads a SubjectPublicKeyInfo (or PKCS#1 RSA) public key.
func (m *Manager) LoadPublic(path string) (crypto.PublicKey, error) {
	const op = "load public key"

	block, err := readPEM(op, path)
	if err != nil {
		return nil, err
	}

	var pub any
	switch block.Type {
	case pemTypePublicKey:
		pub, err = x509.ParsePKIXPublicKey(block.Bytes)
	case pemTypeRSAPublicKey:
		pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, newKeyError(op, path, ErrInvalidKey, errors.Errorf("unsupported PEM block %q", block.Type))
	}
	if err != nil {
		return nil, newKeyError(op, path, ErrInvalidKey, err)
	}

	if _, err := AlgorithmOf(pub); err != nil {
		return nil, newKeyError(op, path, ErrUnsupportedAlgorithm, err)
	}
	return pub, nil
}

// PathsFor returns the file names of the key pair called name in dir.
func PathsFor(dir, name string) *Paths {
	return &Paths{
		PrivateKey: filepath.Join(dir, name+PrivateKeySuffix),
		PublicKey:  filepath.Join(dir, name+PublicKeySuffix),
	}
}

// WriteKeyPair saves kp as <dir>/<name>_private.pem and <dir>/<name>_public.pem.
func (m *Manager) WriteKeyPair(dir, name string, kp *KeyPair, password []byte) (*Paths, error) {
	if kp == nil || kp.PrivateKey == nil {
		return nil, newKeyError("write key pair", dir, ErrInvalidKey, errors.New("no private key"))
	}

	paths := PathsFor(dir, name)
	if err := m.SavePrivate(kp.PrivateKey, paths.PrivateKey, password); err != nil {
		return nil, err
	}
	if err := m.SavePublic(kp.PublicKey, paths.PublicKey); err != nil {
		return nil, err
	}

	m.logger.Info("key pair written",
		zap.String("algorithm", kp.Algorithm.String()),
		zap.String("private_key", paths.PrivateKey),
		zap.String("public_key", paths.PublicKey),
		zap.Bool("encrypted", len(password) > 0))
	return paths, nil
}

// Fingerprint returns the first 16 hex characters of the SHA-256 digest of the key's PEM
// SubjectPublicKeyInfo encoding. It identifies a key for display and matching only.
func Fingerprint(pub crypto.PublicKey) (string, error) {
	data, err := MarshalPublicKey(pub)
	if err != nil {
		return "", errors.Wrap(err, "failed to compute fingerprint")
	}
	return digest.FromBytes(data).Encoded()[:FingerprintLength], nil
}

// MarshalPublicKey encodes pub as a SubjectPublicKeyInfo PEM block.
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, errors.Wrap(ErrInvalidKey, "no public key")
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal public key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der}), nil
}

// AlgorithmOf reports the signature algorithm a public or private key belongs to.
func AlgorithmOf(key any) (Algorithm, error) {
	switch k := key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return RSA, nil
	case *ecdsa.PublicKey:
		if k == nil {
			return "", errors.Wrap(ErrInvalidKey, "no public key")
		}
		if err := checkCurve(k.Curve); err != nil {
			return "", err
		}
		return ECDSA, nil
	case *ecdsa.PrivateKey:
		if k == nil {
			return "", errors.Wrap(ErrInvalidKey, "no private key")
		}
		if err := checkCurve(k.Curve); err != nil {
			return "", err
		}
		return ECDSA, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedAlgorithm, "key type %T", key)
	}
}

// Helper functions

func keyPairFromPrivate(parsed any) (*KeyPair, error) {
	kp := &KeyPair{CreatedAt: time.Now()}

	switch k := parsed.(type) {
	case *rsa.PrivateKey:
		kp.Algorithm = RSA
		kp.KeySize = k.N.BitLen()
		kp.PrivateKey = k
	case *ecdsa.PrivateKey:
		if err := checkCurve(k.Curve); err != nil {
			return nil, err
		}
		kp.Algorithm = ECDSA
		kp.PrivateKey = k
	default:
		return nil, errors.Errorf("key type %T", parsed)
	}

	kp.PublicKey = kp.PrivateKey.Public()
	return kp, nil
}

// checkCurve accepts P-256 only.
func checkCurve(c elliptic.Curve) error {
	if c == elliptic.P256() {
		return nil
	}
	name := "unknown"
	if c != nil {
		name = c.Params().Name
	}
	return errors.Wrapf(ErrUnsupportedAlgorithm, "curve %s", name)
}

func readPEM(op, path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newKeyError(op, path, ErrNotFound, nil)
		}
		return nil, newKeyError(op, path, ErrKeyIO, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, newKeyError(op, path, ErrInvalidKey, errors.New("failed to decode PEM block"))
	}
	return block, nil
}

func writeKeyFile(op, path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return newKeyError(op, path, ErrKeyIO, err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return newKeyError(op, path, ErrKeyIO, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, perm); err != nil {
		return newKeyError(op, path, ErrKeyIO, err)
	}
	return nil
}
