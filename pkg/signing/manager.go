package signing

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/provmark/provmark/pkg/keys"
)

var (
	// ErrImageMissing is the reason reported when the media file cannot be read.
	ErrImageMissing = errors.New("image file not found")

	// ErrKeyMissing is the reason reported when the public key cannot be loaded.
	ErrKeyMissing = errors.New("public key not available")
)

// Manager signs media files and verifies them against their sidecar records.
type Manager struct {
	keys   *keys.Manager
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a signature manager that loads keys through km.
func NewManager(km *keys.Manager, opts ...Option) *Manager {
	if km == nil {
		km = keys.NewManager()
	}

	m := &Manager{
		keys:   km,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SignFile signs the bytes of imagePath together with md and writes the sidecar record.
func (m *Manager) SignFile(imagePath string, kp *keys.KeyPair, md Metadata) (*Record, error) {
	if kp == nil || kp.PrivateKey == nil {
		return nil, errors.New("no private key loaded. cannot sign")
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", imagePath)
	}

	signature, err := Sign(kp.PrivateKey, kp.Algorithm, data, md)
	if err != nil {
		return nil, err
	}

	fingerprint, err := keys.Fingerprint(kp.PublicKey)
	if err != nil {
		return nil, err
	}

	rec := NewRecord(imagePath, signature, md, kp.Algorithm, fingerprint)
	sigPath, err := m.CreateRecord(imagePath, rec)
	if err != nil {
		return nil, err
	}

	m.logger.Info("signed file",
		zap.String("image", imagePath),
		zap.String("sidecar", sigPath),
		zap.String("algorithm", kp.Algorithm.String()),
		zap.String("key_fingerprint", fingerprint))
	return rec, nil
}

// CreateRecord writes rec as the sidecar of imagePath.
func (m *Manager) CreateRecord(imagePath string, rec *Record) (string, error) {
	return WriteRecord(imagePath, rec)
}

// LoadRecord reads a sidecar record. See LoadRecord.
func (m *Manager) LoadRecord(sigPath string) (*Record, error) {
	rec, err := LoadRecord(sigPath)
	if err != nil && errors.Is(err, ErrRecordCorrupt) {
		m.logger.Warn("corrupted signature file", zap.String("path", sigPath), zap.Error(err))
	}
	return rec, err
}

// VerifyFile verifies imagePath against its sidecar using the public key at publicKeyPath.
//
// The media bytes are read fresh from disk and the payload is rebuilt from the algorithm and
// metadata stored in the sidecar. It never returns an error: every failure is a non-valid Result.
func (m *Manager) VerifyFile(imagePath, publicKeyPath string) *Result {
	res := &Result{ImagePath: imagePath, Status: StatusErrored}

	rec, err := m.LoadRecord(SidecarPath(imagePath))
	switch {
	case err != nil:
		res.Reason = err
		return m.finish(res)
	case rec == nil:
		res.Status = StatusUnsigned
		res.Reason = errors.Errorf("no signature file found: %s", SidecarPath(imagePath))
		return m.finish(res)
	}
	res.Record = rec

	data, err := os.ReadFile(imagePath)
	if err != nil {
		res.Reason = errors.Wrap(ErrImageMissing, err.Error())
		return m.finish(res)
	}

	pub, err := m.keys.LoadPublic(publicKeyPath)
	if err != nil {
		res.Reason = errors.Wrap(ErrKeyMissing, err.Error())
		return m.finish(res)
	}

	if fingerprint, err := keys.Fingerprint(pub); err == nil {
		res.FingerprintMatch = fingerprint == rec.KeyFingerprint
	}

	alg, err := keys.ParseAlgorithm(rec.Algorithm.String())
	if err != nil {
		res.Status = StatusInvalid
		res.Reason = err
		return m.finish(res)
	}

	if err := Check(pub, alg, data, rec.Signature, rec.Metadata); err != nil {
		res.Status = StatusInvalid
		res.Reason = err
		return m.finish(res)
	}

	res.Status = StatusValid
	return m.finish(res)
}

func (m *Manager) finish(res *Result) *Result {
	m.logger.Debug("verified file",
		zap.String("image", res.ImagePath),
		zap.Stringer("status", res.Status),
		zap.String("reason", res.ReasonText()),
		zap.Bool("fingerprint_match", res.FingerprintMatch))
	return res
}
