package signing

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/provmark/provmark/pkg/keys"
)

// SidecarExt is appended to a media path to name its signature record.
const SidecarExt = ".sig"

// ErrRecordCorrupt is returned when a sidecar exists but is not a valid record.
var ErrRecordCorrupt = errors.New("signature record is corrupt")

// Record is the signature sidecar stored next to a media file.
type Record struct {
	// Signature is the base64 signature
	Signature string `json:"signature" yaml:"signature"`

	// Metadata is the mapping covered by the signature
	Metadata Metadata `json:"metadata" yaml:"metadata"`

	// Algorithm is the algorithm the signature was made with
	Algorithm keys.Algorithm `json:"algorithm" yaml:"algorithm"`

	// KeyFingerprint identifies the signing key
	KeyFingerprint string `json:"key_fingerprint" yaml:"key_fingerprint"`

	// ImagePath is the base name of the signed file
	ImagePath string `json:"image_path" yaml:"image_path"`
}

// SidecarPath returns the record path for a media file.
func SidecarPath(imagePath string) string {
	return imagePath + SidecarExt
}

// NewRecord builds a record for imagePath. Only the base name of the path is kept.
func NewRecord(imagePath, signature string, md Metadata, alg keys.Algorithm, fingerprint string) *Record {
	return &Record{
		Signature:      signature,
		Metadata:       md,
		Algorithm:      alg,
		KeyFingerprint: fingerprint,
		ImagePath:      filepath.Base(imagePath),
	}
}

// WriteRecord writes rec as indented JSON to the sidecar of imagePath and returns the sidecar path.
func WriteRecord(imagePath string, rec *Record) (string, error) {
	if rec == nil {
		return "", errors.New("signature record cannot be nil")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode signature record")
	}

	sigPath := SidecarPath(imagePath)
	if err := os.WriteFile(sigPath, append(data, '\n'), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write signature record %s", sigPath)
	}
	return sigPath, nil
}

// LoadRecord reads a sidecar. A missing file yields (nil, nil); an unparseable one yields ErrRecordCorrupt.
func LoadRecord(sigPath string) (*Record, error) {
	data, err := os.ReadFile(sigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read signature record %s", sigPath)
	}

	return DecodeRecord(data)
}

// DecodeRecord parses a sidecar document.
func DecodeRecord(data []byte) (*Record, error) {
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&rec); err != nil {
		return nil, errors.Wrap(ErrRecordCorrupt, err.Error())
	}
	if rec.Signature == "" {
		return nil, errors.Wrap(ErrRecordCorrupt, "missing signature")
	}
	if rec.Algorithm == "" {
		rec.Algorithm = keys.RSA
	}
	return &rec, nil
}
