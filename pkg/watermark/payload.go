package watermark

import (
	"os"
	"sort"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/provmark/provmark/internal/jsonenc"
)

const (
	// HashLength is the number of hex characters kept from an input file digest.
	HashLength = 16

	// UnknownHash is recorded for inputs that cannot be read.
	UnknownHash = "unknown"

	readableLayout = "2006-01-02 15:04:05"
)

// PayloadOptions carries the per-output values of a watermark payload.
type PayloadOptions struct {
	// SourcePath and TargetPath are hashed into source_hash and target_hash when set
	SourcePath string
	TargetPath string

	// OutputPath is recorded as output_path when set
	OutputPath string

	// UserID is recorded as user_id when set
	UserID string

	// Extra fields are merged last, in key order, and replace built-in fields of the same name
	Extra map[string]any

	// Now overrides the payload timestamp
	Now time.Time
}

// NewPayload builds the JSON text embedded by Stamp. The token comes first, followed by the
// timestamps, software identity, optional input hashes, optional user id and finally the extra fields.
func NewPayload(cfg Config, opts PayloadOptions) (string, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	obj := jsonenc.Object{
		{Key: "signature", Value: cfg.Token},
		{Key: "timestamp", Value: float64(now.Unix()) + float64(now.Nanosecond())/1e9},
		{Key: "timestamp_readable", Value: now.Local().Format(readableLayout)},
		{Key: "software", Value: cfg.Software},
		{Key: "version", Value: cfg.Version},
	}

	if opts.SourcePath != "" {
		obj = obj.Set("source_hash", FileHash(opts.SourcePath))
	}
	if opts.TargetPath != "" {
		obj = obj.Set("target_hash", FileHash(opts.TargetPath))
	}
	if opts.UserID != "" {
		obj = obj.Set("user_id", opts.UserID)
	}

	extra := opts.Extra
	if opts.OutputPath != "" {
		extra = lo.Assign(map[string]any{"output_path": opts.OutputPath}, opts.Extra)
	}
	keys := lo.Keys(extra)
	sort.Strings(keys)
	for _, k := range keys {
		obj = obj.Set(k, extra[k])
	}

	out, err := jsonenc.Marshal(obj)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode watermark payload")
	}
	return string(out), nil
}

// Payload builds a payload with the codec configuration.
func (c *Codec) Payload(opts PayloadOptions) (string, error) {
	return NewPayload(c.cfg, opts)
}

// FileHash returns the first HashLength hex characters of the SHA-256 digest of the file at path,
// or UnknownHash when it cannot be read.
func FileHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return UnknownHash
	}
	defer f.Close()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return UnknownHash
	}
	return d.Encoded()[:HashLength]
}
