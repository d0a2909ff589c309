package signing

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/provmark/provmark/internal/jsonenc"
)

// Metadata is the mapping signed alongside media bytes.
//
// It marshals to its canonical form, so numbers written into a sidecar read back with the same
// literal text and re-canonicalize to identical bytes.
type Metadata map[string]any

// MarshalJSON encodes the metadata canonically.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return Canonicalize(m)
}

// UnmarshalJSON decodes metadata keeping numbers as json.Number.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Canonicalize serializes md deterministically: object keys sorted by code point, ", " and ": "
// separators, non-ASCII and control characters escaped as \uXXXX, floats in shortest round-trip form
// with a trailing ".0" when integral. Mappings with equal entries always produce equal bytes,
// whatever their insertion order.
func Canonicalize(md map[string]any) ([]byte, error) {
	if md == nil {
		md = map[string]any{}
	}
	out, err := jsonenc.Marshal(md)
	if err != nil {
		return nil, errors.Wrap(err, "failed to canonicalize metadata")
	}
	return out, nil
}
