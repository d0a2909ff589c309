package watermark

import (
	"encoding/json"
	"image"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Detection is the outcome of scanning an image for a watermark.
type Detection struct {
	// Found is set when the extracted text contains the token
	Found bool `json:"found" yaml:"found"`

	// Parsed is set when a JSON object could be carved out of the extracted text
	Parsed bool `json:"parsed" yaml:"parsed"`

	// Metadata is the carved object, or a minimal object holding only the token
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Raw is the extracted text
	Raw string `json:"-" yaml:"-"`
}

// Detect extracts the configured number of bits from img and looks for the token.
//
// Detection is a heuristic. Unrelated images may match by chance, and a match says nothing about
// integrity. When the token is present but no JSON object can be parsed between the first '{' and
// the last '}', the image is still reported as watermarked with only the token as metadata.
func (c *Codec) Detect(img image.Image) Detection {
	raw := c.Extract(img, c.cfg.DetectBits)
	det := Detection{Raw: raw}
	if c.cfg.Token == "" || !strings.Contains(raw, c.cfg.Token) {
		return det
	}

	det.Found = true
	if md, ok := carveObject(raw); ok {
		det.Parsed = true
		det.Metadata = md
		return det
	}

	c.logger.Debug("watermark token found without parseable metadata", zap.Int("raw_len", len(raw)))
	det.Metadata = map[string]any{"signature": c.cfg.Token}
	return det
}

// Verify reports whether img carries a watermark and returns its metadata.
func (c *Codec) Verify(img image.Image) (bool, map[string]any) {
	det := c.Detect(img)
	if !det.Found {
		return false, nil
	}
	return true, det.Metadata
}

// carveObject parses the text between the first '{' and the last '}' as a JSON object.
func carveObject(s string) (map[string]any, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(s[start : end+1]))
	dec.UseNumber()

	var md map[string]any
	if err := dec.Decode(&md); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return md, true
}
