package watermark

import (
	"image"
	"strings"

	"go.uber.org/zap"
)

// EmbedResult describes what Embed did.
type EmbedResult struct {
	// Skipped is set when the image is below the size floor and was returned unchanged
	Skipped bool `json:"skipped" yaml:"skipped"`

	// Pixels is the pixel count of the image
	Pixels int `json:"pixels" yaml:"pixels"`

	// Capacity is the fraction of pixels allowed to carry bits
	Capacity float64 `json:"capacity" yaml:"capacity"`

	// Bits is the number of payload bits written
	Bits int `json:"bits" yaml:"bits"`

	// Truncated is set when the payload did not fit in the bit budget
	Truncated bool `json:"truncated" yaml:"truncated"`
}

// Codec embeds and extracts watermark payloads. It holds no mutable state and is safe for
// concurrent use.
type Codec struct {
	cfg    Config
	logger *zap.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCodec creates a codec for cfg.
func NewCodec(cfg Config, opts ...Option) *Codec {
	c := &Codec{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the codec configuration.
func (c *Codec) Config() Config {
	return c.cfg
}

// Embed writes payload into a copy of img and returns the copy.
//
// Images smaller than the configured floor are returned as is with Skipped set. The payload is
// encoded as UTF-8, most significant bit first, and truncated to the bit budget. Each bit replaces
// the least significant bit of the blue channel at the next coordinate of the position sequence; a
// coordinate drawn twice keeps the later bit.
func (c *Codec) Embed(img image.Image, payload string) (image.Image, EmbedResult) {
	if img == nil {
		return nil, EmbedResult{Skipped: true}
	}

	b := img.Bounds()
	pixels := b.Dx() * b.Dy()
	res := EmbedResult{Pixels: pixels, Capacity: c.cfg.CapacityRatio(pixels)}

	budget, ok := c.cfg.BitBudget(pixels, len(payload))
	if !ok {
		c.logger.Warn("image too small for watermarking, embedding skipped",
			zap.Int("width", b.Dx()),
			zap.Int("height", b.Dy()),
			zap.Int("pixels", pixels),
			zap.Int("min_pixels", c.cfg.MinPixels))
		res.Skipped = true
		return img, res
	}

	out, dst := writableCopy(img)
	seq := NewPositionSequence(c.cfg.Seed, b.Dx(), b.Dy())
	for i := 0; i < budget; i++ {
		dst.setLSB(seq.Next(), bitAt(payload, i))
	}

	res.Bits = budget
	res.Truncated = budget < len(payload)*8
	if res.Truncated {
		c.logger.Debug("watermark payload truncated",
			zap.Int("payload_bits", len(payload)*8),
			zap.Int("embedded_bits", budget))
	}
	return out, res
}

// Extract reads bits payload bits from img using the same position sequence as Embed and decodes
// them as UTF-8. A trailing partial byte is dropped and invalid byte sequences are removed, so the
// result may be empty or partial but extraction never fails. At most one bit per pixel is read.
func (c *Codec) Extract(img image.Image, bits int) string {
	if img == nil || bits <= 0 {
		return ""
	}
	b := img.Bounds()
	if b.Empty() {
		return ""
	}

	// Embed never writes more bits than there are pixels.
	bits = min(bits, b.Dx()*b.Dy())

	src := readable(img)
	seq := NewPositionSequence(c.cfg.Seed, b.Dx(), b.Dy())

	buf := make([]byte, bits/8)
	for i := 0; i < len(buf)*8; i++ {
		buf[i/8] = buf[i/8]<<1 | src.lsb(seq.Next())
	}
	return strings.ToValidUTF8(string(buf), "")
}

// bitAt returns bit i of s, counting from the most significant bit of the first byte.
func bitAt(s string, i int) uint8 {
	return (s[i/8] >> (7 - uint(i%8))) & 1
}
