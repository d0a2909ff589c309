// Package watermark hides a provenance payload in the least significant bits of an image and
// recovers it again.
//
// Bits are written into the blue channel at pixel coordinates drawn from a generator seeded with a
// fixed, public constant, so any holder of the configuration can read them back. The scheme is a
// traceability hint that survives losing the signature sidecar; it is not tamper evident and makes
// no attempt to hide itself from steganalysis.
package watermark

import (
	"github.com/pkg/errors"
)

const (
	// DefaultToken marks a payload as a watermark.
	DefaultToken = "DLC_DEEPFAKE"

	// DefaultSeed seeds the embedding position sequence.
	DefaultSeed uint64 = 42

	// DefaultMinPixels is the smallest image (400x400) that is watermarked.
	DefaultMinPixels = 160000

	// DefaultDetectBits is the number of bits read when detecting a watermark.
	DefaultDetectBits = 2000
)

// Config holds every parameter of the embedding scheme. Embed and extract must use equal values.
type Config struct {
	// Token is the marker searched for during detection
	Token string `mapstructure:"token" yaml:"token"`

	// Software and Version identify the producer in generated payloads
	Software string `mapstructure:"software" yaml:"software"`
	Version  string `mapstructure:"version" yaml:"version"`

	// Seed seeds the position sequence
	Seed uint64 `mapstructure:"seed" yaml:"seed"`

	// MinPixels is the pixel count floor below which embedding is skipped
	MinPixels int `mapstructure:"min_pixels" yaml:"min_pixels"`

	// SmallImagePixels separates small images, which use SmallCapacity, from the rest
	SmallImagePixels int     `mapstructure:"small_image_pixels" yaml:"small_image_pixels"`
	SmallCapacity    float64 `mapstructure:"small_capacity" yaml:"small_capacity"`
	LargeCapacity    float64 `mapstructure:"large_capacity" yaml:"large_capacity"`

	// DetectBits is the bit count extracted by Detect
	DetectBits int `mapstructure:"detect_bits" yaml:"detect_bits"`
}

// DefaultConfig returns the standard scheme parameters.
func DefaultConfig() Config {
	return Config{
		Token:            DefaultToken,
		Software:         "Deep-Live-Cam",
		Version:          "1.0",
		Seed:             DefaultSeed,
		MinPixels:        DefaultMinPixels,
		SmallImagePixels: 100000,
		SmallCapacity:    0.3,
		LargeCapacity:    0.1,
		DetectBits:       DefaultDetectBits,
	}
}

// Validate checks that the configuration can drive the codec.
func (c Config) Validate() error {
	switch {
	case c.Token == "":
		return errors.New("watermark token cannot be empty")
	case c.MinPixels < 0:
		return errors.Errorf("min pixels must not be negative, got %d", c.MinPixels)
	case c.SmallCapacity <= 0 || c.SmallCapacity > 1:
		return errors.Errorf("small capacity must be in (0, 1], got %v", c.SmallCapacity)
	case c.LargeCapacity <= 0 || c.LargeCapacity > 1:
		return errors.Errorf("large capacity must be in (0, 1], got %v", c.LargeCapacity)
	case c.DetectBits <= 0:
		return errors.Errorf("detect bits must be positive, got %d", c.DetectBits)
	}
	return nil
}

// CapacityRatio returns the fraction of pixels that may carry payload bits.
func (c Config) CapacityRatio(pixels int) float64 {
	if pixels < c.SmallImagePixels {
		return c.SmallCapacity
	}
	return c.LargeCapacity
}

// BitBudget returns how many bits of a payloadLen-byte payload are embedded in an image of the
// given pixel count, and false when the image is below the size floor.
func (c Config) BitBudget(pixels, payloadLen int) (int, bool) {
	if pixels < c.MinPixels || pixels <= 0 {
		return 0, false
	}
	limit := int(float64(pixels) * c.CapacityRatio(pixels))
	return min(payloadLen*8, limit), true
}
