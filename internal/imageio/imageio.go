// Package imageio reads and writes the PNG and JPEG files handled by the provmark commands.
package imageio

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/provmark/provmark/pkg/watermark"
)

// DefaultJPEGQuality is used when WriteOptions leaves the quality unset.
const DefaultJPEGQuality = 95

// WriteOptions controls Write.
type WriteOptions struct {
	// Quality is the JPEG quality
	Quality int

	// Text is stored as watermark text metadata when not empty
	Text string

	// Logger receives metadata sink failures
	Logger *zap.Logger
}

// FormatFromPath chooses the container format from the file extension.
func FormatFromPath(path string) (watermark.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return watermark.FormatPNG, nil
	case ".jpg", ".jpeg":
		return watermark.FormatJPEG, nil
	default:
		return watermark.FormatUnknown, errors.Wrapf(watermark.ErrUnsupportedFormat, "%s", path)
	}
}

// Read decodes the image at path.
func Read(path string) (image.Image, watermark.Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, watermark.FormatUnknown, errors.Wrapf(err, "failed to read image %s", path)
	}

	format := watermark.DetectFormat(data)
	var img image.Image
	switch format {
	case watermark.FormatPNG:
		img, err = png.Decode(bytes.NewReader(data))
	case watermark.FormatJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, format, errors.Wrapf(watermark.ErrUnsupportedFormat, "%s", path)
	}
	if err != nil {
		return nil, format, errors.Wrapf(err, "failed to decode image %s", path)
	}
	return img, format, nil
}

// Encode encodes img in format.
func Encode(img image.Image, format watermark.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case watermark.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, errors.Wrap(err, "failed to encode png")
		}
	case watermark.FormatJPEG:
		if quality <= 0 {
			quality = DefaultJPEGQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, errors.Wrap(err, "failed to encode jpeg")
		}
	default:
		return nil, errors.Wrapf(watermark.ErrUnsupportedFormat, "format %q", format)
	}
	return buf.Bytes(), nil
}

// Write encodes img in the format named by the extension of path and writes it. A failure to
// attach opts.Text as metadata is logged and does not fail the write.
func Write(path string, img image.Image, opts WriteOptions) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	data, err := Encode(img, format, opts.Quality)
	if err != nil {
		return err
	}

	if opts.Text != "" {
		if tagged, err := watermark.AddTextMetadata(data, opts.Text); err != nil {
			logger := opts.Logger
			if logger == nil {
				logger = zap.NewNop()
			}
			logger.Debug("metadata embedding skipped", zap.String("path", path), zap.Error(err))
		} else {
			data = tagged
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write image %s", path)
	}
	return nil
}
