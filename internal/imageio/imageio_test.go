package imageio

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provmark/provmark/pkg/watermark"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 24, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 24; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 20), B: 0x80, A: 0xff})
		}
	}
	return img
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want watermark.Format
		ok   bool
	}{
		{path: "a.png", want: watermark.FormatPNG, ok: true},
		{path: "dir/b.JPG", want: watermark.FormatJPEG, ok: true},
		{path: "c.jpeg", want: watermark.FormatJPEG, ok: true},
		{path: "d.gif"},
		{path: "noext"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			assert.Equal(t, tt.want, got)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, watermark.ErrUnsupportedFormat))
			}
		})
	}
}

func TestWriteRead_PNGIsLossless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	src := testImage()

	require.NoError(t, Write(path, src, WriteOptions{Text: `{"signature": "DLC_DEEPFAKE"}`}))

	img, format, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, watermark.FormatPNG, format)
	assert.Equal(t, src.Bounds(), img.Bounds())
	for y := 0; y < 12; y++ {
		for x := 0; x < 24; x++ {
			assert.Equal(t, src.NRGBAAt(x, y), color.NRGBAModel.Convert(img.At(x, y)))
		}
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text, err := watermark.ReadTextMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, `{"signature": "DLC_DEEPFAKE"}`, text)
}

func TestWriteRead_JPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")

	require.NoError(t, Write(path, testImage(), WriteOptions{Quality: 80, Text: "note"}))

	img, format, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, watermark.FormatJPEG, format)
	assert.Equal(t, image.Rect(0, 0, 24, 12), img.Bounds())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text, err := watermark.ReadTextMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, "note", text)
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Read(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, _, err = Read(garbage)
	assert.True(t, errors.Is(err, watermark.ErrUnsupportedFormat))

	assert.Error(t, Write(filepath.Join(dir, "out.bmp"), testImage(), WriteOptions{}))
}
