package watermark

import (
	"image"

	"go.uber.org/zap"
)

// Stamped is the result of Stamp.
type Stamped struct {
	Image   image.Image
	Payload string
	Result  EmbedResult
}

// Stamp builds a payload from opts and embeds it in img.
func (c *Codec) Stamp(img image.Image, opts PayloadOptions) (*Stamped, error) {
	payload, err := c.Payload(opts)
	if err != nil {
		return nil, err
	}

	out, res := c.Embed(img, payload)
	if !res.Skipped {
		c.logger.Info("watermark embedded",
			zap.Int("bits", res.Bits),
			zap.Int("pixels", res.Pixels),
			zap.Bool("truncated", res.Truncated))
	}
	return &Stamped{Image: out, Payload: payload, Result: res}, nil
}
