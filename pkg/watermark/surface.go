package watermark

import (
	"image"
	"image/color"
)

// surface addresses one 8-bit channel of an image buffer.
type surface struct {
	pix    []uint8
	stride int
	step   int
	offset int
	rect   image.Rectangle
}

func (s surface) index(p image.Point) int {
	return p.Y*s.stride + p.X*s.step + s.offset
}

func (s surface) lsb(p image.Point) uint8 {
	return s.pix[s.index(p)] & 1
}

func (s surface) setLSB(p image.Point, bit uint8) {
	i := s.index(p)
	if bit == 1 {
		s.pix[i] |= 1
	} else {
		s.pix[i] &^= 1
	}
}

// writableCopy returns a copy of img that can be modified in place, together with its blue channel
// (the luma channel for grayscale images). The input is never modified.
func writableCopy(img image.Image) (image.Image, surface) {
	switch src := img.(type) {
	case *image.Gray:
		dst := &image.Gray{Pix: append([]uint8(nil), src.Pix...), Stride: src.Stride, Rect: src.Rect}
		return dst, graySurface(dst)
	case *image.RGBA:
		dst := &image.RGBA{Pix: append([]uint8(nil), src.Pix...), Stride: src.Stride, Rect: src.Rect}
		return dst, blueSurface(dst.Pix, dst.Stride, dst.Rect)
	case *image.NRGBA:
		dst := &image.NRGBA{Pix: append([]uint8(nil), src.Pix...), Stride: src.Stride, Rect: src.Rect}
		return dst, blueSurface(dst.Pix, dst.Stride, dst.Rect)
	default:
		dst := toNRGBA(img)
		return dst, blueSurface(dst.Pix, dst.Stride, dst.Rect)
	}
}

// readable returns the channel extract reads from, converting formats without direct 8-bit access.
func readable(img image.Image) surface {
	switch src := img.(type) {
	case *image.Gray:
		return graySurface(src)
	case *image.RGBA:
		return blueSurface(src.Pix, src.Stride, src.Rect)
	case *image.NRGBA:
		return blueSurface(src.Pix, src.Stride, src.Rect)
	default:
		dst := toNRGBA(img)
		return blueSurface(dst.Pix, dst.Stride, dst.Rect)
	}
}

func graySurface(img *image.Gray) surface {
	return surface{pix: img.Pix, stride: img.Stride, step: 1, rect: img.Rect}
}

func blueSurface(pix []uint8, stride int, rect image.Rectangle) surface {
	return surface{pix: pix, stride: stride, step: 4, offset: 2, rect: rect}
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetNRGBA(x, y, color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA))
		}
	}
	return dst
}
