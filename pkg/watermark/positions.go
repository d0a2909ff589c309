package watermark

import (
	"image"
	"math/rand/v2"
)

// PositionSequence yields the pixel coordinates that carry payload bits.
//
// A sequence is built fresh for every embed or extract call and is owned by that call. Two
// sequences with the same seed and dimensions yield the same coordinates, and the first n
// coordinates do not depend on how many are drawn afterwards.
type PositionSequence struct {
	rng    *rand.Rand
	width  int
	height int
}

// NewPositionSequence creates a sequence over a width x height pixel grid.
func NewPositionSequence(seed uint64, width, height int) *PositionSequence {
	return &PositionSequence{
		rng:    rand.New(rand.NewPCG(seed, seed)),
		width:  width,
		height: height,
	}
}

// Next returns the next coordinate relative to the grid origin. The row is drawn before the column.
// Coordinates may repeat.
func (s *PositionSequence) Next() image.Point {
	y := s.rng.IntN(s.height)
	x := s.rng.IntN(s.width)
	return image.Pt(x, y)
}

// Positions returns the first n coordinates of the sequence for seed over a width x height grid.
func Positions(seed uint64, width, height, n int) []image.Point {
	if n <= 0 || width <= 0 || height <= 0 {
		return nil
	}

	seq := NewPositionSequence(seed, width, height)
	out := make([]image.Point, n)
	for i := range out {
		out[i] = seq.Next()
	}
	return out
}
