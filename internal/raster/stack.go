package raster

import (
	"fmt"
	"math"
)

// Stack is a band-major raster. Every band shares the stack dimensions.
type Stack struct {
	Width  int
	Height int
	Bands  []*Grid
	Geo    *Geocoding
}

func NewStack(width, height int) *Stack {
	return &Stack{Width: width, Height: height}
}

// Append adds a band, rejecting grids whose shape differs from the stack.
func (s *Stack) Append(g *Grid) error {
	if g.Width != s.Width || g.Height != s.Height {
		return fmt.Errorf("%w: band is %dx%d, stack is %dx%d", ErrDimensionMismatch, g.Width, g.Height, s.Width, s.Height)
	}
	s.Bands = append(s.Bands, g)
	return nil
}

// Shape returns (bands, rows, columns).
func (s *Stack) Shape() (int, int, int) {
	return len(s.Bands), s.Height, s.Width
}

// Series returns the value of every band at one pixel.
func (s *Stack) Series(x, y int) []float64 {
	out := make([]float64, len(s.Bands))
	for i, b := range s.Bands {
		out[i] = b.At(x, y)
	}
	return out
}

// Max reduces the stack to the per-pixel maximum, ignoring NaN.
func (s *Stack) Max() *Grid {
	out := NewGridFilled(s.Width, s.Height, math.NaN())
	for _, b := range s.Bands {
		for i, v := range b.Data {
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(out.Data[i]) || v > out.Data[i] {
				out.Data[i] = v
			}
		}
	}
	return out
}
