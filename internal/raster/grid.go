package raster

import (
	"encoding/json"
	"fmt"
	"math"
)

// Grid is a single band of row-major samples. Missing samples are NaN.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Data: make([]float64, width*height)}
}

// NewGridFilled returns a grid with every sample set to value.
func NewGridFilled(width, height int, value float64) *Grid {
	g := NewGrid(width, height)
	for i := range g.Data {
		g.Data[i] = value
	}
	return g
}

// GridFromRows builds a grid from equally sized rows.
func GridFromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 {
		return NewGrid(0, 0), nil
	}
	width := len(rows[0])
	g := NewGrid(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d samples, expected %d", ErrDimensionMismatch, y, len(row), width)
		}
		copy(g.Data[y*width:(y+1)*width], row)
	}
	return g, nil
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, value float64) {
	g.Data[y*g.Width+x] = value
}

func (g *Grid) SameShape(other *Grid) bool {
	return other != nil && g.Width == other.Width && g.Height == other.Height
}

func (g *Grid) Clone() *Grid {
	c := NewGrid(g.Width, g.Height)
	copy(c.Data, g.Data)
	return c
}

// Valid counts the samples that are not NaN.
func (g *Grid) Valid() int {
	n := 0
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

type gridJSON struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Data   []*float64 `json:"data"`
}

// MarshalJSON encodes NaN samples as null, which encoding/json cannot
// represent otherwise.
func (g *Grid) MarshalJSON() ([]byte, error) {
	out := gridJSON{Width: g.Width, Height: g.Height, Data: make([]*float64, len(g.Data))}
	for i, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		v := v
		out.Data[i] = &v
	}
	return json.Marshal(out)
}

func (g *Grid) UnmarshalJSON(b []byte) error {
	var in gridJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if len(in.Data) != in.Width*in.Height {
		return fmt.Errorf("%w: %d samples for a %dx%d grid", ErrDimensionMismatch, len(in.Data), in.Width, in.Height)
	}
	g.Width, g.Height = in.Width, in.Height
	g.Data = make([]float64, len(in.Data))
	for i, v := range in.Data {
		if v == nil {
			g.Data[i] = math.NaN()
			continue
		}
		g.Data[i] = *v
	}
	return nil
}
