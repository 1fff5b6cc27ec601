// Package resample reduces vegetation index granules to a coarser grid,
// keeping only pixels whose quality flag is acceptable.
package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/imagingearth/phenology/internal/raster"
)

var ErrUnsupportedReduction = errors.New("unsupported reduction method")

// Reduction selects how the valid pixels of a block are combined.
type Reduction int

const (
	ReductionMean Reduction = iota
)

func (r Reduction) String() string {
	switch r {
	case ReductionMean:
		return "mean"
	default:
		return fmt.Sprintf("Reduction(%d)", int(r))
	}
}

// ParseReduction maps a configuration string onto a Reduction.
func ParseReduction(s string) (Reduction, error) {
	switch s {
	case "", "mean":
		return ReductionMean, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedReduction, s)
	}
}

// QualitySet is the set of acceptable quality codes.
type QualitySet map[int]struct{}

func NewQualitySet(codes ...int) QualitySet {
	s := make(QualitySet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// DefaultQuality lists the MOD13C2 "VI Quality" codes accepted as usable.
var DefaultQuality = NewQualitySet(0, 1, 4, 8, 12, 64, 512, 2048)

func (s QualitySet) Accepts(code float64) bool {
	if math.IsNaN(code) || code != math.Trunc(code) {
		return false
	}
	_, ok := s[int(code)]
	return ok
}

type Options struct {
	XFactor   int
	YFactor   int
	Reduction Reduction
	// Samples outside [DataMin, DataMax] are masked before reduction.
	DataMin float64
	DataMax float64
	// Quality defaults to DefaultQuality when nil.
	Quality QualitySet
}

// DefaultOptions uses the value range of the raw MOD13C2 VI layers.
func DefaultOptions(xFactor, yFactor int) Options {
	return Options{
		XFactor:   xFactor,
		YFactor:   yFactor,
		Reduction: ReductionMean,
		DataMin:   -1000,
		DataMax:   10000,
		Quality:   DefaultQuality,
	}
}

func (o Options) validate() error {
	if o.Reduction != ReductionMean {
		return fmt.Errorf("%w: %s", ErrUnsupportedReduction, o.Reduction)
	}
	if o.XFactor <= 0 || o.YFactor <= 0 {
		return fmt.Errorf("%w: factors must be positive, got %dx%d", raster.ErrDimensionMismatch, o.XFactor, o.YFactor)
	}
	if o.DataMin > o.DataMax {
		return fmt.Errorf("data range [%g, %g] is empty", o.DataMin, o.DataMax)
	}
	return nil
}

// Reduce averages every XFactor x YFactor block of data over the pixels
// whose quality code is accepted and whose value lies in the data range.
// Blocks without any such pixel are NaN.
func Reduce(data, quality *raster.Grid, opts Options) (*raster.Grid, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if !data.SameShape(quality) {
		return nil, fmt.Errorf("%w: data is %dx%d, quality is %dx%d", raster.ErrDimensionMismatch,
			data.Width, data.Height, quality.Width, quality.Height)
	}
	if data.Width%opts.XFactor != 0 || data.Height%opts.YFactor != 0 {
		return nil, fmt.Errorf("%w: %dx%d is not divisible by %dx%d", raster.ErrDimensionMismatch,
			data.Width, data.Height, opts.XFactor, opts.YFactor)
	}
	accepted := opts.Quality
	if accepted == nil {
		accepted = DefaultQuality
	}

	out := raster.NewGrid(data.Width/opts.XFactor, data.Height/opts.YFactor)
	for oy := 0; oy < out.Height; oy++ {
		for ox := 0; ox < out.Width; ox++ {
			var sum float64
			var n int
			for y := oy * opts.YFactor; y < (oy+1)*opts.YFactor; y++ {
				for x := ox * opts.XFactor; x < (ox+1)*opts.XFactor; x++ {
					v := data.At(x, y)
					if math.IsNaN(v) || v < opts.DataMin || v > opts.DataMax {
						continue
					}
					if !accepted.Accepts(quality.At(x, y)) {
						continue
					}
					sum += v
					n++
				}
			}
			if n == 0 {
				out.Set(ox, oy, math.NaN())
				continue
			}
			out.Set(ox, oy, sum/float64(n))
		}
	}
	return out, nil
}
