// Package fit fits vegetation index curves against accumulated growing
// degree days.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrFitDidNotConverge = errors.New("fit did not converge")
	ErrLengthMismatch    = errors.New("ndvi and agdd lengths differ")
	ErrTooFewSamples     = errors.New("fewer samples than model parameters")
	ErrNonFinite         = errors.New("non-finite sample")
)

type Model int

const (
	ModelQuadratic Model = iota
	ModelDoubleLogistic
)

func (m Model) String() string {
	switch m {
	case ModelQuadratic:
		return "quadratic"
	case ModelDoubleLogistic:
		return "double_logistic"
	default:
		return fmt.Sprintf("Model(%d)", int(m))
	}
}

func ParseModel(s string) (Model, error) {
	switch s {
	case "quadratic":
		return ModelQuadratic, nil
	case "double_logistic", "dbl_logistic":
		return ModelDoubleLogistic, nil
	default:
		return 0, fmt.Errorf("unknown model %q", s)
	}
}

// Orientation selects the polarity of the double logistic curve. Rising
// curves start at the minimum and grow towards the maximum, falling ones
// mirror them.
type Orientation int

const (
	OrientationAuto Orientation = iota
	OrientationRising
	OrientationFalling
)

func (o Orientation) String() string {
	switch o {
	case OrientationAuto:
		return "auto"
	case OrientationRising:
		return "rising"
	case OrientationFalling:
		return "falling"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "", "auto":
		return OrientationAuto, nil
	case "rising":
		return OrientationRising, nil
	case "falling":
		return OrientationFalling, nil
	default:
		return 0, fmt.Errorf("unknown orientation %q", s)
	}
}

type Options struct {
	Model       Model
	Orientation Orientation
	// Strict turns a non-converged solve into ErrFitDidNotConverge.
	Strict bool
	// MaxEvaluations overrides the 200*(n+1) default when positive.
	MaxEvaluations int
}

type Diagnostics struct {
	Evaluations int
	Iterations  int
	Residuals   []float64
	Message     string
}

type Result struct {
	Model       Model
	Orientation Orientation
	RMSE        float64
	Params      []float64
	// Covariance is (JᵀJ)⁻¹ at the solution, nil when singular.
	Covariance  *mat.SymDense
	Diagnostics Diagnostics
	Status      Status
}

// variant is one candidate curve: residual(p)_i = f(p, x_i) - y_i.
type variant struct {
	orientation Orientation
	start       []float64
	residual    func(dst, p []float64)
}

// Fit fits ndvi as a function of agdd. For the double logistic model with
// OrientationAuto both orientations are fitted and the lower RMSE is kept.
func Fit(ndvi, agdd []float64, opts Options) (*Result, error) {
	if len(ndvi) != len(agdd) {
		return nil, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(ndvi), len(agdd))
	}
	for i := range ndvi {
		if math.IsNaN(ndvi[i]) || math.IsInf(ndvi[i], 0) || math.IsNaN(agdd[i]) || math.IsInf(agdd[i], 0) {
			return nil, fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}

	variants, err := variantsFor(ndvi, agdd, opts)
	if err != nil {
		return nil, err
	}
	if len(ndvi) < len(variants[0].start) {
		return nil, fmt.Errorf("%w: %d samples for %d parameters", ErrTooFewSamples, len(ndvi), len(variants[0].start))
	}

	var best *Result
	for _, v := range variants {
		settings := defaultSettings(len(v.start))
		if opts.MaxEvaluations > 0 {
			settings.MaxEvaluations = opts.MaxEvaluations
		}
		sol := levenbergMarquardt(v.residual, len(ndvi), v.start, settings)
		res := &Result{
			Model:       opts.Model,
			Orientation: v.orientation,
			RMSE:        math.Sqrt(stat.PopVariance(sol.Residuals, nil)),
			Params:      sol.Params,
			Covariance:  sol.Covariance,
			Diagnostics: Diagnostics{
				Evaluations: sol.Evaluations,
				Iterations:  sol.Iterations,
				Residuals:   sol.Residuals,
				Message:     sol.Status.String(),
			},
			Status: sol.Status,
		}
		// ties go to the later variant
		if best == nil || !(best.RMSE < res.RMSE) {
			best = res
		}
	}

	if opts.Strict && !best.Status.Success() {
		return best, fmt.Errorf("%w: %s", ErrFitDidNotConverge, best.Status)
	}
	return best, nil
}

func variantsFor(ndvi, agdd []float64, opts Options) ([]variant, error) {
	switch opts.Model {
	case ModelQuadratic:
		return []variant{{
			orientation: OrientationAuto,
			start:       make([]float64, 3),
			residual: func(dst, p []float64) {
				for i, x := range agdd {
					dst[i] = p[0]*x*x + p[1]*x + p[2] - ndvi[i]
				}
			},
		}}, nil
	case ModelDoubleLogistic:
		var orientations []Orientation
		switch opts.Orientation {
		case OrientationAuto:
			orientations = []Orientation{OrientationRising, OrientationFalling}
		case OrientationRising, OrientationFalling:
			orientations = []Orientation{opts.Orientation}
		default:
			return nil, fmt.Errorf("unknown orientation %s", opts.Orientation)
		}
		variants := make([]variant, 0, len(orientations))
		for _, o := range orientations {
			variants = append(variants, doubleLogistic(ndvi, agdd, o))
		}
		return variants, nil
	default:
		return nil, fmt.Errorf("unknown model %s", opts.Model)
	}
}

// doubleLogistic builds w + (m-w)*g (rising) or m - (m-w)*g (falling) with
// g(p, x) = 1/(1+exp(-p0*(x-p1))) + 1/(1+exp(p2*(x-p3))) - 1.
func doubleLogistic(ndvi, agdd []float64, o Orientation) variant {
	lo, hi := floats.Min(ndvi), floats.Max(ndvi)
	span := hi - lo
	base, sign := lo, 1.0
	if o == OrientationFalling {
		base, sign = hi, -1.0
	}
	return variant{
		orientation: o,
		start:       make([]float64, 4),
		residual: func(dst, p []float64) {
			for i, x := range agdd {
				// written so that the two orientations on mirrored data give
				// residuals of exactly opposite sign
				dst[i] = sign*(span*logisticPair(p, x)) - (ndvi[i] - base)
			}
		},
	}
}

func logisticPair(p []float64, x float64) float64 {
	return 1/(1+math.Exp(-p[0]*(x-p[1]))) + 1/(1+math.Exp(p[2]*(x-p[3]))) - 1
}

// Evaluate returns the fitted curve at x.
func (r *Result) Evaluate(ndvi []float64, x float64) float64 {
	p := r.Params
	switch r.Model {
	case ModelQuadratic:
		return p[0]*x*x + p[1]*x + p[2]
	default:
		lo, hi := floats.Min(ndvi), floats.Max(ndvi)
		if r.Orientation == OrientationFalling {
			return hi - (hi-lo)*logisticPair(p, x)
		}
		return lo + (hi-lo)*logisticPair(p, x)
	}
}
