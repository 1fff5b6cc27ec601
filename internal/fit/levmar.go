package fit

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Status reports why the solver stopped.
type Status int

const (
	// StatusInvalid is never returned by a finished solve.
	StatusInvalid Status = iota
	StatusConvergedCost
	StatusConvergedParams
	StatusConvergedBoth
	StatusConvergedGradient
	StatusMaxEvaluations
	StatusStalled
)

func (s Status) String() string {
	switch s {
	case StatusConvergedCost:
		return "converged: relative reduction in the sum of squares is at most ftol"
	case StatusConvergedParams:
		return "converged: relative change in the parameters is at most xtol"
	case StatusConvergedBoth:
		return "converged: both the sum of squares and the parameters are within tolerance"
	case StatusConvergedGradient:
		return "converged: the gradient is orthogonal to the residuals within gtol"
	case StatusMaxEvaluations:
		return "stopped: maximum number of function evaluations reached"
	case StatusStalled:
		return "stopped: no further reduction in the sum of squares is possible"
	default:
		return "invalid"
	}
}

// Success reports whether s is one of the converged states.
func (s Status) Success() bool {
	return s >= StatusConvergedCost && s <= StatusConvergedGradient
}

// solverSettings mirror the MINPACK lmdif defaults.
type solverSettings struct {
	FTol float64
	XTol float64
	GTol float64
	// MaxEvaluations bounds the residual calls of the solve, Jacobian
	// columns included. The final covariance estimate is not counted.
	MaxEvaluations int
}

const defaultTol = 1.49012e-8

func defaultSettings(n int) solverSettings {
	return solverSettings{FTol: defaultTol, XTol: defaultTol, MaxEvaluations: 200 * (n + 1)}
}

type solution struct {
	Params      []float64
	Residuals   []float64
	Covariance  *mat.SymDense
	Evaluations int
	Iterations  int
	Status      Status
}

// levenbergMarquardt minimises the sum of squares of residual(p) starting
// from p0. residual writes m residuals into dst.
func levenbergMarquardt(residual func(dst, p []float64), m int, p0 []float64, s solverSettings) solution {
	n := len(p0)
	evals := 0
	eval := func(dst, p []float64) {
		evals++
		residual(dst, p)
	}

	p := append([]float64(nil), p0...)
	r := make([]float64, m)
	eval(r, p)
	cost := floats.Dot(r, r)

	jac := mat.NewDense(m, n, nil)
	var jtj mat.SymDense
	grad := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)
	a := mat.NewSymDense(n, nil)
	pNew := make([]float64, n)
	rNew := make([]float64, m)

	lambda := 1e-3
	iterations := 0
	status := StatusInvalid

	for status == StatusInvalid {
		if cost == 0 {
			status = StatusConvergedCost
			break
		}
		if evals+n > s.MaxEvaluations {
			status = StatusMaxEvaluations
			break
		}
		iterations++
		fd.Jacobian(jac, func(y, x []float64) { eval(y, x) }, p, &fd.JacobianSettings{
			Formula:     fd.Forward,
			OriginValue: r,
		})
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		if mat.Norm(grad, math.Inf(1)) <= s.GTol {
			status = StatusConvergedGradient
			break
		}

		maxDiag := 0.0
		for i := 0; i < n; i++ {
			maxDiag = math.Max(maxDiag, jtj.At(i, i))
		}
		floor := math.Max(maxDiag*1e-12, 1e-300)

		for {
			if evals >= s.MaxEvaluations {
				status = StatusMaxEvaluations
				break
			}
			a.CopySym(&jtj)
			for i := 0; i < n; i++ {
				a.SetSym(i, i, jtj.At(i, i)+lambda*math.Max(jtj.At(i, i), floor))
			}
			var chol mat.Cholesky
			if !chol.Factorize(a) {
				lambda *= 10
				if lambda > 1e32 {
					status = StatusStalled
					break
				}
				continue
			}
			if err := chol.SolveVecTo(step, grad); err != nil {
				lambda *= 10
				continue
			}
			for i := range pNew {
				pNew[i] = p[i] - step.AtVec(i)
			}
			eval(rNew, pNew)
			costNew := floats.Dot(rNew, rNew)

			stepSmall := mat.Norm(step, 2) <= s.XTol*(floats.Norm(p, 2)+s.XTol)
			if costNew < cost && !math.IsNaN(costNew) {
				costSmall := cost-costNew <= s.FTol*cost
				copy(p, pNew)
				copy(r, rNew)
				cost = costNew
				lambda = math.Max(lambda/10, 1e-12)
				switch {
				case costSmall && stepSmall:
					status = StatusConvergedBoth
				case costSmall:
					status = StatusConvergedCost
				case stepSmall:
					status = StatusConvergedParams
				}
				break
			}
			if stepSmall {
				status = StatusConvergedParams
				break
			}
			lambda *= 10
			if lambda > 1e32 {
				status = StatusStalled
				break
			}
		}
		if status == StatusInvalid && evals >= s.MaxEvaluations {
			status = StatusMaxEvaluations
		}
	}

	return solution{
		Params:      p,
		Residuals:   r,
		Covariance:  covariance(residual, m, p, r),
		Evaluations: evals,
		Iterations:  iterations,
		Status:      status,
	}
}

// covariance returns (JᵀJ)⁻¹ at p, or nil when JᵀJ is singular.
func covariance(residual func(dst, p []float64), m int, p, r []float64) *mat.SymDense {
	n := len(p)
	jac := mat.NewDense(m, n, nil)
	fd.Jacobian(jac, func(y, x []float64) { residual(y, x) }, p, &fd.JacobianSettings{
		Formula:     fd.Forward,
		OriginValue: r,
	})
	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())

	var chol mat.Cholesky
	if !chol.Factorize(&jtj) {
		return nil
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil
	}
	return &inv
}
