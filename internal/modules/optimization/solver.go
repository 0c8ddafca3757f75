package optimization

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/sectorbl/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

// Solver finds the weights maximizing (mu'w - rf) / sqrt(w'Sw) subject to
// lower <= w <= upper and sum(w) = 1.
type Solver interface {
	MaxSharpe(mu []float64, cov mat.Symmetric, lower, upper []float64, riskFree float64) ([]float64, error)
}

// ErrNoPositiveExcessReturn is returned when no asset beats the risk-free rate.
var ErrNoPositiveExcessReturn = errors.New("at least one asset must have an expected return exceeding the risk-free rate")

const feasibilityTol = 1e-9

// validateProblem checks dimensions, finiteness and feasibility of the box.
func validateProblem(mu []float64, cov mat.Symmetric, lower, upper []float64, riskFree float64) error {
	n := len(mu)
	if n == 0 {
		return errors.New("empty problem")
	}
	if cov.SymmetricDim() != n || len(lower) != n || len(upper) != n {
		return fmt.Errorf("dimension mismatch: mu=%d cov=%d lower=%d upper=%d", n, cov.SymmetricDim(), len(lower), len(upper))
	}
	sumLower, sumUpper := 0.0, 0.0
	anyAbove := false
	for i := 0; i < n; i++ {
		if !formulas.IsFinite(mu[i]) {
			return fmt.Errorf("non-finite expected return at %d", i)
		}
		if lower[i] > upper[i] {
			return fmt.Errorf("lower bound above upper bound at %d", i)
		}
		for j := 0; j < n; j++ {
			if !formulas.IsFinite(cov.At(i, j)) {
				return fmt.Errorf("non-finite covariance at (%d,%d)", i, j)
			}
		}
		sumLower += lower[i]
		sumUpper += upper[i]
		if mu[i] > riskFree {
			anyAbove = true
		}
	}
	if sumUpper < 1-feasibilityTol || sumLower > 1+feasibilityTol {
		return fmt.Errorf("infeasible bounds: sum(lower)=%g sum(upper)=%g", sumLower, sumUpper)
	}
	if !anyAbove {
		return ErrNoPositiveExcessReturn
	}
	return nil
}

// ProjectCappedSimplex returns the Euclidean projection of v onto
// {w : lower <= w <= upper, sum(w) = 1}. The bounds must be feasible.
func ProjectCappedSimplex(v, lower, upper []float64) []float64 {
	n := len(v)
	sumAt := func(tau float64) float64 {
		s := 0.0
		for i := 0; i < n; i++ {
			s += formulas.Clamp(v[i]-tau, lower[i], upper[i])
		}
		return s
	}

	// sum is non-increasing in tau; bracket the root
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		lo = math.Min(lo, v[i]-upper[i])
		hi = math.Max(hi, v[i]-lower[i])
	}
	for iter := 0; iter < 200 && hi-lo > 1e-15; iter++ {
		mid := 0.5 * (lo + hi)
		if sumAt(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	tau := 0.5 * (lo + hi)

	out := make([]float64, n)
	for i := range out {
		out[i] = formulas.Clamp(v[i]-tau, lower[i], upper[i])
	}
	return out
}

// ProjectedGradientSolver maximizes the Sharpe ratio by projected gradient
// ascent over the capped simplex with Armijo backtracking. The ratio is
// pseudo-concave where the excess return is positive, so a stationary point
// found there is the global maximum.
type ProjectedGradientSolver struct {
	MaxIter int
	Tol     float64
}

// NewProjectedGradientSolver returns a solver with default limits.
func NewProjectedGradientSolver() *ProjectedGradientSolver {
	return &ProjectedGradientSolver{MaxIter: 20000, Tol: 1e-12}
}

// MaxSharpe implements Solver.
func (s *ProjectedGradientSolver) MaxSharpe(mu []float64, cov mat.Symmetric, lower, upper []float64, riskFree float64) ([]float64, error) {
	if err := validateProblem(mu, cov, lower, upper, riskFree); err != nil {
		return nil, err
	}
	n := len(mu)

	start := make([]float64, n)
	for i := range start {
		start[i] = 1 / float64(n)
	}
	w := ProjectCappedSimplex(start, lower, upper)

	sharpe := func(x []float64) (float64, float64, []float64) {
		sx := make([]float64, n)
		ret, variance := 0.0, 0.0
		for i := 0; i < n; i++ {
			ret += mu[i] * x[i]
			for j := 0; j < n; j++ {
				sx[i] += cov.At(i, j) * x[j]
			}
		}
		for i := 0; i < n; i++ {
			variance += x[i] * sx[i]
		}
		return ret - riskFree, math.Sqrt(math.Max(variance, 1e-20)), sx
	}

	step := 1.0
	grad := make([]float64, n)
	converged := false
	for iter := 0; iter < s.MaxIter; iter++ {
		excess, sd, sx := sharpe(w)
		f := excess / sd
		for i := 0; i < n; i++ {
			grad[i] = (mu[i]-riskFree)/sd - excess*sx[i]/(sd*sd*sd)
		}

		accepted := false
		var next []float64
		for bt := 0; bt < 60; bt++ {
			trial := make([]float64, n)
			for i := range trial {
				trial[i] = w[i] + step*grad[i]
			}
			next = ProjectCappedSimplex(trial, lower, upper)

			ascent := 0.0
			for i := range next {
				ascent += grad[i] * (next[i] - w[i])
			}
			e2, sd2, _ := sharpe(next)
			if e2/sd2 >= f+1e-4*ascent {
				accepted = true
				break
			}
			step *= 0.5
		}
		if !accepted {
			converged = true
			break
		}

		moved := 0.0
		for i := range next {
			moved = math.Max(moved, math.Abs(next[i]-w[i]))
		}
		w = next
		if moved < s.Tol {
			converged = true
			break
		}
		step = math.Min(step*2, 1e3)
	}

	if !converged {
		// Accept a point that is stationary to within a loose tolerance
		excess, sd, sx := sharpe(w)
		trial := make([]float64, n)
		for i := range trial {
			trial[i] = w[i] + (mu[i]-riskFree)/sd - excess*sx[i]/(sd*sd*sd)
		}
		residual := 0.0
		for i, v := range ProjectCappedSimplex(trial, lower, upper) {
			residual = math.Max(residual, math.Abs(v-w[i]))
		}
		if residual > 1e-6 {
			return nil, fmt.Errorf("projected gradient did not converge in %d iterations (residual %g)", s.MaxIter, residual)
		}
	}
	for _, v := range w {
		if !formulas.IsFinite(v) {
			return nil, errors.New("projected gradient produced non-finite weights")
		}
	}
	return w, nil
}
