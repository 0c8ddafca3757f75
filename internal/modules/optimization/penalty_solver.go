package optimization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// PenaltySolver maximizes the Sharpe ratio with gonum's BFGS (Nelder-Mead as
// a second attempt) on box-clamped weights, enforcing the budget with a
// quadratic penalty. The result is projected onto the capped simplex.
type PenaltySolver struct {
	PenaltyWeight float64
}

// NewPenaltySolver returns a solver with the default penalty weight.
func NewPenaltySolver() *PenaltySolver {
	return &PenaltySolver{PenaltyWeight: 1000}
}

func clampToBounds(x, lower, upper []float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
	return proj
}

// MaxSharpe implements Solver.
func (s *PenaltySolver) MaxSharpe(mu []float64, cov mat.Symmetric, lower, upper []float64, riskFree float64) ([]float64, error) {
	if err := validateProblem(mu, cov, lower, upper, riskFree); err != nil {
		return nil, err
	}
	n := len(mu)
	penalty := s.PenaltyWeight

	moments := func(x []float64) (float64, float64) {
		var returnVal, variance float64
		for i := 0; i < n; i++ {
			returnVal += mu[i] * x[i]
			for j := 0; j < n; j++ {
				variance += x[i] * x[j] * cov.At(i, j)
			}
		}
		return returnVal - riskFree, math.Sqrt(math.Max(variance, 1e-10))
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := clampToBounds(x, lower, upper)
			excess, stdDev := moments(xProj)

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			return -excess/stdDev + penalty*(sum-1)*(sum-1)
		},
		Grad: func(grad, x []float64) {
			xProj := clampToBounds(x, lower, upper)
			excess, stdDev := moments(xProj)

			sum := 0.0
			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * cov.At(i, j) * xProj[j]
				}
				grad[i] = -(mu[i]-riskFree)/stdDev + excess*dVariance/(2*stdDev*stdDev*stdDev)
				sum += xProj[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penalty * (sum - 1)
			}
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}
	initial = ProjectCappedSimplex(initial, lower, upper)

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
	}

	if result.Status != optimize.Success && result.Status != optimize.GradientThreshold && result.Status != optimize.FunctionConvergence {
		return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
	}

	return ProjectCappedSimplex(clampToBounds(result.X, lower, upper), lower, upper), nil
}

// FallbackSolver tries each solver in order and returns the first success.
type FallbackSolver []Solver

// MaxSharpe implements Solver.
func (f FallbackSolver) MaxSharpe(mu []float64, cov mat.Symmetric, lower, upper []float64, riskFree float64) ([]float64, error) {
	var lastErr error
	for _, s := range f {
		w, err := s.MaxSharpe(mu, cov, lower, upper, riskFree)
		if err == nil {
			return w, nil
		}
		lastErr = err
		// Problem-level errors are not going to be fixed by another solver
		if errors.Is(err, ErrNoPositiveExcessReturn) {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no solver configured")
	}
	return nil, lastErr
}
