package optimization

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func diagCov() *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		0.04, 0, 0,
		0, 0.09, 0,
		0, 0, 0.16,
	})
}

func sharpeOf(w, mu []float64, cov mat.Symmetric, rf float64) float64 {
	ret, variance := 0.0, 0.0
	for i := range w {
		ret += mu[i] * w[i]
		for j := range w {
			variance += w[i] * w[j] * cov.At(i, j)
		}
	}
	return (ret - rf) / math.Sqrt(variance)
}

func ones(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestProjectCappedSimplex(t *testing.T) {
	lower, upper := ones(3, 0), ones(3, 0.5)

	w := ProjectCappedSimplex([]float64{0.9, 0.3, -0.2}, lower, upper)
	sum := 0.0
	for _, v := range w {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 0.5)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, 0.5, w[0], 1e-12)

	feasible := []float64{0.2, 0.3, 0.5}
	same := ProjectCappedSimplex(feasible, lower, upper)
	for i := range feasible {
		assert.InDelta(t, feasible[i], same[i], 1e-12)
	}
}

func TestSolversMatchTangencyPortfolio(t *testing.T) {
	// excess returns 0.04, 0.06, 0.08 over variances 0.04, 0.09, 0.16
	// give S^-1 (mu - rf) proportional to 1, 2/3, 1/2
	mu := []float64{0.06, 0.08, 0.10}
	expected := []float64{6.0 / 13, 4.0 / 13, 3.0 / 13}

	solvers := map[string]struct {
		solver Solver
		tol    float64
	}{
		"projected gradient": {NewProjectedGradientSolver(), 1e-4},
		"penalty":            {NewPenaltySolver(), 1e-2},
	}
	for name, tc := range solvers {
		t.Run(name, func(t *testing.T) {
			w, err := tc.solver.MaxSharpe(mu, diagCov(), ones(3, 0), ones(3, 1), 0.02)
			require.NoError(t, err)
			for i := range expected {
				assert.InDelta(t, expected[i], w[i], tc.tol)
			}
		})
	}
}

func TestProjectedGradientRespectsCap(t *testing.T) {
	mu := []float64{0.06, 0.08, 0.10}
	cov := diagCov()
	solver := NewProjectedGradientSolver()

	w, err := solver.MaxSharpe(mu, cov, ones(3, 0), ones(3, 0.4), 0.02)
	require.NoError(t, err)

	sum := 0.0
	for _, v := range w {
		assert.GreaterOrEqual(t, v, -1e-12)
		assert.LessOrEqual(t, v, 0.4+1e-12)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.4, w[0], 1e-5)

	best := sharpeOf(w, mu, cov, 0.02)
	for _, alt := range [][]float64{{0.4, 0.4, 0.2}, {0.4, 0.2, 0.4}, {0.34, 0.33, 0.33}, {0.4, 0.35, 0.25}} {
		assert.GreaterOrEqual(t, best, sharpeOf(alt, mu, cov, 0.02)-1e-9)
	}
}

func TestSolverErrors(t *testing.T) {
	solver := NewProjectedGradientSolver()
	mu := []float64{0.06, 0.08, 0.10}

	_, err := solver.MaxSharpe(mu, diagCov(), ones(3, 0), ones(3, 0.2), 0.02)
	assert.Error(t, err, "three assets capped at 20% cannot be fully invested")

	_, err = solver.MaxSharpe(mu, diagCov(), ones(3, 0.4), ones(3, 1), 0.02)
	assert.Error(t, err, "floors above one")

	_, err = solver.MaxSharpe([]float64{0.01, 0.01, 0.02}, diagCov(), ones(3, 0), ones(3, 1), 0.02)
	assert.True(t, errors.Is(err, ErrNoPositiveExcessReturn))

	_, err = solver.MaxSharpe([]float64{0.1, 0.1}, diagCov(), ones(3, 0), ones(3, 1), 0.02)
	assert.Error(t, err)
}

type stubSolver struct {
	w   []float64
	err error
}

func (s stubSolver) MaxSharpe([]float64, mat.Symmetric, []float64, []float64, float64) ([]float64, error) {
	return s.w, s.err
}

func TestFallbackSolver(t *testing.T) {
	chain := FallbackSolver{stubSolver{err: errors.New("first")}, stubSolver{w: []float64{1}}}
	w, err := chain.MaxSharpe(nil, nil, nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, w)

	stop := FallbackSolver{stubSolver{err: ErrNoPositiveExcessReturn}, stubSolver{w: []float64{1}}}
	_, err = stop.MaxSharpe(nil, nil, nil, nil, 0)
	assert.True(t, errors.Is(err, ErrNoPositiveExcessReturn))

	_, err = FallbackSolver{}.MaxSharpe(nil, nil, nil, nil, 0)
	assert.Error(t, err)
}
