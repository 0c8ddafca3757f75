package overlay

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/sectorbl/pkg/formulas"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// gradStop ends Newton iterations once the gradient norm drops below it.
	gradStop = 1e-9
	// stationaryTol bounds the relative gradient norm accepted after a stalled line search.
	stationaryTol = 1e-6
)

// LogisticRegression is a binary classifier with an L2 penalty on the
// coefficients (the intercept is not penalized). C is the inverse
// regularization strength.
type LogisticRegression struct {
	C       float64
	MaxIter int

	Coef      []float64
	Intercept float64
}

// NewLogisticRegression returns an unfitted classifier with C=1.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1.0, MaxIter: 2000}
}

// logLoss returns log(1+e^z) without overflow.
func logLoss(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

// Fit minimizes C*sum(logloss) + 0.5*|coef|^2 with Newton's method. The
// objective is strictly convex, so a line search that stalls at a point with a
// vanishing gradient is accepted as converged.
func (m *LogisticRegression) Fit(X [][]float64, y []bool) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("logistic: %d rows for %d labels", len(X), len(y))
	}
	dim := len(X[0])
	target := make([]float64, len(y))
	for i, label := range y {
		if label {
			target[i] = 1
		}
	}

	// params = coef..., intercept
	linear := func(params, row []float64) float64 {
		z := params[dim]
		for j, v := range row {
			z += params[j] * v
		}
		return z
	}
	objective := func(params []float64) float64 {
		loss := 0.0
		for i, row := range X {
			z := linear(params, row)
			loss += logLoss(z) - target[i]*z
		}
		reg := 0.0
		for j := 0; j < dim; j++ {
			reg += params[j] * params[j]
		}
		return m.C*loss + 0.5*reg
	}
	gradient := func(grad, params []float64) {
		for j := range grad {
			grad[j] = 0
		}
		for i, row := range X {
			r := formulas.Sigmoid(linear(params, row)) - target[i]
			for j, v := range row {
				grad[j] += m.C * r * v
			}
			grad[dim] += m.C * r
		}
		for j := 0; j < dim; j++ {
			grad[j] += params[j]
		}
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: gradient,
		Hess: func(hess *mat.SymDense, params []float64) {
			n := dim + 1
			for j := 0; j < n; j++ {
				for k := j; k < n; k++ {
					hess.SetSym(j, k, 0)
				}
			}
			for _, row := range X {
				p := formulas.Sigmoid(linear(params, row))
				w := m.C * p * (1 - p)
				for j := 0; j < n; j++ {
					xj := 1.0
					if j < dim {
						xj = row[j]
					}
					for k := j; k < n; k++ {
						xk := 1.0
						if k < dim {
							xk = row[k]
						}
						hess.SetSym(j, k, hess.At(j, k)+w*xj*xk)
					}
				}
			}
			for j := 0; j < dim; j++ {
				hess.SetSym(j, j, hess.At(j, j)+1)
			}
		},
	}

	settings := &optimize.Settings{MajorIterations: m.MaxIter}
	result, err := optimize.Minimize(problem, make([]float64, dim+1), settings, &optimize.Newton{GradStopThreshold: gradStop})
	if result == nil {
		return fmt.Errorf("logistic fit failed: %w", err)
	}
	for _, v := range result.X {
		if !formulas.IsFinite(v) {
			return errors.New("logistic fit produced non-finite coefficients")
		}
	}
	if err != nil {
		grad := make([]float64, dim+1)
		gradient(grad, result.X)
		if norm := floats.Norm(grad, math.Inf(1)); norm > stationaryTol*(1+math.Abs(objective(result.X))) {
			return fmt.Errorf("logistic fit failed (gradient %.3g): %w", norm, err)
		}
	}

	m.Coef = append([]float64(nil), result.X[:dim]...)
	m.Intercept = result.X[dim]
	return nil
}

// PredictProba returns P(label = true | x).
func (m *LogisticRegression) PredictProba(x []float64) float64 {
	z := m.Intercept
	for j, v := range x {
		z += m.Coef[j] * v
	}
	return formulas.Sigmoid(z)
}
