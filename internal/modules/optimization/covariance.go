// Package optimization estimates the Black-Litterman equilibrium and solves for
// the allocation that maximizes the posterior Sharpe ratio under box constraints.
package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/sectorbl/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

// LedoitWolf estimates the covariance of daily returns (rows = days,
// columns = assets) shrunk toward a scaled identity with the Ledoit-Wolf
// optimal intensity, annualized by 252. It returns the matrix and the
// shrinkage intensity used.
func LedoitWolf(returns *mat.Dense) (*mat.SymDense, float64, error) {
	n, p := returns.Dims()
	if n < 2 || p == 0 {
		return nil, 0, fmt.Errorf("ledoit-wolf: need at least 2 observations, got %d", n)
	}

	// Demean columns
	x := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		mean := 0.0
		for i := 0; i < n; i++ {
			mean += returns.At(i, j)
		}
		mean /= float64(n)
		for i := 0; i < n; i++ {
			x.Set(i, j, returns.At(i, j)-mean)
		}
	}

	x2 := mat.NewDense(n, p, nil)
	x2.MulElem(x, x)

	// Maximum likelihood covariance (divides by n)
	emp := mat.NewSymDense(p, nil)
	emp.SymOuterK(1/float64(n), x.T())

	trace := mat.Trace(emp)
	mu := trace / float64(p)

	var xtx, x2tx2 mat.Dense
	xtx.Mul(x.T(), x)
	x2tx2.Mul(x2.T(), x2)

	betaRaw := mat.Sum(&x2tx2)
	deltaRaw := 0.0
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			v := xtx.At(i, j)
			deltaRaw += v * v
		}
	}
	deltaRaw /= float64(n) * float64(n)

	beta := (betaRaw/float64(n) - deltaRaw) / (float64(p) * float64(n))
	delta := (deltaRaw - 2*mu*trace + float64(p)*mu*mu) / float64(p)
	beta = math.Min(beta, delta)

	shrinkage := 0.0
	if beta != 0 && delta > 0 {
		shrinkage = beta / delta
	}

	out := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := (1 - shrinkage) * emp.At(i, j)
			if i == j {
				v += shrinkage * mu
			}
			out.SetSym(i, j, v*formulas.TradingDays)
		}
	}

	for i := 0; i < p; i++ {
		if !formulas.IsFinite(out.At(i, i)) {
			return nil, 0, fmt.Errorf("ledoit-wolf: non-finite variance for column %d", i)
		}
	}
	return out, shrinkage, nil
}

// ReturnsMatrix converts column-major price series into a days x assets matrix
// of simple daily returns.
func ReturnsMatrix(series [][]float64) *mat.Dense {
	if len(series) == 0 || len(series[0]) < 2 {
		return nil
	}
	rows := len(series[0]) - 1
	out := mat.NewDense(rows, len(series), nil)
	for j, s := range series {
		for i, r := range formulas.CalculateReturns(s) {
			out.Set(i, j, r)
		}
	}
	return out
}
