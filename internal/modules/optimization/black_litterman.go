package optimization

import (
	"errors"
	"fmt"

	"github.com/aristath/sectorbl/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

const (
	// idzorekZeroConfidenceOmega is the view variance used for a confidence of zero.
	idzorekZeroConfidenceOmega = 1e6
	idzorekMinConfidence       = 1e-16
)

// View is an absolute return view on one asset.
type View struct {
	Asset      int     // column in the covariance matrix
	Return     float64 // expected annual return
	Confidence float64 // in [0, 1]
}

// Posterior is the Black-Litterman posterior.
type Posterior struct {
	Returns []float64
	Cov     *mat.SymDense
}

// IdzorekOmega maps view confidences to view variances:
// omega_i = tau * ((1-c)/c) * P_i S P_i'. For absolute views P_i S P_i' is
// the asset's own variance.
func IdzorekOmega(cov mat.Symmetric, views []View, tau float64) ([]float64, error) {
	omega := make([]float64, len(views))
	for k, v := range views {
		c := v.Confidence
		if c < 0 || c > 1 {
			return nil, fmt.Errorf("view confidence %g outside [0, 1]", c)
		}
		if c < idzorekMinConfidence {
			omega[k] = idzorekZeroConfidenceOmega
			continue
		}
		omega[k] = tau * ((1 - c) / c) * cov.At(v.Asset, v.Asset)
	}
	return omega, nil
}

// BlackLitterman combines the prior pi with absolute views:
//
//	post = pi + tau S P' (P tau S P' + Omega)^-1 (Q - P pi)
//	postCov = S + tau S - tau S P' (P tau S P' + Omega)^-1 P tau S
func BlackLitterman(cov mat.Symmetric, pi []float64, views []View, tau float64) (*Posterior, error) {
	n := cov.SymmetricDim()
	if len(pi) != n {
		return nil, fmt.Errorf("black-litterman: pi has %d entries, covariance %d", len(pi), n)
	}
	if len(views) == 0 {
		return nil, errors.New("black-litterman: no views")
	}
	k := len(views)

	p := mat.NewDense(k, n, nil)
	q := mat.NewVecDense(k, nil)
	for i, v := range views {
		if v.Asset < 0 || v.Asset >= n {
			return nil, fmt.Errorf("black-litterman: view asset %d out of range", v.Asset)
		}
		p.Set(i, v.Asset, 1)
		q.SetVec(i, v.Return)
	}

	omega, err := IdzorekOmega(cov, views, tau)
	if err != nil {
		return nil, fmt.Errorf("black-litterman: %w", err)
	}

	// tau S P'  (n x k)
	var tauSigmaP mat.Dense
	tauSigmaP.Mul(cov, p.T())
	tauSigmaP.Scale(tau, &tauSigmaP)

	// A = P tau S P' + Omega  (k x k)
	var a mat.Dense
	a.Mul(p, &tauSigmaP)
	for i := 0; i < k; i++ {
		a.Set(i, i, a.At(i, i)+omega[i])
	}

	piVec := mat.NewVecDense(n, append([]float64(nil), pi...))
	var pPi, b mat.VecDense
	pPi.MulVec(p, piVec)
	b.SubVec(q, &pPi)

	var aInv mat.Dense
	if err := aInv.Inverse(&a); err != nil && !isConditionWarning(err) {
		return nil, fmt.Errorf("black-litterman: singular view system: %w", err)
	}

	var solved, adj mat.VecDense
	solved.MulVec(&aInv, &b)
	adj.MulVec(&tauSigmaP, &solved)

	post := make([]float64, n)
	for i := range post {
		post[i] = pi[i] + adj.AtVec(i)
		if !formulas.IsFinite(post[i]) {
			return nil, errors.New("black-litterman: non-finite posterior return")
		}
	}

	// M = tau S - tauSigmaP A^-1 tauSigmaP'
	var tmp, m mat.Dense
	tmp.Mul(&tauSigmaP, &aInv)
	m.Mul(&tmp, tauSigmaP.T())

	postCov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			mij := 0.5 * (m.At(i, j) + m.At(j, i))
			postCov.SetSym(i, j, cov.At(i, j)*(1+tau)-mij)
		}
	}
	return &Posterior{Returns: post, Cov: postCov}, nil
}

func isConditionWarning(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond) && formulas.IsFinite(float64(cond))
}
