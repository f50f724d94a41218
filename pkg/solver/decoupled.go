package solver

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// FastDecoupled is the XB fast-decoupled method. B' comes from the series
// admittances, B'' from the full admittance matrix; both are factored once.
type FastDecoupled struct{}

func (fd *FastDecoupled) Type() Type { return FD }

func negImag(m *matrix.CSR) *matrix.RealCSR {
	return m.Map(func(v complex128) complex128 { return complex(-imag(v), 0) }).Real()
}

func (fd *FastDecoupled) Solve(in *Input) Result {
	start := time.Now()

	nb := len(in.V0)
	va := make([]float64, nb)
	vm := make([]float64, nb)
	for i, v0 := range in.V0 {
		va[i] = cmplx.Phase(v0)
		vm[i] = cmplx.Abs(v0)
	}
	v := make([]complex128, nb)
	compose := func() {
		for i := range v {
			v[i] = cmplx.Rect(vm[i], va[i])
		}
	}
	compose()

	mismatch := func() ([]float64, []float64) {
		s := Power(in.Ybus, v, in.Ibus)
		dp := make([]float64, len(in.Pqpv))
		for k, i := range in.Pqpv {
			dp[k] = real(s[i] - in.Sbus[i])
		}
		dq := make([]float64, len(in.Pq))
		for k, i := range in.Pq {
			dq[k] = imag(s[i] - in.Sbus[i])
		}
		return dp, dq
	}

	dp, dq := mismatch()
	norm := math.Max(Norm(dp), Norm(dq))
	converged := norm < in.Tolerance
	iter := 0
	if converged {
		return finish(FD, in, in.Ybus, v, converged, norm, iter, start)
	}

	var bp, bpp *matrix.System
	var err error
	if len(in.Pqpv) > 0 {
		if bp, err = negImag(in.Yseries.Slice(in.Pqpv, in.Pqpv)).Factorize(); err != nil {
			return finish(FD, in, in.Ybus, v, false, norm, iter, start)
		}
		defer bp.Destroy()
	}
	if len(in.Pq) > 0 {
		if bpp, err = negImag(in.Ybus.Slice(in.Pq, in.Pq)).Factorize(); err != nil {
			return finish(FD, in, in.Ybus, v, false, norm, iter, start)
		}
		defer bpp.Destroy()
	}

	for !converged && iter < in.MaxIter {
		iter++

		// P half-iteration
		if bp != nil {
			for k, i := range in.Pqpv {
				dp[k] /= vm[i]
			}
			dva, err := bp.SolveVector(dp)
			if err != nil {
				break
			}
			for k, i := range in.Pqpv {
				va[i] -= dva[k]
			}
			compose()
		}

		dp, dq = mismatch()
		norm = math.Max(Norm(dp), Norm(dq))
		if converged = norm < in.Tolerance; converged {
			break
		}

		// Q half-iteration
		if bpp != nil {
			for k, i := range in.Pq {
				dq[k] /= vm[i]
			}
			dvm, err := bpp.SolveVector(dq)
			if err != nil {
				break
			}
			for k, i := range in.Pq {
				vm[i] -= dvm[k]
			}
			compose()
		}

		dp, dq = mismatch()
		norm = math.Max(Norm(dp), Norm(dq))
		if math.IsNaN(norm) {
			break
		}
		converged = norm < in.Tolerance
	}

	return finish(FD, in, in.Ybus, v, converged, norm, iter, start)
}
