package solver

import (
	"math/cmplx"
	"time"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// Linear is the DC approximation: flat magnitudes, angles from the series
// susceptances. The result is always reported converged; its error is the
// residual of the linear system.
type Linear struct{}

func (dc *Linear) Type() Type { return DC }

func (dc *Linear) Solve(in *Input) Result {
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

	if len(in.Pqpv) == 0 {
		compose()
		return finish(DC, in, in.Ybus, v, true, 0, 0, start)
	}

	b := negImag(in.Yseries)
	brr := negImag(in.Yseries.Slice(in.Pqpv, in.Pqpv))
	brs := negImag(in.Yseries.Slice(in.Pqpv, in.Vd))

	thetaS := make([]float64, len(in.Vd))
	for k, i := range in.Vd {
		thetaS[k] = va[i]
	}
	coupling := brs.MulVec(thetaS)
	rhs := make([]float64, len(in.Pqpv))
	for k, i := range in.Pqpv {
		rhs[k] = real(in.Sbus[i]) - coupling[k]
	}

	theta, err := brr.Solve(rhs)
	if err != nil {
		compose()
		return finish(DC, in, in.Ybus, v, false, Norm(rhs), 0, start)
	}
	for k, i := range in.Pqpv {
		va[i] = theta[k]
	}
	compose()

	// Linear system residual B·θ - P on the solved rows
	p := b.MulVec(va)
	res := make([]float64, len(in.Pqpv))
	for k, i := range in.Pqpv {
		res[k] = p[i] - real(in.Sbus[i])
	}

	return finish(DC, in, in.Ybus, v, true, Norm(res), 1, start)
}

// LinearAC is the linear AC power flow: a single solve for the pvpq angles
// and the pq magnitudes. It reports convergence against the AC mismatch.
type LinearAC struct{}

func (la *LinearAC) Type() Type { return LACPF }

func (la *LinearAC) Solve(in *Input) Result {
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

	npvpq, npq := len(in.Pqpv), len(in.Pq)
	if npvpq == 0 {
		compose()
		return finish(LACPF, in, in.Ybus, v, true, 0, 0, start)
	}

	g := in.Ybus.Real()
	bb := in.Ybus.Imag()
	gs := in.Yseries.Real()
	bs := in.Yseries.Imag()

	colVa := fill(nb, -1)
	colVm := fill(nb, -1)
	for k, i := range in.Pqpv {
		colVa[i] = k
	}
	for k, i := range in.Pq {
		colVm[i] = npvpq + k
	}

	// Around the flat profile P = G·Vm - Bs·θ and Q = -Gs·θ - B·Vm.
	// Known magnitudes and angles move to the right-hand side.
	t := matrix.NewTriplets(npvpq+npq, npvpq+npq)
	rhs := make([]float64, npvpq+npq)
	magnitude := func(r int, m *matrix.RealCSR, i int, sign float64) {
		for idx := m.Indptr[i]; idx < m.Indptr[i+1]; idx++ {
			k := m.Indices[idx]
			if c := colVm[k]; c >= 0 {
				t.Add(r, c, sign*m.Data[idx])
			} else {
				rhs[r] -= sign * m.Data[idx] * vm[k]
			}
		}
	}
	angle := func(r int, m *matrix.RealCSR, i int) {
		for idx := m.Indptr[i]; idx < m.Indptr[i+1]; idx++ {
			k := m.Indices[idx]
			if c := colVa[k]; c >= 0 {
				t.Add(r, c, -m.Data[idx])
			} else {
				rhs[r] += m.Data[idx] * va[k]
			}
		}
	}

	for r, i := range in.Pqpv {
		rhs[r] += real(in.Sbus[i])
		magnitude(r, g, i, 1)
		angle(r, bs, i)
	}
	for k, i := range in.Pq {
		r := npvpq + k
		rhs[r] += imag(in.Sbus[i])
		magnitude(r, bb, i, -1)
		angle(r, gs, i)
	}

	x, err := t.CSR().Solve(rhs)
	if err != nil {
		compose()
		return finish(LACPF, in, in.Ybus, v, false, MismatchNorm(in, v), 0, start)
	}
	for k, i := range in.Pqpv {
		va[i] = x[k]
	}
	for k, i := range in.Pq {
		vm[i] = x[npvpq+k]
	}
	compose()

	norm := MismatchNorm(in, v)
	return finish(LACPF, in, in.Ybus, v, norm < in.Tolerance, norm, 1, start)
}
