package solver

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// CurrentInjection is Newton-Raphson on the rectangular current
// mismatch. PQ rows balance I - conj(S/V); PV rows hold the active power
// and the squared magnitude. Convergence is judged on the power mismatch.
type CurrentInjection struct{}

func (ci *CurrentInjection) Type() Type { return NRI }

func (ci *CurrentInjection) Solve(in *Input) Result {
	start := time.Now()

	nb := len(in.V0)
	v := append([]complex128(nil), in.V0...)
	vset := make([]float64, nb)
	for _, i := range in.Pv {
		vset[i] = cmplx.Abs(in.V0[i])
	}

	pos := fill(nb, -1)
	for k, i := range in.Pqpv {
		pos[i] = k
	}
	isPv := make([]bool, nb)
	for _, i := range in.Pv {
		isPv[i] = true
	}

	current := func() []complex128 {
		cur := in.Ybus.MulVec(v)
		if in.Ibus != nil {
			for i := range cur {
				cur[i] -= in.Ibus[i]
			}
		}
		return cur
	}

	n := 2 * len(in.Pqpv)
	norm := MismatchNorm(in, v)
	converged := norm < in.Tolerance
	iter := 0

	for !converged && iter < in.MaxIter {
		iter++
		cur := current()

		f := make([]float64, n)
		t := matrix.NewTriplets(n, n)
		for p, i := range in.Pqpv {
			re, im := 2*p, 2*p+1
			cols, vals := in.Ybus.Row(i)

			if isPv[i] {
				s := v[i] * cmplx.Conj(cur[i])
				f[re] = real(s - in.Sbus[i])
				f[im] = real(v[i])*real(v[i]) + imag(v[i])*imag(v[i]) - vset[i]*vset[i]
				for idx, k := range cols {
					q := pos[k]
					if q < 0 {
						continue
					}
					dse := v[i] * cmplx.Conj(vals[idx])
					dsf := -1i * v[i] * cmplx.Conj(vals[idx])
					t.Add(re, 2*q, real(dse))
					t.Add(re, 2*q+1, real(dsf))
				}
				dse := cmplx.Conj(cur[i])
				dsf := 1i * cmplx.Conj(cur[i])
				t.Add(re, 2*p, real(dse))
				t.Add(re, 2*p+1, real(dsf))
				t.Add(im, 2*p, 2*real(v[i]))
				t.Add(im, 2*p+1, 2*imag(v[i]))
				continue
			}

			g := cur[i] - cmplx.Conj(in.Sbus[i]/v[i])
			f[re] = real(g)
			f[im] = imag(g)
			for idx, k := range cols {
				q := pos[k]
				if q < 0 {
					continue
				}
				dge := vals[idx]
				dgf := 1i * vals[idx]
				t.Add(re, 2*q, real(dge))
				t.Add(im, 2*q, imag(dge))
				t.Add(re, 2*q+1, real(dgf))
				t.Add(im, 2*q+1, imag(dgf))
			}
			d := cmplx.Conj(in.Sbus[i]) / (cmplx.Conj(v[i]) * cmplx.Conj(v[i]))
			t.Add(re, 2*p, real(d))
			t.Add(im, 2*p, imag(d))
			t.Add(re, 2*p+1, real(-1i*d))
			t.Add(im, 2*p+1, imag(-1i*d))
		}

		dx, err := t.CSR().Solve(f)
		if err != nil {
			break
		}
		for p, i := range in.Pqpv {
			v[i] -= complex(dx[2*p], dx[2*p+1])
		}

		norm = MismatchNorm(in, v)
		if math.IsNaN(norm) {
			break
		}
		converged = norm < in.Tolerance
	}

	return finish(NRI, in, in.Ybus, v, converged, norm, iter, start)
}
