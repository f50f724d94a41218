package solver

import (
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// Power returns the bus injections V·conj(Ybus·V - Ibus).
func Power(ybus *matrix.CSR, v, ibus []complex128) []complex128 {
	cur := ybus.MulVec(v)
	s := make([]complex128, len(v))
	for i := range v {
		if ibus != nil {
			cur[i] -= ibus[i]
		}
		s[i] = v[i] * cmplx.Conj(cur[i])
	}
	return s
}

// Residual packs the mismatch as [Re(pvpq), Im(pq)].
func Residual(scalc, sbus []complex128, pvpq, pq []int) []float64 {
	f := make([]float64, 0, len(pvpq)+len(pq))
	for _, i := range pvpq {
		f = append(f, real(scalc[i]-sbus[i]))
	}
	for _, i := range pq {
		f = append(f, imag(scalc[i]-sbus[i]))
	}
	return f
}

// Norm is the infinity norm, 0 for an empty vector.
func Norm(f []float64) float64 {
	if len(f) == 0 {
		return 0
	}
	return floats.Norm(f, math.Inf(1))
}

// MismatchNorm evaluates the AC power mismatch of v.
func MismatchNorm(in *Input, v []complex128) float64 {
	return Norm(Residual(Power(in.Ybus, v, in.Ibus), in.Sbus, in.Pqpv, in.Pq))
}

func finish(t Type, in *Input, ybus *matrix.CSR, v []complex128, converged bool, norm float64, iter int, start time.Time) Result {
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		norm = consts.HUGE_RESIDUAL
		converged = false
	}
	return Result{
		Method:     t,
		V:          v,
		Converged:  converged,
		Error:      norm,
		Scalc:      Power(ybus, v, in.Ibus),
		Iterations: iter,
		Elapsed:    time.Since(start),
	}
}

func fill(n, value int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = value
	}
	return s
}

// polar is the Newton state in polar coordinates: angles of pvpq buses and
// magnitudes of pq buses. When device-aware, the magnitude of a bus
// regulated by a controlled branch is fixed to its setpoint and the
// branch tap module takes its place in the state vector.
type polar struct {
	in     *Input
	ybus   *matrix.CSR
	va, vm []float64
	v      []complex128
	scalc  []complex128

	module []float64
	ctrl   []int
	colTap []int

	colVa, colVm []int
	rowP, rowQ   []int
	n            int
}

func newPolar(in *Input, deviceAware bool) *polar {
	nb := len(in.V0)
	p := &polar{
		in:    in,
		ybus:  in.Ybus,
		va:    make([]float64, nb),
		vm:    make([]float64, nb),
		v:     make([]complex128, nb),
		colVa: fill(nb, -1),
		colVm: fill(nb, -1),
		rowP:  fill(nb, -1),
		rowQ:  fill(nb, -1),
	}
	for i, v0 := range in.V0 {
		p.va[i] = cmplx.Phase(v0)
		p.vm[i] = cmplx.Abs(v0)
	}

	npvpq := len(in.Pqpv)
	for k, i := range in.Pqpv {
		p.colVa[i] = k
		p.rowP[i] = k
	}
	for k, i := range in.Pq {
		p.colVm[i] = npvpq + k
		p.rowQ[i] = npvpq + k
	}
	p.n = npvpq + len(in.Pq)

	if deviceAware && in.Branch != nil {
		br := in.Branch
		p.module = append([]float64(nil), br.TapModule...)
		for k, controlled := range br.Controlled {
			r := br.T[k]
			// One controller per bus, and only PQ buses can be regulated
			if !controlled || p.colVm[r] < 0 {
				continue
			}
			p.ctrl = append(p.ctrl, k)
			p.colTap = append(p.colTap, p.colVm[r])
			p.colVm[r] = -1
			p.vm[r] = br.Vset[k]
		}
		if len(p.ctrl) > 0 {
			p.rebuild()
		}
	}

	p.refresh()
	return p
}

func (p *polar) rebuild() {
	br := p.in.Branch
	p.ybus, _, _ = device.Assemble(len(p.v), br.F, br.T, br.Ys, br.Bc, p.module, br.TapAngle, p.in.Yshunt)
}

func (p *polar) refresh() {
	for i := range p.v {
		p.v[i] = cmplx.Rect(p.vm[i], p.va[i])
	}
	p.scalc = Power(p.ybus, p.v, p.in.Ibus)
}

func (p *polar) state() []float64 {
	x := make([]float64, p.n)
	for i := range p.v {
		if c := p.colVa[i]; c >= 0 {
			x[c] = p.va[i]
		}
		if c := p.colVm[i]; c >= 0 {
			x[c] = p.vm[i]
		}
	}
	for c, k := range p.ctrl {
		x[p.colTap[c]] = p.module[k]
	}
	return x
}

func (p *polar) setState(x []float64) {
	for i := range p.v {
		if c := p.colVa[i]; c >= 0 {
			p.va[i] = x[c]
		}
		if c := p.colVm[i]; c >= 0 {
			p.vm[i] = x[c]
		}
	}
	for c, k := range p.ctrl {
		p.module[k] = x[p.colTap[c]]
	}
	if len(p.ctrl) > 0 {
		p.rebuild()
	}
	p.refresh()
}

// step moves the state to x + mu*dx.
func (p *polar) step(x, dx []float64, mu float64) {
	next := make([]float64, len(x))
	floats.AddScaledTo(next, x, mu, dx)
	p.setState(next)
}

func (p *polar) residual() []float64 {
	f := make([]float64, p.n)
	for i := range p.v {
		mis := p.scalc[i] - p.in.Sbus[i]
		if r := p.rowP[i]; r >= 0 {
			f[r] = real(mis)
		}
		if r := p.rowQ[i]; r >= 0 {
			f[r] = imag(mis)
		}
	}
	return f
}

func (p *polar) add(t *matrix.Triplets, i, k int, dVa, dVm complex128) {
	if r := p.rowP[i]; r >= 0 {
		if c := p.colVa[k]; c >= 0 {
			t.Add(r, c, real(dVa))
		}
		if c := p.colVm[k]; c >= 0 {
			t.Add(r, c, real(dVm))
		}
	}
	if r := p.rowQ[i]; r >= 0 {
		if c := p.colVa[k]; c >= 0 {
			t.Add(r, c, imag(dVa))
		}
		if c := p.colVm[k]; c >= 0 {
			t.Add(r, c, imag(dVm))
		}
	}
}

func (p *polar) addColumn(t *matrix.Triplets, i, c int, ds complex128) {
	if r := p.rowP[i]; r >= 0 {
		t.Add(r, c, real(ds))
	}
	if r := p.rowQ[i]; r >= 0 {
		t.Add(r, c, imag(ds))
	}
}

// jacobian evaluates dF/dx at the current state.
func (p *polar) jacobian() *matrix.RealCSR {
	cur := p.ybus.MulVec(p.v)
	if p.in.Ibus != nil {
		for i := range cur {
			cur[i] -= p.in.Ibus[i]
		}
	}

	t := matrix.NewTriplets(p.n, p.n)
	for i := range p.v {
		if p.rowP[i] < 0 && p.rowQ[i] < 0 {
			continue
		}
		cols, vals := p.ybus.Row(i)
		for idx, k := range cols {
			yv := vals[idx] * p.v[k]
			dVa := -1i * p.v[i] * cmplx.Conj(yv)
			dVm := p.v[i] * cmplx.Conj(yv/complex(p.vm[k], 0))
			p.add(t, i, k, dVa, dVm)
		}
		dVa := 1i * p.v[i] * cmplx.Conj(cur[i])
		dVm := cmplx.Conj(cur[i]) * p.v[i] / complex(p.vm[i], 0)
		p.add(t, i, i, dVa, dVm)
	}

	br := p.in.Branch
	for c, k := range p.ctrl {
		f, to := br.F[k], br.T[k]
		m := p.module[k]
		a := cmplx.Rect(m, br.TapAngle[k])
		yff := br.Ys[k] + complex(0, br.Bc[k]/2)
		yft := -br.Ys[k] / a
		ytf := -br.Ys[k] / cmplx.Conj(a)
		ytt := yff / complex(m*m, 0)
		mm := complex(m, 0)

		dSf := p.v[f] * cmplx.Conj(-yft/mm*p.v[to])
		dSt := p.v[to] * cmplx.Conj(-ytf/mm*p.v[f]-2*ytt/mm*p.v[to])
		p.addColumn(t, f, p.colTap[c], dSf)
		p.addColumn(t, to, p.colTap[c], dSt)
	}

	return t.CSR()
}

// branchState returns the device arrays after the solve.
func (p *polar) branchState() (module, angle, bsh []float64) {
	br := p.in.Branch
	if br == nil {
		return nil, nil, nil
	}
	module = append([]float64(nil), br.TapModule...)
	if p.module != nil {
		copy(module, p.module)
	}
	return module, append([]float64(nil), br.TapAngle...), append([]float64(nil), br.Bsh...)
}
