package solver

import (
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Iwamoto is Newton-Raphson with the optimal step multiplier.
type Iwamoto struct{}

func (iw *Iwamoto) Type() Type { return IWAMOTO }

func (iw *Iwamoto) Solve(in *Input) Result {
	start := time.Now()
	p := newPolar(in, false)

	f := p.residual()
	norm := Norm(f)
	converged := norm < in.Tolerance
	iter := 0

	for !converged && iter < in.MaxIter {
		iter++

		dx, err := p.jacobian().Solve(f)
		if err != nil {
			break
		}
		floats.Scale(-1, dx)

		x := p.state()
		v := append([]complex128(nil), p.v...)
		p.step(x, dx, 1)
		dv := make([]complex128, len(v))
		for i := range v {
			dv[i] = p.v[i] - v[i]
		}

		mu := optimalMultiplier(in, v, dv)
		if mu != 1 {
			p.step(x, dx, mu)
		}

		f = p.residual()
		norm = Norm(f)
		if math.IsNaN(norm) {
			break
		}
		converged = norm < in.Tolerance
	}

	return finish(IWAMOTO, in, p.ybus, p.v, converged, norm, iter, start)
}

// optimalMultiplier minimises |a + mu*b + mu²*c|² over the mismatch
// equations, where S(V + mu*dV) - Sbus = a + mu*b + mu²*c exactly.
func optimalMultiplier(in *Input, v, dv []complex128) float64 {
	yv := in.Ybus.MulVec(v)
	ydv := in.Ybus.MulVec(dv)

	var g0, g1, g2, g3 float64
	term := func(a, b, c float64) {
		g0 += a * b
		g1 += b*b + 2*a*c
		g2 += 3 * b * c
		g3 += 2 * c * c
	}

	mis := func(i int) (a, b, c complex128) {
		cur := yv[i]
		if in.Ibus != nil {
			cur -= in.Ibus[i]
		}
		a = v[i]*cmplx.Conj(cur) - in.Sbus[i]
		b = v[i]*cmplx.Conj(ydv[i]) + dv[i]*cmplx.Conj(cur)
		c = dv[i] * cmplx.Conj(ydv[i])
		return a, b, c
	}
	for _, i := range in.Pqpv {
		a, b, c := mis(i)
		term(real(a), real(b), real(c))
	}
	for _, i := range in.Pq {
		a, b, c := mis(i)
		term(imag(a), imag(b), imag(c))
	}

	// Newton on the cubic derivative, starting from the full step
	mu := 1.0
	for range 20 {
		d := g0 + mu*(g1+mu*(g2+mu*g3))
		dd := g1 + mu*(2*g2+3*mu*g3)
		if dd == 0 {
			break
		}
		next := mu - d/dd
		if math.Abs(next-mu) < 1e-10 {
			mu = next
			break
		}
		mu = next
	}

	if math.IsNaN(mu) || mu <= 0 || mu > 2 {
		return 1
	}
	return mu
}
