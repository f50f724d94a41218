package solver

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// NewtonRaphson is the polar Newton-Raphson method with an optional
// backtracking line search. When DeviceAware is set, controlled branches
// regulate their "to" bus voltage through a continuous tap module.
type NewtonRaphson struct {
	Backtracking float64
	DeviceAware  bool
}

func (nr *NewtonRaphson) Type() Type {
	if nr.DeviceAware {
		return NRACDC
	}
	return NR
}

func (nr *NewtonRaphson) Solve(in *Input) Result {
	start := time.Now()
	p := newPolar(in, nr.DeviceAware)

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
		mu := 1.0
		for {
			p.step(x, dx, mu)
			fNew := p.residual()
			normNew := Norm(fNew)
			if nr.Backtracking <= 0 || normNew < norm || mu < 1e-3 {
				f, norm = fNew, normNew
				break
			}
			mu *= nr.Backtracking
		}

		if math.IsNaN(norm) {
			break
		}
		converged = norm < in.Tolerance
	}

	res := finish(nr.Type(), in, p.ybus, p.v, converged, norm, iter, start)
	if nr.DeviceAware {
		res.TapModule, res.TapAngle, res.Bsh = p.branchState()
	}
	return res
}
