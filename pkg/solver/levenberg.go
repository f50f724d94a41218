package solver

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// LevenbergMarquardt minimises |F|² with Nielsen's damping update.
type LevenbergMarquardt struct {
	LambdaSeed  float64
	DeviceAware bool
}

func (lm *LevenbergMarquardt) Type() Type {
	if lm.DeviceAware {
		return LMACDC
	}
	return LM
}

func (lm *LevenbergMarquardt) Solve(in *Input) Result {
	start := time.Now()
	p := newPolar(in, lm.DeviceAware)

	seed := lm.LambdaSeed
	if seed <= 0 {
		seed = 1e-3
	}

	f := p.residual()
	norm := Norm(f)
	converged := norm < in.Tolerance
	iter := 0

	var (
		j      *matrix.RealCSR
		h      *matrix.RealCSR
		g      []float64
		lambda float64
		nu     = 2.0
		update = true
	)

	for !converged && iter < in.MaxIter {
		iter++

		if update {
			j = p.jacobian()
			h = j.Normal()
			g = j.TMulVec(f)
			if lambda == 0 {
				lambda = seed * floats.Max(h.Diagonal())
				if lambda <= 0 {
					lambda = seed
				}
			}
		}

		sys, err := matrix.NewSystem(h.Rows, false)
		if err != nil {
			break
		}
		h.Stamp(sys)
		sys.LoadDiagonal(lambda)
		dx, err := sys.SolveVector(g)
		sys.Destroy()
		if err != nil {
			break
		}

		x := p.state()
		p.step(x, dx, -1)
		fNew := p.residual()

		// Gain ratio between the actual and the predicted reduction
		actual := 0.5 * (floats.Dot(f, f) - floats.Dot(fNew, fNew))
		lambdaDx := make([]float64, len(dx))
		floats.ScaleTo(lambdaDx, lambda, dx)
		floats.Add(lambdaDx, g)
		predicted := 0.5 * floats.Dot(dx, lambdaDx)
		rho := actual / predicted

		if predicted > 0 && rho > 0 {
			f = fNew
			norm = Norm(f)
			lambda *= math.Max(1.0/3.0, 1-math.Pow(2*rho-1, 3))
			nu = 2
			update = true
		} else {
			p.setState(x)
			lambda *= nu
			nu *= 2
			update = false
		}

		if math.IsNaN(norm) || math.IsInf(lambda, 0) {
			break
		}
		converged = norm < in.Tolerance
	}

	res := finish(lm.Type(), in, p.ybus, p.v, converged, norm, iter, start)
	if lm.DeviceAware {
		res.TapModule, res.TapAngle, res.Bsh = p.branchState()
	}
	return res
}
