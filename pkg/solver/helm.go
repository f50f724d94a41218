package solver

import (
	"math"
	"math/cmplx"
	"time"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// Helm is the holomorphic embedding method with the series evaluated by
// direct summation. The embedded system is
//
//	Yseries·V(s) = s·(conj(S)·conj(W(conj(s))) + Ibus - Yrest·V(s)),  W = 1/V
//
// with slack voltages 1 + s·(Vsl - 1). PV buses are solved as PQ buses
// whose reactive injection is corrected between series evaluations.
type Helm struct {
	MaxOrder int
}

func (h *Helm) Type() Type { return HELM }

func (h *Helm) Solve(in *Input) Result {
	start := time.Now()

	maxOrder := h.MaxOrder
	if maxOrder <= 0 {
		maxOrder = 40
	}

	nb := len(in.V0)
	v := append([]complex128(nil), in.V0...)
	if len(in.Pqpv) == 0 {
		return finish(HELM, in, in.Ybus, v, true, 0, 0, start)
	}

	sys, err := in.Yseries.Slice(in.Pqpv, in.Pqpv).Factorize()
	if err != nil {
		return finish(HELM, in, in.Ybus, v, false, MismatchNorm(in, v), 0, start)
	}
	defer sys.Destroy()

	yrest := in.Ybus.Sub(in.Yseries)
	yslack := in.Yseries.Slice(in.Pqpv, in.Vd)

	vset := make([]float64, nb)
	for _, i := range in.Pv {
		vset[i] = cmplx.Abs(in.V0[i])
	}
	sbus := append([]complex128(nil), in.Sbus...)

	norm := math.Inf(1)
	converged := false
	iter := 0
	for iter < in.MaxIter {
		iter++

		next, ok := h.series(in, sys, yrest, yslack, sbus, maxOrder)
		if !ok {
			break
		}
		v = next

		norm = h.norm(in, v, vset)
		if math.IsNaN(norm) {
			break
		}
		if converged = norm < in.Tolerance; converged {
			break
		}

		// Reactive correction for PV buses, dQ ~ -Bii·dV
		for _, i := range in.Pv {
			bii := imag(in.Ybus.At(i, i))
			dv := vset[i] - cmplx.Abs(v[i])
			sbus[i] += complex(0, -bii*dv*vset[i])
		}
	}

	return finish(HELM, in, in.Ybus, v, converged, norm, iter, start)
}

// series computes the voltage coefficients and returns their sum.
func (h *Helm) series(in *Input, sys *matrix.System, yrest, yslack *matrix.CSR, sbus []complex128, maxOrder int) ([]complex128, bool) {
	nb := len(in.V0)
	npvpq := len(in.Pqpv)

	coef := [][]complex128{make([]complex128, nb)}
	winv := [][]complex128{make([]complex128, nb)}
	for i := range nb {
		coef[0][i] = 1
		winv[0][i] = 1
	}

	sum := append([]complex128(nil), coef[0]...)
	for n := 1; n < maxOrder; n++ {
		vn := make([]complex128, nb)
		if n == 1 {
			for _, i := range in.Vd {
				vn[i] = in.V0[i] - 1
			}
		}

		slackV := make([]complex128, len(in.Vd))
		for k, i := range in.Vd {
			slackV[k] = vn[i]
		}
		slackTerm := yslack.MulVec(slackV)
		restTerm := yrest.MulVec(coef[n-1])

		rhs := make([]complex128, npvpq)
		for k, i := range in.Pqpv {
			rhs[k] = cmplx.Conj(sbus[i])*cmplx.Conj(winv[n-1][i]) - restTerm[i] - slackTerm[k]
			if n == 1 && in.Ibus != nil {
				rhs[k] += in.Ibus[i]
			}
		}

		x, err := sys.SolveComplexVector(rhs)
		if err != nil {
			return nil, false
		}
		for k, i := range in.Pqpv {
			vn[i] = x[k]
		}

		// Convolution for the inverse series, V[0] = 1
		wn := make([]complex128, nb)
		for i := range nb {
			var acc complex128
			for m := 0; m < n; m++ {
				if m == 0 {
					acc += winv[0][i] * vn[i]
					continue
				}
				acc += winv[m][i] * coef[n-m][i]
			}
			wn[i] = -acc
		}

		coef = append(coef, vn)
		winv = append(winv, wn)

		var largest float64
		for i := range nb {
			sum[i] += vn[i]
			largest = math.Max(largest, cmplx.Abs(vn[i]))
		}
		if largest < 1e-14 {
			break
		}
		if math.IsNaN(largest) || math.IsInf(largest, 0) {
			return nil, false
		}
	}

	return sum, true
}

// norm includes the magnitude deviation of PV buses.
func (h *Helm) norm(in *Input, v []complex128, vset []float64) float64 {
	f := Residual(Power(in.Ybus, v, in.Ibus), in.Sbus, in.Pqpv, in.Pq)
	for _, i := range in.Pv {
		f = append(f, cmplx.Abs(v[i])-vset[i])
	}
	return Norm(f)
}
