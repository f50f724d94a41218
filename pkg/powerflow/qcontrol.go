package powerflow

import (
	"math"
	"math/cmplx"
	"slices"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// QControl is the bus state read by the reactive power policies. Q holds
// the computed reactive injections of the last solve; Qmax and Qmin are
// the net injection limits of each bus.
type QControl struct {
	V        []complex128
	Vset     []float64
	Q        []float64
	Qmax     []float64
	Qmin     []float64
	Types    []network.BusType
	Original []network.BusType
}

// QControlResult is the adjusted classification. V is only changed by
// the direct policy, when a bus returns to voltage control.
type QControlResult struct {
	V     []complex128
	Q     []float64
	Types []network.BusType
	Issue bool
}

func round(x float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(x*p) / p
}

func (qc QControl) start() QControlResult {
	return QControlResult{
		V:     slices.Clone(qc.V),
		Q:     slices.Clone(qc.Q),
		Types: slices.Clone(qc.Types),
	}
}

// ControlQDirect switches PV buses violating their limits to PQ at the
// violated limit, and PQ buses that lost their voltage control back to PV
// once their reactive power is strictly inside the limits.
func ControlQDirect(qc QControl) QControlResult {
	out := qc.start()
	prec := consts.PRECISION
	inc := consts.IncrementPrecision()

	for i, t := range qc.Types {
		q := round(qc.Q[i], inc)
		qmax := round(qc.Qmax[i], inc)
		qmin := round(qc.Qmin[i], inc)

		switch {
		case t == network.Slack:

		case t == network.PQ && qc.Original[i] == network.PV:
			vm := cmplx.Abs(qc.V[i])
			if round(vm, prec) == round(qc.Vset[i], prec) {
				continue
			}
			switch {
			case q >= qmax:
				out.Q[i] = qc.Qmax[i]
			case q <= qmin:
				out.Q[i] = qc.Qmin[i]
			default:
				out.Types[i] = network.PV
				out.V[i] = cmplx.Rect(qc.Vset[i], cmplx.Phase(qc.V[i]))
				out.Issue = true
			}

		case t == network.PV:
			switch {
			case q >= qmax:
				out.Types[i] = network.PQ
				out.Q[i] = qc.Qmax[i]
				out.Issue = true
			case q <= qmin:
				out.Types[i] = network.PQ
				out.Q[i] = qc.Qmin[i]
				out.Issue = true
			}
		}
	}
	return out
}

// QGain maps a voltage deviation to (0, 1): 0 when v1 == v2, tending to 1
// for large deviations. k is the steepness.
func QGain(v1, v2, k float64) float64 {
	return 2 * (1/(1+math.Exp(-k*math.Abs(v2-v1))) - 0.5)
}

// ControlQIterative moves the reactive injection of voltage controlled
// buses towards their limits by a fraction given by QGain. A step that
// would reach or cross a limit is not taken. Buses still
// PV are converted to PQ starting from zero reactive power, or from the
// nearest limit when zero lies outside them.
func ControlQIterative(qc QControl, steepness float64) QControlResult {
	out := qc.start()
	prec := consts.PRECISION
	inc := consts.IncrementPrecision()

	for i, t := range qc.Types {
		switch {
		case t == network.Slack:

		case t == network.PQ && qc.Original[i] == network.PV:
			vm := round(cmplx.Abs(qc.V[i]), prec)
			vset := round(qc.Vset[i], prec)
			gain := QGain(cmplx.Abs(qc.V[i]), qc.Vset[i], steepness)
			q := qc.Q[i]

			switch {
			case vm < vset:
				step := round(math.Abs(qc.Qmax[i]-q)*gain, inc)
				if step > 0 && q+step < qc.Qmax[i] {
					out.Q[i] = q + step
				}
			case vm > vset:
				step := round(math.Abs(qc.Qmin[i]-q)*gain, inc)
				if step > 0 && q-step > qc.Qmin[i] {
					out.Q[i] = q - step
				}
			}
			if out.Q[i] != q {
				out.Issue = true
			}

		case t == network.PV:
			out.Types[i] = network.PQ
			out.Q[i] = min(max(0, qc.Qmin[i]), qc.Qmax[i])
			out.Issue = true
		}
	}
	return out
}
