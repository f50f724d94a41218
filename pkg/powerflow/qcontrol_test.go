package powerflow

import (
	"math"
	"math/cmplx"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/edp1096/toy-powerflow/pkg/network"
)

// qControl builds a slack bus and one voltage controlled bus with limits
// [-0.5, 0.5].
func qControl(vm, vset, q float64, current network.BusType) QControl {
	return QControl{
		V:        []complex128{1, cmplx.Rect(vm, -0.1)},
		Vset:     []float64{1, vset},
		Q:        []float64{3, q},
		Qmax:     []float64{0, 0.5},
		Qmin:     []float64{0, -0.5},
		Types:    []network.BusType{network.Slack, current},
		Original: []network.BusType{network.Slack, network.PV},
	}
}

var controlQDirectTests = []struct {
	testName    string
	qc          QControl
	expectType  network.BusType
	expectQ     float64
	expectVm    float64
	expectIssue bool
}{{
	testName:    "pv-above-qmax",
	qc:          qControl(1.02, 1.02, 0.6, network.PV),
	expectType:  network.PQ,
	expectQ:     0.5,
	expectVm:    1.02,
	expectIssue: true,
}, {
	testName:    "pv-below-qmin",
	qc:          qControl(1.02, 1.02, -0.7, network.PV),
	expectType:  network.PQ,
	expectQ:     -0.5,
	expectVm:    1.02,
	expectIssue: true,
}, {
	testName:   "pv-inside-limits",
	qc:         qControl(1.02, 1.02, 0.1, network.PV),
	expectType: network.PV,
	expectQ:    0.1,
	expectVm:   1.02,
}, {
	testName:   "pv-at-qmax-after-rounding",
	qc:         qControl(1.02, 1.02, 0.4999999999, network.PV),
	expectType: network.PQ,
	expectQ:    0.5,
	expectVm:   1.02,
	// Rounded to the increment precision the bus sits at its limit
	expectIssue: true,
}, {
	testName:    "pq-released-back-to-pv",
	qc:          qControl(0.98, 1.02, 0.2, network.PQ),
	expectType:  network.PV,
	expectQ:     0.2,
	expectVm:    1.02,
	expectIssue: true,
}, {
	testName:   "pq-pinned-at-qmax",
	qc:         qControl(0.98, 1.02, 0.5, network.PQ),
	expectType: network.PQ,
	expectQ:    0.5,
	expectVm:   0.98,
}, {
	testName:   "pq-pinned-at-qmin",
	qc:         qControl(1.06, 1.02, -0.6, network.PQ),
	expectType: network.PQ,
	expectQ:    -0.5,
	expectVm:   1.06,
}, {
	testName:   "pq-at-setpoint",
	qc:         qControl(1.02001, 1.02, 0.2, network.PQ),
	expectType: network.PQ,
	expectQ:    0.2,
	expectVm:   1.02001,
}}

func TestControlQDirect(t *testing.T) {
	c := qt.New(t)
	for _, test := range controlQDirectTests {
		c.Run(test.testName, func(c *qt.C) {
			out := ControlQDirect(test.qc)
			c.Assert(out.Issue, qt.Equals, test.expectIssue)
			c.Assert(out.Types, qt.DeepEquals, []network.BusType{network.Slack, test.expectType})
			c.Assert(out.Q[1], qt.Equals, test.expectQ)
			c.Assert(cmplx.Abs(out.V[1]), approxEquals, test.expectVm)
			// Angle is kept when the magnitude is reset
			c.Assert(cmplx.Phase(out.V[1]), approxEquals, -0.1)

			// Slack is never touched
			c.Assert(out.Q[0], qt.Equals, 3.0)
			c.Assert(out.V[0], qt.Equals, complex(1, 0))
		})
	}
}

func TestControlQDirectLeavesInputAlone(t *testing.T) {
	c := qt.New(t)

	qc := qControl(0.98, 1.02, 0.2, network.PQ)
	out := ControlQDirect(qc)
	c.Assert(out.Types[1], qt.Equals, network.PV)
	c.Assert(qc.Types[1], qt.Equals, network.PQ)
	c.Assert(cmplx.Abs(qc.V[1]), approxEquals, 0.98)
}

func TestQGain(t *testing.T) {
	c := qt.New(t)

	c.Assert(QGain(1, 1, 30), qt.Equals, 0.0)
	c.Assert(QGain(0.95, 1, 30), qt.Equals, QGain(1, 0.95, 30))
	c.Assert(QGain(0.95, 1, 30), approxEquals, 2*(1/(1+math.Exp(-1.5))-0.5))
	c.Assert(QGain(0.9, 1, 30) > QGain(0.95, 1, 30), qt.IsTrue)
	c.Assert(QGain(0, 10, 30) <= 1, qt.IsTrue)
}

func TestControlQIterative(t *testing.T) {
	c := qt.New(t)
	const k = 30.0

	c.Run("pv-starts-from-zero", func(c *qt.C) {
		out := ControlQIterative(qControl(1.02, 1.02, 0.3, network.PV), k)
		c.Assert(out.Issue, qt.IsTrue)
		c.Assert(out.Types[1], qt.Equals, network.PQ)
		c.Assert(out.Q[1], qt.Equals, 0.0)
	})

	c.Run("pv-starts-from-nearest-limit", func(c *qt.C) {
		qc := qControl(1.02, 1.02, 0.3, network.PV)
		qc.Qmax[1], qc.Qmin[1] = -0.1, -0.4
		out := ControlQIterative(qc, k)
		c.Assert(out.Issue, qt.IsTrue)
		c.Assert(out.Q[1], qt.Equals, -0.1)
	})

	c.Run("below-setpoint-raises-q", func(c *qt.C) {
		out := ControlQIterative(qControl(0.95, 1.0, 0.1, network.PQ), k)
		step := round(0.4*QGain(0.95, 1.0, k), 6)
		c.Assert(out.Issue, qt.IsTrue)
		c.Assert(out.Types[1], qt.Equals, network.PQ)
		c.Assert(out.Q[1], approxEquals, 0.1+step)
		c.Assert(out.Q[1] < 0.5, qt.IsTrue)
	})

	c.Run("above-setpoint-lowers-q", func(c *qt.C) {
		out := ControlQIterative(qControl(1.05, 1.0, 0.1, network.PQ), k)
		step := round(0.6*QGain(1.05, 1.0, k), 6)
		c.Assert(out.Issue, qt.IsTrue)
		c.Assert(out.Q[1], approxEquals, 0.1-step)
	})

	c.Run("step-rounded-onto-qmax-is-not-taken", func(c *qt.C) {
		// The gain is just below one, so the rounded step lands exactly on Qmax
		out := ControlQIterative(qControl(0.5, 1.0, 0.3, network.PQ), k)
		c.Assert(round(0.2*QGain(0.5, 1.0, k), 6), qt.Equals, 0.2)
		c.Assert(out.Issue, qt.IsFalse)
		c.Assert(out.Q[1], qt.Equals, 0.3)
	})

	c.Run("step-rounded-onto-qmin-is-not-taken", func(c *qt.C) {
		out := ControlQIterative(qControl(1.5, 1.0, -0.3, network.PQ), k)
		c.Assert(out.Issue, qt.IsFalse)
		c.Assert(out.Q[1], qt.Equals, -0.3)
	})

	c.Run("saturated", func(c *qt.C) {
		out := ControlQIterative(qControl(0.95, 1.0, 0.5, network.PQ), k)
		c.Assert(out.Issue, qt.IsFalse)
		c.Assert(out.Q[1], qt.Equals, 0.5)
	})

	c.Run("at-setpoint", func(c *qt.C) {
		out := ControlQIterative(qControl(1.0, 1.0, 0.1, network.PQ), k)
		c.Assert(out.Issue, qt.IsFalse)
		c.Assert(out.Q[1], qt.Equals, 0.1)
	})

	c.Run("slack-untouched", func(c *qt.C) {
		out := ControlQIterative(qControl(1.0, 1.0, 0.1, network.PQ), k)
		c.Assert(out.Q[0], qt.Equals, 3.0)
		c.Assert(out.Types[0], qt.Equals, network.Slack)
	})
}

// randomQControl has a slack at bus 0 followed by buses in one of three
// states: PV, PQ that was PV, or plain PQ.
func randomQControl(state []int, vm, q []float64) QControl {
	n := len(state) + 1
	qc := QControl{
		V:        make([]complex128, n),
		Vset:     make([]float64, n),
		Q:        make([]float64, n),
		Qmax:     make([]float64, n),
		Qmin:     make([]float64, n),
		Types:    make([]network.BusType, n),
		Original: make([]network.BusType, n),
	}
	qc.V[0], qc.Vset[0] = 1, 1
	qc.Types[0], qc.Original[0] = network.Slack, network.Slack
	for i, s := range state {
		b := i + 1
		qc.V[b] = complex(vm[i], 0)
		qc.Vset[b] = 1
		qc.Q[b] = q[i]
		qc.Qmax[b], qc.Qmin[b] = 0.5, -0.5
		switch s {
		case 0:
			qc.Types[b], qc.Original[b] = network.PV, network.PV
		case 1:
			qc.Types[b], qc.Original[b] = network.PQ, network.PV
		default:
			qc.Types[b], qc.Original[b] = network.PQ, network.PQ
		}
	}
	return qc
}

func TestQControlKeepsPartitionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	check := func(qc QControlResult, in QControl) bool {
		if qc.Types[0] != network.Slack {
			return false
		}
		for i := 1; i < len(qc.Types); i++ {
			switch qc.Types[i] {
			case network.PQ, network.PV:
			default:
				return false
			}
			// Plain PQ buses are never reclassified
			if in.Original[i] == network.PQ && qc.Types[i] != network.PQ {
				return false
			}
		}
		idx := network.IndicesOf(qc.Types)
		return len(idx.Vd)+len(idx.Pv)+len(idx.Pq) == len(qc.Types)
	}

	properties.Property("direct keeps slack and partitions buses", prop.ForAll(
		func(state []int, vm, q []float64) bool {
			qc := randomQControl(state, vm, q)
			return check(ControlQDirect(qc), qc)
		},
		gen.SliceOfN(5, gen.IntRange(0, 2)),
		gen.SliceOfN(5, gen.Float64Range(0.9, 1.1)),
		gen.SliceOfN(5, gen.Float64Range(-1, 1)),
	))

	properties.Property("iterative never pushes Q past a limit", prop.ForAll(
		func(state []int, vm, q []float64) bool {
			qc := randomQControl(state, vm, q)
			out := ControlQIterative(qc, 30)
			if !check(out, qc) {
				return false
			}
			for i := 1; i < len(out.Q); i++ {
				if qc.Original[i] != network.PV {
					continue
				}
				if out.Q[i] > qc.Qmax[i]+1e-12 || out.Q[i] < qc.Qmin[i]-1e-12 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.IntRange(0, 2)),
		gen.SliceOfN(5, gen.Float64Range(0.9, 1.1)),
		gen.SliceOfN(5, gen.Float64Range(-0.5, 0.5)),
	))

	properties.TestingRun(t)
}
