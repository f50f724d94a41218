package powerflow

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/edp1096/toy-powerflow/pkg/device"
)

// tapControl is a single transformer regulating bus 1.
func tapControl(position, minTap, maxTap int, up, down float64) TapControl {
	return TapControl{
		T:         []int{1},
		Regulated: []int{0},
		Position:  []int{position},
		Module:    []float64{device.TapModule(position, up, down)},
		MinTap:    []int{minTap},
		MaxTap:    []int{maxTap},
		IncUp:     []float64{up},
		IncDown:   []float64{down},
		Vset:      []float64{1},
	}
}

var controlTapsIterativeTests = []struct {
	testName       string
	tc             TapControl
	vm             float64
	expectStable   bool
	expectPosition int
	expectModule   float64
}{{
	testName:       "above-setpoint-steps-down",
	tc:             tapControl(0, -3, 3, 0.0125, 0.0125),
	vm:             1.02,
	expectPosition: -1,
	expectModule:   0.9875,
}, {
	testName:       "below-setpoint-steps-up",
	tc:             tapControl(0, -3, 3, 0.0125, 0.0125),
	vm:             0.98,
	expectPosition: 1,
	expectModule:   1.0125,
}, {
	testName:       "held-at-min-tap",
	tc:             tapControl(-3, -3, 3, 0.0125, 0.0125),
	vm:             1.02,
	expectStable:   true,
	expectPosition: -3,
	expectModule:   0.9625,
}, {
	testName:       "held-at-max-tap",
	tc:             tapControl(3, -3, 3, 0.0125, 0.0125),
	vm:             0.9,
	expectStable:   true,
	expectPosition: 3,
	expectModule:   1.0375,
}, {
	testName:       "inside-deadband",
	tc:             tapControl(1, -3, 3, 0.0125, 0.0125),
	vm:             1.005,
	expectStable:   true,
	expectPosition: 1,
	expectModule:   1.0125,
}, {
	testName:       "asymmetric-low-band",
	tc:             tapControl(0, -3, 3, 0.01, 0.02),
	vm:             1.008,
	expectStable:   true,
	expectPosition: 0,
	expectModule:   1,
}, {
	testName:       "asymmetric-high-band",
	tc:             tapControl(0, -3, 3, 0.01, 0.02),
	vm:             0.994,
	expectPosition: 1,
	expectModule:   1.01,
}, {
	testName:       "negative-side-uses-down-increment",
	tc:             tapControl(-1, -3, 3, 0.01, 0.02),
	vm:             1.015,
	expectPosition: -2,
	expectModule:   0.96,
}}

func TestControlTapsIterative(t *testing.T) {
	c := qt.New(t)
	for _, test := range controlTapsIterativeTests {
		c.Run(test.testName, func(c *qt.C) {
			before := test.tc.Position[0]
			stable, module, position := ControlTapsIterative([]complex128{1.05, complex(test.vm, 0)}, test.tc)
			c.Assert(stable, qt.Equals, test.expectStable)
			c.Assert(position, qt.DeepEquals, []int{test.expectPosition})
			c.Assert(module, approxEquals, []float64{test.expectModule})
			// Inputs are not mutated
			c.Assert(test.tc.Position[0], qt.Equals, before)
		})
	}
}

func TestControlTapsIgnoresUnregulated(t *testing.T) {
	c := qt.New(t)

	tc := tapControl(0, -3, 3, 0.0125, 0.0125)
	tc.Regulated = nil
	for _, policy := range []func([]complex128, TapControl) (bool, []float64, []int){ControlTapsIterative, ControlTapsDirect} {
		stable, module, position := policy([]complex128{1, 1.2}, tc)
		c.Assert(stable, qt.IsTrue)
		c.Assert(module, qt.DeepEquals, []float64{1})
		c.Assert(position, qt.DeepEquals, []int{0})
	}
}

var controlTapsDirectTests = []struct {
	testName       string
	tc             TapControl
	vm             float64
	expectStable   bool
	expectPosition int
	expectModule   float64
}{{
	testName:       "one-shot-down",
	tc:             tapControl(0, -10, 10, 0.0125, 0.0125),
	vm:             1.05,
	expectPosition: -4,
	expectModule:   0.95,
}, {
	testName:       "clamped-at-min",
	tc:             tapControl(0, -3, 3, 0.0125, 0.0125),
	vm:             1.05,
	expectPosition: -3,
	expectModule:   0.9625,
}, {
	testName:       "asymmetric-up",
	tc:             tapControl(0, -10, 10, 0.02, 0.01),
	vm:             0.95,
	expectPosition: 3,
	expectModule:   1.06,
}, {
	testName:       "already-at-desired",
	tc:             tapControl(-4, -10, 10, 0.0125, 0.0125),
	vm:             0.9965,
	expectStable:   true,
	expectPosition: -4,
	expectModule:   0.95,
}, {
	testName:       "at-setpoint",
	tc:             tapControl(2, -10, 10, 0.0125, 0.0125),
	vm:             1.00001,
	expectStable:   true,
	expectPosition: 2,
	expectModule:   1.025,
}}

func TestControlTapsDirect(t *testing.T) {
	c := qt.New(t)
	for _, test := range controlTapsDirectTests {
		c.Run(test.testName, func(c *qt.C) {
			stable, module, position := ControlTapsDirect([]complex128{1.05, complex(test.vm, 0)}, test.tc)
			c.Assert(stable, qt.Equals, test.expectStable)
			c.Assert(position, qt.DeepEquals, []int{test.expectPosition})
			c.Assert(module, approxEquals, []float64{test.expectModule})
		})
	}
}

func TestTapBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	policies := map[string]func([]complex128, TapControl) (bool, []float64, []int){
		"iterative": ControlTapsIterative,
		"direct":    ControlTapsDirect,
	}
	for name, policy := range policies {
		properties.Property(name+" keeps taps within limits", prop.ForAll(
			func(pos int, vm, up, down float64) bool {
				tc := tapControl(pos, -5, 5, up, down)
				stable, module, position := policy([]complex128{1, complex(vm, 0)}, tc)
				p := position[0]
				if p < -5 || p > 5 {
					return false
				}
				if stable != (p == pos) {
					return false
				}
				want := device.TapModule(p, up, down)
				return module[0] > want-1e-12 && module[0] < want+1e-12
			},
			gen.IntRange(-5, 5),
			gen.Float64Range(0.8, 1.2),
			gen.Float64Range(0.005, 0.02),
			gen.Float64Range(0.005, 0.02),
		))
	}

	properties.TestingRun(t)
}
