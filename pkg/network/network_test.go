package network

import (
	"fmt"
	"math/cmplx"
	"slices"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gopkg.in/errgo.v1"

	"github.com/edp1096/toy-powerflow/pkg/device"
)

var (
	approxDeepEquals  = qt.CmpEquals(cmpopts.EquateApprox(0, 1e-9))
	complexDeepEquals = qt.CmpEquals(cmp.Comparer(func(a, b complex128) bool {
		return cmplx.Abs(a-b) <= 1e-9
	}))
)

// threeBus is a slack, a PV generator and a load bus in a chain.
func threeBus(c *qt.C) *Network {
	net := New("three bus")
	gen2 := device.NewGenerator("G2", []string{"b2"}, 50, 1.02)
	gen2.Qmin, gen2.Qmax = -20, 30
	gen2.Snom = 80

	net.AddDevice(device.NewGenerator("G1", []string{"b1"}, 0, 1.01))
	net.AddDevice(gen2)
	net.AddDevice(device.NewLoad("D2", []string{"b2"}, 10, 5))
	net.AddDevice(device.NewLoad("D3", []string{"b3"}, 80, 30))
	net.AddDevice(device.NewLine("L12", []string{"b1", "b2"}, 0.01, 0.1, 0.02, 100))
	net.AddDevice(device.NewLine("L23", []string{"b2", "b3"}, 0.02, 0.2, 0, 50))
	c.Assert(net.SetSlack("b1"), qt.IsNil)
	return net
}

func TestCompileBusData(t *testing.T) {
	c := qt.New(t)

	snap, err := threeBus(c).Compile()
	c.Assert(err, qt.IsNil)
	c.Assert(snap.BusNames, qt.DeepEquals, []string{"b1", "b2", "b3"})
	c.Assert(snap.Types, qt.DeepEquals, []BusType{Slack, PV, PQ})
	c.Assert(snap.Vset, approxDeepEquals, []float64{1.01, 1.02, 1.0})
	c.Assert(snap.Sbus, complexDeepEquals, []complex128{0, complex(0.4, -0.05), complex(-0.8, -0.3)})
	c.Assert(snap.Qmax[1], approxDeepEquals, 0.25)
	c.Assert(snap.Qmin[1], approxDeepEquals, -0.25)
	c.Assert(snap.InstalledPower, approxDeepEquals, []float64{0, 0.8, 0})
	c.Assert(cmplx.Abs(snap.V0[1]), qt.Equals, 1.02)

	idx := snap.Indices()
	c.Assert(idx.Vd, qt.DeepEquals, []int{0})
	c.Assert(idx.Pv, qt.DeepEquals, []int{1})
	c.Assert(idx.Pq, qt.DeepEquals, []int{2})
	c.Assert(idx.Pqpv, qt.DeepEquals, []int{1, 2})
	c.Assert(snap.HasSlack(), qt.IsTrue)
	c.Assert(snap.AnyControl(), qt.IsFalse)
}

func TestCompileAdmittance(t *testing.T) {
	c := qt.New(t)

	snap, err := threeBus(c).Compile()
	c.Assert(err, qt.IsNil)

	// Series parts cancel along each row; only charging remains
	sums := make([]complex128, snap.NumBuses())
	for i := range sums {
		_, vals := snap.Ybus.Row(i)
		for _, v := range vals {
			sums[i] += v
		}
	}
	c.Assert(real(sums[0]), qt.CmpEquals(cmpopts.EquateApprox(0, 1e-9)), 0.0)
	c.Assert(imag(sums[0]), qt.CmpEquals(cmpopts.EquateApprox(0, 1e-9)), 0.01)
	c.Assert(imag(sums[2]), qt.CmpEquals(cmpopts.EquateApprox(0, 1e-9)), 0.0)

	// Yseries has no charging
	_, vals := snap.Yseries.Row(0)
	var s complex128
	for _, v := range vals {
		s += v
	}
	c.Assert(cmplx.Abs(s) < 1e-9, qt.IsTrue)

	c.Assert(snap.Yf.Rows, qt.Equals, 2)
	c.Assert(snap.Yf.Cols, qt.Equals, 3)
	c.Assert(snap.Cf.At(1, 1), qt.Equals, complex(1, 0))
	c.Assert(snap.Ct.At(1, 2), qt.Equals, complex(1, 0))
	c.Assert(snap.Rates, approxDeepEquals, []float64{1, 0.5})
}

func TestTransformerRatio(t *testing.T) {
	c := qt.New(t)

	net := New("tap")
	tr := device.NewTransformer("T1", []string{"a", "b"}, 0, 0.1)
	tr.TapPosition, tr.MinTap, tr.MaxTap = 4, -10, 10
	tr.Regulated = true
	net.AddDevice(device.NewGenerator("G", []string{"a"}, 0, 1))
	net.AddDevice(tr)
	c.Assert(net.SetSlack("a"), qt.IsNil)

	snap, err := net.Compile()
	c.Assert(err, qt.IsNil)
	c.Assert(snap.TapModule, approxDeepEquals, []float64{1.05})
	c.Assert(snap.Transformers, qt.DeepEquals, []int{0})
	c.Assert(snap.BusToRegulated(), qt.DeepEquals, []int{0})
	c.Assert(snap.RegulatedBus(0), qt.Equals, 1)

	// Open-circuited secondary sits at the tap ratio
	va := complex(1, 0)
	vb := -snap.Ybus.At(1, 0) / snap.Ybus.At(1, 1) * va
	c.Assert(cmplx.Abs(vb), qt.CmpEquals(cmpopts.EquateApprox(0, 1e-12)), 1.05)

	snap.ApplyTaps([]int{0}, []float64{1})
	snap.RecomputeAdmittance()
	vb = -snap.Ybus.At(1, 0) / snap.Ybus.At(1, 1) * va
	c.Assert(cmplx.Abs(vb), qt.CmpEquals(cmpopts.EquateApprox(0, 1e-12)), 1.0)
	c.Assert(snap.TapPosition, qt.DeepEquals, []int{0})
}

func TestContinuousControl(t *testing.T) {
	c := qt.New(t)

	net := New("continuous")
	tr := device.NewTransformer("T1", []string{"a", "b"}, 0, 0.1)
	tr.Regulated, tr.Continuous = true, true
	net.AddDevice(device.NewGenerator("G", []string{"a"}, 0, 1))
	net.AddDevice(tr)
	c.Assert(net.SetSlack("a"), qt.IsNil)

	snap, err := net.Compile()
	c.Assert(err, qt.IsNil)
	c.Assert(snap.AnyControl(), qt.IsTrue)
	c.Assert(snap.BusToRegulated(), qt.HasLen, 0)
}

var compileErrorTests = []struct {
	testName    string
	build       func() *Network
	expectError string
}{{
	testName:    "no-buses",
	build:       func() *Network { return New("empty") },
	expectError: `network "empty" has no buses`,
}, {
	testName: "bad-base",
	build: func() *Network {
		net := New("base")
		net.AddDevice(device.NewLoad("D", []string{"1"}, 1, 0))
		net.BaseMVA = 0
		return net
	},
	expectError: `base power must be positive, got 0`,
}, {
	testName: "zero-impedance",
	build: func() *Network {
		net := New("z")
		net.AddDevice(device.NewLine("L", []string{"1", "2"}, 0, 0, 0, 0))
		return net
	},
	expectError: `line L: zero impedance`,
}, {
	testName: "grounded-branch",
	build: func() *Network {
		net := New("gnd")
		net.AddDevice(device.NewLine("L", []string{"1", "0"}, 0, 0.1, 0, 0))
		return net
	},
	expectError: `branch L connected to ground`,
}, {
	testName: "tap-outside-range",
	build: func() *Network {
		net := New("tap")
		tr := device.NewTransformer("T", []string{"1", "2"}, 0, 0.1)
		tr.TapPosition = 3
		net.AddDevice(tr)
		return net
	},
	expectError: `transformer T: tap 3 outside \[0, 0\]`,
}, {
	testName: "hvdc-loss",
	build: func() *Network {
		net := New("hvdc")
		h := device.NewHvdc("H", []string{"1", "2"}, 10)
		h.LossFactor = 1
		net.AddDevice(h)
		return net
	},
	expectError: `injecting device H: hvdc H: loss factor 1 outside \[0, 1\)`,
}}

func TestCompileErrors(t *testing.T) {
	c := qt.New(t)
	for _, test := range compileErrorTests {
		c.Run(test.testName, func(c *qt.C) {
			_, err := test.build().Compile()
			c.Assert(err, qt.ErrorMatches, test.expectError)
			c.Assert(errgo.Cause(err), qt.Equals, ErrInvalidModel)
		})
	}
}

func TestSetSlackUnknownBus(t *testing.T) {
	c := qt.New(t)

	err := New("n").SetSlack("nowhere")
	c.Assert(err, qt.ErrorMatches, `slack bus "nowhere" not defined`)
	c.Assert(errgo.Cause(err), qt.Equals, ErrInvalidModel)
}

func TestInactiveDevicesAreSkipped(t *testing.T) {
	c := qt.New(t)

	net := New("inactive")
	load := device.NewLoad("D", []string{"1"}, 10, 0)
	load.Inactive = true
	net.AddDevice(device.NewGenerator("G", []string{"1"}, 0, 1))
	net.AddDevice(load)
	c.Assert(net.SetSlack("1"), qt.IsNil)

	snap, err := net.Compile()
	c.Assert(err, qt.IsNil)
	c.Assert(snap.Sbus, complexDeepEquals, []complex128{0})
}

// twoIslands has buses 1-2 and 3-4 linked internally, bus 5 isolated,
// and an HVDC link from 2 to 3.
func twoIslands(c *qt.C) *Snapshot {
	net := New("islands")
	net.AddDevice(device.NewGenerator("G1", []string{"1"}, 0, 1))
	net.AddDevice(device.NewLine("L12", []string{"1", "2"}, 0.01, 0.1, 0, 100))
	net.AddDevice(device.NewGenerator("G3", []string{"3"}, 0, 1))
	tr := device.NewTransformer("T34", []string{"3", "4"}, 0.01, 0.1)
	net.AddDevice(tr)
	net.AddDevice(device.NewLoad("D5", []string{"5"}, 1, 0))
	net.AddDevice(device.NewHvdc("H23", []string{"2", "3"}, 10))
	c.Assert(net.SetSlack("1"), qt.IsNil)
	c.Assert(net.SetSlack("3"), qt.IsNil)

	snap, err := net.Compile()
	c.Assert(err, qt.IsNil)
	return snap
}

func TestIslandBuses(t *testing.T) {
	c := qt.New(t)

	snap := twoIslands(c)
	c.Assert(snap.IslandBuses(), qt.DeepEquals, [][]int{{0, 1}, {2, 3}, {4}})
}

func TestIslandsSubsets(t *testing.T) {
	c := qt.New(t)

	snap := twoIslands(c)
	islands := snap.Islands(false)
	c.Assert(islands, qt.HasLen, 3)

	first, second := islands[0], islands[1]
	c.Assert(first.BusNames, qt.DeepEquals, []string{"1", "2"})
	c.Assert(first.BusMap, qt.DeepEquals, []int{0, 1})
	c.Assert(first.BranchNames, qt.DeepEquals, []string{"L12"})
	c.Assert(first.HvdcNames, qt.DeepEquals, []string{"H23"})
	c.Assert(first.HvdcT, qt.DeepEquals, []int{-1})

	c.Assert(second.BusMap, qt.DeepEquals, []int{2, 3})
	c.Assert(second.BranchMap, qt.DeepEquals, []int{1})
	c.Assert(second.F, qt.DeepEquals, []int{0})
	c.Assert(second.T, qt.DeepEquals, []int{1})
	c.Assert(second.Transformers, qt.DeepEquals, []int{0})
	c.Assert(second.TransformerMap, qt.DeepEquals, []int{0})
	c.Assert(second.HvdcNames, qt.HasLen, 0)
	c.Assert(second.Ybus.Rows, qt.Equals, 2)

	c.Assert(islands[2].HasSlack(), qt.IsFalse)
	c.Assert(snap.Islands(true), qt.HasLen, 2)
}

func TestSingleIslandIsSnapshot(t *testing.T) {
	c := qt.New(t)

	snap, err := threeBus(c).Compile()
	c.Assert(err, qt.IsNil)
	islands := snap.Islands(true)
	c.Assert(islands, qt.HasLen, 1)
	c.Assert(islands[0], qt.Equals, snap)
}

func TestSetBusTypes(t *testing.T) {
	c := qt.New(t)

	snap, err := threeBus(c).Compile()
	c.Assert(err, qt.IsNil)
	idx := snap.SetBusTypes([]BusType{Slack, PQ, PQ})
	c.Assert(idx.Pv, qt.HasLen, 0)
	c.Assert(idx.Pq, qt.DeepEquals, []int{1, 2})
	c.Assert(snap.Types[1], qt.Equals, PQ)
	c.Assert(PV.String(), qt.Equals, "PV")
}

func TestIslandPartitionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("islands partition the buses", prop.ForAll(
		func(n int, ends []int) bool {
			net := New("random")
			for i := 0; i < n; i++ {
				net.AddBus(fmt.Sprint(i + 1))
			}
			for k := 0; k+1 < len(ends); k += 2 {
				f, t := ends[k]%n, ends[k+1]%n
				if f == t {
					continue
				}
				net.AddDevice(device.NewLine(fmt.Sprintf("L%d", k), []string{fmt.Sprint(f + 1), fmt.Sprint(t + 1)}, 0, 0.1, 0, 0))
			}
			snap, err := net.Compile()
			if err != nil {
				return false
			}

			seen := make([]int, n)
			for _, island := range snap.IslandBuses() {
				if !slices.IsSorted(island) {
					return false
				}
				for _, b := range island {
					seen[b]++
				}
			}
			for _, s := range seen {
				if s != 1 {
					return false
				}
			}

			// Every branch lies inside one island
			var branches int
			for _, sub := range snap.Islands(false) {
				branches += sub.NumBranches()
			}
			return branches == snap.NumBranches()
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
