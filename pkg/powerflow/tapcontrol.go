package powerflow

import (
	"math"
	"math/cmplx"
	"slices"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/network"
)

// TapControl is the transformer state read by the tap policies. Regulated
// lists the branches whose "to" bus voltage is controlled by discrete taps.
type TapControl struct {
	T         []int
	Regulated []int
	Position  []int
	Module    []float64
	MinTap    []int
	MaxTap    []int
	IncUp     []float64
	IncDown   []float64
	Vset      []float64
}

func tapControlOf(snap *network.Snapshot) TapControl {
	return TapControl{
		T:         snap.T,
		Regulated: snap.BusToRegulated(),
		Position:  snap.TapPosition,
		Module:    snap.TapModule,
		MinTap:    snap.MinTap,
		MaxTap:    snap.MaxTap,
		IncUp:     snap.TapIncUp,
		IncDown:   snap.TapIncDown,
		Vset:      snap.BranchVset,
	}
}

// ControlTapsIterative moves each regulated tap one step towards its
// setpoint when the voltage lies outside half an increment of it. The
// returned slices are copies; stable is false if any tap moved.
func ControlTapsIterative(v []complex128, tc TapControl) (stable bool, module []float64, position []int) {
	stable = true
	module = slices.Clone(tc.Module)
	position = slices.Clone(tc.Position)

	for _, k := range tc.Regulated {
		vm := cmplx.Abs(v[tc.T[k]])
		up, down := tc.IncUp[k], tc.IncDown[k]

		// Deadbands follow the increment of the step that would be taken
		lowBand, highBand := up, up
		switch {
		case position[k] < 0:
			lowBand, highBand = down, down
		case position[k] == 0:
			lowBand, highBand = down, up
		}

		next := position[k]
		switch {
		case vm > tc.Vset[k]+lowBand/2:
			next = max(position[k]-1, tc.MinTap[k])
		case vm < tc.Vset[k]-highBand/2:
			next = min(position[k]+1, tc.MaxTap[k])
		}
		if next != position[k] {
			position[k] = next
			module[k] = device.TapModule(next, up, down)
			stable = false
		}
	}
	return stable, module, position
}

// ControlTapsDirect sets each regulated tap to the position whose module
// would null the voltage deviation, assuming the "to" voltage scales with
// the module. The increment is chosen by the side of neutral the desired
// module falls on.
func ControlTapsDirect(v []complex128, tc TapControl) (stable bool, module []float64, position []int) {
	stable = true
	module = slices.Clone(tc.Module)
	position = slices.Clone(tc.Position)

	for _, k := range tc.Regulated {
		vm := cmplx.Abs(v[tc.T[k]])
		if vm == 0 || round(vm, consts.PRECISION) == round(tc.Vset[k], consts.PRECISION) {
			continue
		}

		desired := module[k] * tc.Vset[k] / vm
		inc := tc.IncUp[k]
		if desired < 1 {
			inc = tc.IncDown[k]
		}
		if inc == 0 {
			continue
		}

		next := int(math.Round((desired - 1) / inc))
		next = min(max(next, tc.MinTap[k]), tc.MaxTap[k])
		if next != position[k] {
			position[k] = next
			module[k] = device.TapModule(next, tc.IncUp[k], tc.IncDown[k])
			stable = false
		}
	}
	return stable, module, position
}
