package device

import (
	"fmt"
	"math"
)

// Transformer is a two-winding transformer with a discrete tap changer on
// the "to" winding. The tap module follows 1 + position*increment, with the
// increment chosen by the sign of the position.
type Transformer struct {
	BaseDevice
	R           float64 // p.u.
	X           float64 // p.u.
	B           float64 // p.u.
	Rate        float64 // MVA
	TapPosition int
	MinTap      int
	MaxTap      int
	TapIncUp    float64 // Per step above neutral
	TapIncDown  float64 // Per step below neutral
	TapAngle    float64 // rad
	Vset        float64 // Regulated "to" bus setpoint, p.u.
	Regulated   bool
	Continuous  bool // Regulated by a continuous module inside the solve
}

func NewTransformer(name string, nodeNames []string, r, x float64) *Transformer {
	return &Transformer{
		BaseDevice: NewBaseDevice(name, nodeNames),
		R:          r,
		X:          x,
		TapIncUp:   0.0125,
		TapIncDown: 0.0125,
		Vset:       1.0,
	}
}

func (t *Transformer) GetType() string { return "T" }

func (t *Transformer) Validate() error {
	if len(t.Nodes) != 2 {
		return fmt.Errorf("transformer %s: requires exactly 2 buses", t.Name)
	}
	if t.R == 0 && t.X == 0 {
		return fmt.Errorf("transformer %s: zero impedance", t.Name)
	}
	if t.MinTap > t.MaxTap {
		return fmt.Errorf("transformer %s: min tap %d above max tap %d", t.Name, t.MinTap, t.MaxTap)
	}
	if t.TapPosition < t.MinTap || t.TapPosition > t.MaxTap {
		return fmt.Errorf("transformer %s: tap %d outside [%d, %d]", t.Name, t.TapPosition, t.MinTap, t.MaxTap)
	}
	if t.Regulated && t.Vset <= 0 {
		return fmt.Errorf("transformer %s: regulated without a voltage setpoint", t.Name)
	}
	return nil
}

// TapModule returns the continuous ratio for a tap position.
func TapModule(position int, incUp, incDown float64) float64 {
	if position >= 0 {
		return 1 + float64(position)*incUp
	}
	return 1 + float64(position)*incDown
}

func (t *Transformer) BranchData(status *Status) BranchData {
	return BranchData{
		Ys:            1 / complex(t.R, t.X),
		B:             t.B,
		Rate:          t.Rate / status.BaseMVA,
		IsTransformer: true,
		TapModule:     TapModule(t.TapPosition, t.TapIncUp, t.TapIncDown),
		TapAngle:      math.Remainder(t.TapAngle, 2*math.Pi),
		TapPosition:   t.TapPosition,
		MinTap:        t.MinTap,
		MaxTap:        t.MaxTap,
		TapIncUp:      t.TapIncUp,
		TapIncDown:    t.TapIncDown,
		Regulated:     t.Regulated,
		Continuous:    t.Regulated && t.Continuous,
		Vset:          t.Vset,
	}
}
