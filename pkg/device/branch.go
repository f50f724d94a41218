package device

import (
	"fmt"
	"math/cmplx"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// BranchData is the per-unit pi model of a series element.
type BranchData struct {
	Ys            complex128 // Series admittance
	B             float64    // Total charging susceptance
	Rate          float64
	IsTransformer bool
	TapModule     float64
	TapAngle      float64
	TapPosition   int
	MinTap        int
	MaxTap        int
	TapIncUp      float64
	TapIncDown    float64
	Regulated     bool // Regulates the "to" bus voltage
	Continuous    bool
	Vset          float64
}

// StampBranch adds the pi model with a complex tap on the "to" winding.
// Unloaded, the "to" voltage is tap times the "from" voltage.
func StampBranch(m matrix.DeviceMatrix, n1, n2 int, ys complex128, b float64, tap complex128) {
	yff := ys + complex(0, b/2)
	ytt := yff / complex(real(tap*cmplx.Conj(tap)), 0)
	yft := -ys / tap
	ytf := -ys / cmplx.Conj(tap)

	if n1 != 0 {
		m.AddComplexElement(n1, n1, real(yff), imag(yff))
		if n2 != 0 {
			m.AddComplexElement(n1, n2, real(yft), imag(yft))
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			m.AddComplexElement(n2, n1, real(ytf), imag(ytf))
		}
		m.AddComplexElement(n2, n2, real(ytt), imag(ytt))
	}
}

type Line struct {
	BaseDevice
	R    float64 // p.u.
	X    float64 // p.u.
	B    float64 // p.u.
	Rate float64 // MVA
}

func NewLine(name string, nodeNames []string, r, x, b, rate float64) *Line {
	return &Line{
		BaseDevice: NewBaseDevice(name, nodeNames),
		R:          r,
		X:          x,
		B:          b,
		Rate:       rate,
	}
}

func (l *Line) GetType() string { return "L" }

func (l *Line) Validate() error {
	if len(l.Nodes) != 2 {
		return fmt.Errorf("line %s: requires exactly 2 buses", l.Name)
	}
	if l.R == 0 && l.X == 0 {
		return fmt.Errorf("line %s: zero impedance", l.Name)
	}
	return nil
}

func (l *Line) BranchData(status *Status) BranchData {
	return BranchData{
		Ys:        1 / complex(l.R, l.X),
		B:         l.B,
		Rate:      l.Rate / status.BaseMVA,
		TapModule: 1,
	}
}

// Assemble builds the bus admittance matrix and the branch "from"/"to"
// admittance matrices for n buses. f and t are 0-based bus indices.
// yshunt, when given, is added on the diagonal of ybus.
func Assemble(n int, f, t []int, ys []complex128, b, module, angle []float64, yshunt []complex128) (ybus, yf, yt *matrix.CSR) {
	nbr := len(f)
	bus := matrix.NewBuilder(n)
	from := matrix.NewBuilder(max(n, nbr))
	to := matrix.NewBuilder(max(n, nbr))

	for k := 0; k < nbr; k++ {
		tap := cmplx.Rect(module[k], angle[k])
		StampBranch(bus, f[k]+1, t[k]+1, ys[k], b[k], tap)

		yff := ys[k] + complex(0, b[k]/2)
		ytt := yff / complex(module[k]*module[k], 0)
		from.AddComplexElement(k+1, f[k]+1, real(yff), imag(yff))
		from.AddComplexElement(k+1, t[k]+1, real(-ys[k]/tap), imag(-ys[k]/tap))
		to.AddComplexElement(k+1, f[k]+1, real(-ys[k]/cmplx.Conj(tap)), imag(-ys[k]/cmplx.Conj(tap)))
		to.AddComplexElement(k+1, t[k]+1, real(ytt), imag(ytt))
	}
	for i, y := range yshunt {
		bus.AddComplexElement(i+1, i+1, real(y), imag(y))
	}

	ybus = bus.CSR()
	yf = trim(from.CSR(), nbr, n)
	yt = trim(to.CSR(), nbr, n)
	return ybus, yf, yt
}

func trim(m *matrix.CSR, rows, cols int) *matrix.CSR {
	r := make([]int, rows)
	for i := range r {
		r[i] = i
	}
	c := make([]int, cols)
	for j := range c {
		c[j] = j
	}
	return m.Slice(r, c)
}
