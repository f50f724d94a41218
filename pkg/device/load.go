package device

import (
	"fmt"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// Load is a ZIP load. Powers are consumption in MW/MVAr at 1 p.u.
type Load struct {
	BaseDevice
	P  float64 // Constant power
	Q  float64
	Ir float64 // Constant current
	Ii float64
	G  float64 // Constant impedance
	B  float64
}

func NewLoad(name string, nodeNames []string, p, q float64) *Load {
	return &Load{
		BaseDevice: NewBaseDevice(name, nodeNames),
		P:          p,
		Q:          q,
	}
}

func (l *Load) GetType() string { return "D" }

func (l *Load) Inject(inj []BusInjection, status *Status) error {
	if len(l.Nodes) != 1 {
		return fmt.Errorf("load %s: requires exactly 1 bus", l.Name)
	}

	k := bus(l.Nodes[0], inj)
	if k < 0 {
		return nil
	}

	base := status.BaseMVA
	inj[k].S -= complex(l.P/base, l.Q/base)
	// Reactive limits are net of the local load
	inj[k].Qmax -= l.Q / base
	inj[k].Qmin -= l.Q / base
	return nil
}

// Stamp adds the constant impedance part, y = G - jB for consumption,
// and the constant current part as a current drawn from the bus.
func (l *Load) Stamp(m matrix.DeviceMatrix, status *Status) error {
	if len(l.Nodes) != 1 {
		return fmt.Errorf("load %s: requires exactly 1 bus", l.Name)
	}

	n1 := l.Nodes[0]
	if n1 == 0 {
		return nil
	}

	base := status.BaseMVA
	if l.G != 0 || l.B != 0 {
		m.AddComplexElement(n1, n1, l.G/base, -l.B/base)
	}
	if l.Ir != 0 || l.Ii != 0 {
		m.AddComplexRHS(n1, -l.Ir/base, l.Ii/base)
	}
	return nil
}
