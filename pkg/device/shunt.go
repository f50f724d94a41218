package device

import (
	"fmt"

	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

// Shunt is a fixed admittance to ground given in MW and MVAr at 1 p.u.
type Shunt struct {
	BaseDevice
	G float64
	B float64
}

func NewShunt(name string, nodeNames []string, g, b float64) *Shunt {
	return &Shunt{
		BaseDevice: NewBaseDevice(name, nodeNames),
		G:          g,
		B:          b,
	}
}

func (s *Shunt) GetType() string { return "Y" }

func (s *Shunt) Stamp(m matrix.DeviceMatrix, status *Status) error {
	if len(s.Nodes) != 1 {
		return fmt.Errorf("shunt %s: requires exactly 1 bus", s.Name)
	}

	n1 := s.Nodes[0]
	if n1 != 0 {
		m.AddComplexElement(n1, n1, s.G/status.BaseMVA, s.B/status.BaseMVA)
	}
	return nil
}
