package device

import "fmt"

// Hvdc is a point-to-point DC link modelled as a pair of injections.
// Pset flows from the first to the second bus; the receiving end gets
// Pset*(1-LossFactor).
type Hvdc struct {
	BaseDevice
	Pset       float64 // MW
	LossFactor float64
	Rate       float64 // MW
}

func NewHvdc(name string, nodeNames []string, pset float64) *Hvdc {
	return &Hvdc{
		BaseDevice: NewBaseDevice(name, nodeNames),
		Pset:       pset,
	}
}

func (h *Hvdc) GetType() string { return "H" }

// Flows returns the p.u. power leaving each terminal into the link.
func (h *Hvdc) Flows(status *Status) (pf, pt float64) {
	p := h.Pset / status.BaseMVA
	return p, -p * (1 - h.LossFactor)
}

func (h *Hvdc) Inject(inj []BusInjection, status *Status) error {
	if len(h.Nodes) != 2 {
		return fmt.Errorf("hvdc %s: requires exactly 2 buses", h.Name)
	}
	if h.LossFactor < 0 || h.LossFactor >= 1 {
		return fmt.Errorf("hvdc %s: loss factor %g outside [0, 1)", h.Name, h.LossFactor)
	}

	pf, pt := h.Flows(status)
	if k := bus(h.Nodes[0], inj); k >= 0 {
		inj[k].S -= complex(pf, 0)
	}
	if k := bus(h.Nodes[1], inj); k >= 0 {
		inj[k].S -= complex(pt, 0)
	}
	return nil
}
