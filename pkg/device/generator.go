package device

import "fmt"

type Generator struct {
	BaseDevice
	P              float64 // MW
	Q              float64 // MVAr
	Vset           float64 // p.u.
	Qmin           float64 // MVAr
	Qmax           float64 // MVAr
	Snom           float64 // MVA, installed power
	VoltageControl bool
}

func NewGenerator(name string, nodeNames []string, p, vset float64) *Generator {
	return &Generator{
		BaseDevice:     NewBaseDevice(name, nodeNames),
		P:              p,
		Vset:           vset,
		Qmin:           -9999,
		Qmax:           9999,
		VoltageControl: true,
	}
}

func (g *Generator) GetType() string { return "G" }

func (g *Generator) Inject(inj []BusInjection, status *Status) error {
	if len(g.Nodes) != 1 {
		return fmt.Errorf("generator %s: requires exactly 1 bus", g.Name)
	}
	if g.Qmin > g.Qmax {
		return fmt.Errorf("generator %s: Qmin %g above Qmax %g", g.Name, g.Qmin, g.Qmax)
	}

	k := bus(g.Nodes[0], inj)
	if k < 0 {
		return nil
	}

	base := status.BaseMVA
	inj[k].S += complex(g.P/base, g.Q/base)
	inj[k].Qmax += g.Qmax / base
	inj[k].Qmin += g.Qmin / base
	inj[k].Generators++
	if g.Snom > 0 {
		inj[k].InstalledPower += g.Snom / base
	}
	if g.VoltageControl {
		inj[k].VoltageControlled = true
		inj[k].Vset = g.Vset
	}
	return nil
}
