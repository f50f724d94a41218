package network

import (
	"math/cmplx"

	"gopkg.in/errgo.v1"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

var ErrInvalidModel = errgo.New("invalid network model")

// Network is the editable model: named buses and the devices attached to them.
type Network struct {
	name     string
	BaseMVA  float64
	busMap   map[string]int // 1-based, 0 is ground
	busNames []string
	slack    map[int]bool
	devices  []device.Device
}

func New(name string) *Network {
	return &Network{
		name:    name,
		BaseMVA: consts.BASE_MVA,
		busMap:  make(map[string]int),
		slack:   make(map[int]bool),
	}
}

func (n *Network) Name() string {
	return n.name
}

func isGround(name string) bool {
	return name == "0" || name == "gnd"
}

// AddBus registers a bus and returns its 1-based index.
func (n *Network) AddBus(name string) int {
	if isGround(name) {
		return 0
	}
	if idx, exists := n.busMap[name]; exists {
		return idx
	}
	n.busNames = append(n.busNames, name)
	idx := len(n.busNames)
	n.busMap[name] = idx
	return idx
}

func (n *Network) SetSlack(name string) error {
	idx, ok := n.busMap[name]
	if !ok {
		return errgo.WithCausef(nil, ErrInvalidModel, "slack bus %q not defined", name)
	}
	n.slack[idx] = true
	return nil
}

// AddDevice resolves the device's bus names, creating buses as needed.
func (n *Network) AddDevice(dev device.Device) {
	names := dev.GetNodeNames()
	nodes := make([]int, len(names))
	for i, name := range names {
		nodes[i] = n.AddBus(name)
	}
	dev.SetNodes(nodes)
	n.devices = append(n.devices, dev)
}

func (n *Network) GetDevices() []device.Device {
	return n.devices
}

func (n *Network) GetBusMap() map[string]int {
	return n.busMap
}

func (n *Network) NumBuses() int {
	return len(n.busNames)
}

type validator interface {
	Validate() error
}

// Compile builds the snapshot: bus injections, branch arrays and the
// admittance matrices for the active devices.
func (n *Network) Compile() (*Snapshot, error) {
	nb := len(n.busNames)
	if nb == 0 {
		return nil, errgo.WithCausef(nil, ErrInvalidModel, "network %q has no buses", n.name)
	}
	if n.BaseMVA <= 0 {
		return nil, errgo.WithCausef(nil, ErrInvalidModel, "base power must be positive, got %g", n.BaseMVA)
	}

	status := &device.Status{BaseMVA: n.BaseMVA}
	inj := make([]device.BusInjection, nb)
	shunts := matrix.NewBuilder(nb)
	s := newSnapshot(n.name, n.BaseMVA, nb)
	copy(s.BusNames, n.busNames)

	var err error
	for _, dev := range n.devices {
		if !dev.IsActive() {
			continue
		}
		if v, ok := dev.(validator); ok {
			if err = v.Validate(); err != nil {
				return nil, errgo.WithCausef(err, ErrInvalidModel, "")
			}
		}
		if a, ok := dev.(device.Admittance); ok {
			if err = a.Stamp(shunts, status); err != nil {
				return nil, errgo.WithCausef(err, ErrInvalidModel, "stamping device %s", dev.GetName())
			}
		}
		if in, ok := dev.(device.Injector); ok {
			if err = in.Inject(inj, status); err != nil {
				return nil, errgo.WithCausef(err, ErrInvalidModel, "injecting device %s", dev.GetName())
			}
		}

		switch d := dev.(type) {
		case device.Branch:
			nodes := d.GetNodes()
			if nodes[0] == 0 || nodes[1] == 0 {
				return nil, errgo.WithCausef(nil, ErrInvalidModel, "branch %s connected to ground", d.GetName())
			}
			s.addBranch(d.GetName(), nodes[0]-1, nodes[1]-1, d.BranchData(status))
		case *device.Hvdc:
			pf, pt := d.Flows(status)
			s.HvdcNames = append(s.HvdcNames, d.GetName())
			s.HvdcF = append(s.HvdcF, d.GetNodes()[0]-1)
			s.HvdcT = append(s.HvdcT, d.GetNodes()[1]-1)
			s.HvdcPf = append(s.HvdcPf, pf)
			s.HvdcPt = append(s.HvdcPt, pt)
			s.HvdcRate = append(s.HvdcRate, d.Rate/n.BaseMVA)
			s.HvdcMap = append(s.HvdcMap, len(s.HvdcMap))
		}
	}

	s.Yshunt = shunts.CSR().Diagonal()
	copy(s.Ibus, shunts.RHS())

	for i := range nb {
		s.Sbus[i] = inj[i].S
		s.Qmax[i] = inj[i].Qmax
		s.Qmin[i] = inj[i].Qmin
		s.InstalledPower[i] = inj[i].InstalledPower

		switch {
		case n.slack[i+1]:
			s.Types[i] = Slack
			s.Vset[i] = 1.0
			if inj[i].VoltageControlled {
				s.Vset[i] = inj[i].Vset
			}
		case inj[i].VoltageControlled:
			s.Types[i] = PV
			s.Vset[i] = inj[i].Vset
		default:
			s.Types[i] = PQ
			s.Vset[i] = 1.0
		}
		s.V0[i] = cmplx.Rect(s.Vset[i], 0)
	}

	s.RecomputeAdmittance()
	return s, nil
}
