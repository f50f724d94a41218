package device

import (
	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	SetNodes(nodes []int)
	IsActive() bool
}

// Admittance is implemented by devices stamping into the bus admittance matrix.
type Admittance interface {
	Stamp(matrix matrix.DeviceMatrix, status *Status) error
}

// Injector is implemented by devices adding specified power at their bus.
type Injector interface {
	Inject(inj []BusInjection, status *Status) error
}

// Branch is implemented by two-terminal series elements.
type Branch interface {
	Device
	BranchData(status *Status) BranchData
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	NodeNames []string
	Inactive  bool
}

type Status struct {
	BaseMVA float64
}

// BusInjection accumulates the specified quantities of one bus in p.u.
type BusInjection struct {
	S                 complex128 // Generation positive
	Qmax              float64
	Qmin              float64
	Vset              float64
	VoltageControlled bool
	InstalledPower    float64
	Generators        int
}

func (d *BaseDevice) GetName() string {
	return d.Name
}

func (d *BaseDevice) GetNodes() []int {
	return d.Nodes
}

func (d *BaseDevice) GetNodeNames() []string {
	return d.NodeNames
}

func (d *BaseDevice) SetNodes(nodes []int) {
	d.Nodes = nodes
}

func (d *BaseDevice) IsActive() bool {
	return !d.Inactive
}

func NewBaseDevice(name string, nodeNames []string) BaseDevice {
	return BaseDevice{
		Name:      name,
		NodeNames: nodeNames,
		Nodes:     make([]int, len(nodeNames)),
	}
}

// bus maps a 1-based node to a 0-based injection slot, -1 for ground.
func bus(node int, inj []BusInjection) int {
	if node <= 0 || node > len(inj) {
		return -1
	}
	return node - 1
}
