package network

import (
	"slices"

	"github.com/edp1096/toy-powerflow/pkg/device"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

type BusType int

const (
	PQ BusType = iota + 1
	PV
	Slack
)

func (t BusType) String() string {
	switch t {
	case PQ:
		return "PQ"
	case PV:
		return "PV"
	case Slack:
		return "Slack"
	}
	return "?"
}

// Indices partitions the buses by type. Pqpv is the sorted union of Pq and Pv.
type Indices struct {
	Vd   []int
	Pv   []int
	Pq   []int
	Pqpv []int
}

func IndicesOf(types []BusType) Indices {
	var idx Indices
	for i, t := range types {
		switch t {
		case Slack:
			idx.Vd = append(idx.Vd, i)
		case PV:
			idx.Pv = append(idx.Pv, i)
			idx.Pqpv = append(idx.Pqpv, i)
		default:
			idx.Pq = append(idx.Pq, i)
			idx.Pqpv = append(idx.Pqpv, i)
		}
	}
	return idx
}

// Snapshot is the compiled, solver-ready state of a network or island.
// All indices are 0-based.
type Snapshot struct {
	Name    string
	BaseMVA float64

	BusNames       []string
	Types          []BusType
	Vset           []float64
	V0             []complex128
	Sbus           []complex128
	Ibus           []complex128
	Yshunt         []complex128
	Qmax           []float64
	Qmin           []float64
	InstalledPower []float64

	BranchNames []string
	F, T        []int
	Ys          []complex128
	Bc          []float64
	Rates       []float64
	TapModule   []float64
	TapAngle    []float64
	TapPosition []int
	MinTap      []int
	MaxTap      []int
	TapIncUp    []float64
	TapIncDown  []float64
	Regulated   []bool
	Continuous  []bool
	BranchVset  []float64
	Bsh         []float64

	// Branch indices of transformers
	Transformers []int

	HvdcNames []string
	HvdcF     []int
	HvdcT     []int
	HvdcPf    []float64
	HvdcPt    []float64
	HvdcRate  []float64

	Ybus    *matrix.CSR
	Yseries *matrix.CSR
	Yf      *matrix.CSR
	Yt      *matrix.CSR
	Cf      *matrix.CSR
	Ct      *matrix.CSR

	// Positions in the full network
	BusMap         []int
	BranchMap      []int
	TransformerMap []int
	HvdcMap        []int
}

func newSnapshot(name string, baseMVA float64, nb int) *Snapshot {
	s := &Snapshot{
		Name:           name,
		BaseMVA:        baseMVA,
		BusNames:       make([]string, nb),
		Types:          make([]BusType, nb),
		Vset:           make([]float64, nb),
		V0:             make([]complex128, nb),
		Sbus:           make([]complex128, nb),
		Ibus:           make([]complex128, nb),
		Yshunt:         make([]complex128, nb),
		Qmax:           make([]float64, nb),
		Qmin:           make([]float64, nb),
		InstalledPower: make([]float64, nb),
		BusMap:         make([]int, nb),
	}
	for i := range nb {
		s.BusMap[i] = i
	}
	return s
}

func (s *Snapshot) addBranch(name string, f, t int, d device.BranchData) {
	k := len(s.F)
	s.BranchNames = append(s.BranchNames, name)
	s.F = append(s.F, f)
	s.T = append(s.T, t)
	s.Ys = append(s.Ys, d.Ys)
	s.Bc = append(s.Bc, d.B)
	s.Rates = append(s.Rates, d.Rate)
	s.TapModule = append(s.TapModule, d.TapModule)
	s.TapAngle = append(s.TapAngle, d.TapAngle)
	s.TapPosition = append(s.TapPosition, d.TapPosition)
	s.MinTap = append(s.MinTap, d.MinTap)
	s.MaxTap = append(s.MaxTap, d.MaxTap)
	s.TapIncUp = append(s.TapIncUp, d.TapIncUp)
	s.TapIncDown = append(s.TapIncDown, d.TapIncDown)
	s.Regulated = append(s.Regulated, d.Regulated)
	s.Continuous = append(s.Continuous, d.Continuous)
	s.BranchVset = append(s.BranchVset, d.Vset)
	s.Bsh = append(s.Bsh, d.B)
	s.BranchMap = append(s.BranchMap, k)
	if d.IsTransformer {
		s.TransformerMap = append(s.TransformerMap, len(s.Transformers))
		s.Transformers = append(s.Transformers, k)
	}
}

func (s *Snapshot) NumBuses() int {
	return len(s.Types)
}

func (s *Snapshot) NumBranches() int {
	return len(s.F)
}

func (s *Snapshot) Indices() Indices {
	return IndicesOf(s.Types)
}

// SetBusTypes applies a new classification and returns its partition.
func (s *Snapshot) SetBusTypes(types []BusType) Indices {
	copy(s.Types, types)
	return s.Indices()
}

// AnyControl reports whether a device regulates a voltage inside the solve.
func (s *Snapshot) AnyControl() bool {
	return slices.Contains(s.Continuous, true)
}

// ApplyTaps stores new tap positions and modules. The admittance matrices
// are stale until RecomputeAdmittance is called.
func (s *Snapshot) ApplyTaps(position []int, module []float64) {
	copy(s.TapPosition, position)
	copy(s.TapModule, module)
}

// RecomputeAdmittance rebuilds the admittance matrices from the branch arrays.
func (s *Snapshot) RecomputeAdmittance() {
	nb, nbr := s.NumBuses(), s.NumBranches()

	s.Ybus, s.Yf, s.Yt = device.Assemble(nb, s.F, s.T, s.Ys, s.Bc, s.TapModule, s.TapAngle, s.Yshunt)

	ones := make([]float64, nbr)
	for k := range ones {
		ones[k] = 1
	}
	s.Yseries, _, _ = device.Assemble(nb, s.F, s.T, s.Ys, make([]float64, nbr), ones, make([]float64, nbr), nil)

	rows := make([]int, nbr)
	vals := make([]complex128, nbr)
	for k := range rows {
		rows[k] = k
		vals[k] = 1
	}
	s.Cf = matrix.NewCSR(nbr, nb, rows, s.F, vals)
	s.Ct = matrix.NewCSR(nbr, nb, rows, s.T, vals)
}

// RegulatedBus returns the bus regulated by branch k, or -1.
func (s *Snapshot) RegulatedBus(k int) int {
	if !s.Regulated[k] {
		return -1
	}
	return s.T[k]
}

// BusToRegulated lists the branches regulating their "to" bus with a
// discrete tap changer. Continuous controllers are left to the solver.
func (s *Snapshot) BusToRegulated() []int {
	var idx []int
	for k, reg := range s.Regulated {
		if reg && !s.Continuous[k] {
			idx = append(idx, k)
		}
	}
	return idx
}

// HasSlack reports whether any bus is currently a slack bus.
func (s *Snapshot) HasSlack() bool {
	return slices.Contains(s.Types, Slack)
}
