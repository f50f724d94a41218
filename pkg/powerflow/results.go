package powerflow

import (
	"fmt"
	"io"
	"math/cmplx"

	"github.com/juju/ansiterm"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/solver"
	"github.com/edp1096/toy-powerflow/pkg/util"
)

// IslandSummary describes the outcome of one island.
type IslandSummary struct {
	Index      int
	Buses      int
	Skipped    bool // No slack bus, or dropped as a single node island
	Converged  bool
	Method     solver.Type
	Error      float64
	Iterations int // Outer loop iterations
}

// Results is the output of a power flow run. Bus and branch slices follow
// the full network numbering; buses of unsolved islands keep zero values
// and Island -1.
type Results struct {
	RunID string

	BusNames []string
	Types    []network.BusType
	V        []complex128
	Sbus     []complex128 // MVA
	Island   []int

	BranchNames   []string
	Vbranch       []complex128
	If            []complex128
	It            []complex128
	Sf            []complex128 // MVA
	St            []complex128 // MVA
	Losses        []complex128 // MVA
	Loading       []float64
	FlowDirection []float64

	// Per transformer
	TapModule   []float64
	TapPosition []int

	HvdcNames   []string
	HvdcPf      []float64 // MW
	HvdcPt      []float64 // MW
	HvdcLosses  []float64 // MW
	HvdcLoading []float64

	Converged   bool
	Islands     []IslandSummary
	Reports     []*Report
	Diagnostics []Diagnostic

	hvdcMap []int
}

// NewResults allocates zero results shaped after snap.
func NewResults(snap *network.Snapshot) *Results {
	nb, nbr, nt, nh := snap.NumBuses(), snap.NumBranches(), len(snap.Transformers), len(snap.HvdcNames)
	r := &Results{
		BusNames:      append([]string(nil), snap.BusNames...),
		Types:         append([]network.BusType(nil), snap.Types...),
		V:             make([]complex128, nb),
		Sbus:          make([]complex128, nb),
		Island:        make([]int, nb),
		BranchNames:   append([]string(nil), snap.BranchNames...),
		Vbranch:       make([]complex128, nbr),
		If:            make([]complex128, nbr),
		It:            make([]complex128, nbr),
		Sf:            make([]complex128, nbr),
		St:            make([]complex128, nbr),
		Losses:        make([]complex128, nbr),
		Loading:       make([]float64, nbr),
		FlowDirection: make([]float64, nbr),
		TapModule:     make([]float64, nt),
		TapPosition:   make([]int, nt),
		HvdcNames:     append([]string(nil), snap.HvdcNames...),
		HvdcPf:        make([]float64, nh),
		HvdcPt:        make([]float64, nh),
		HvdcLosses:    make([]float64, nh),
		HvdcLoading:   make([]float64, nh),
		hvdcMap:       append([]int(nil), snap.HvdcMap...),
	}
	for i := range r.Island {
		r.Island[i] = -1
	}
	for ti, k := range snap.Transformers {
		r.TapModule[ti] = snap.TapModule[k]
		r.TapPosition[ti] = snap.TapPosition[k]
	}
	return r
}

// fill stores the island-local solution of snap.
func (r *Results) fill(snap *network.Snapshot, v, sbus []complex128, island int) {
	copy(r.Types, snap.Types)
	copy(r.V, v)
	for i := range r.Island {
		r.Island[i] = island
	}

	fl := BranchFlows(snap, sbus, v)
	copy(r.Sbus, fl.Sbus)
	copy(r.Vbranch, fl.Vbranch)
	copy(r.If, fl.If)
	copy(r.It, fl.It)
	copy(r.Sf, fl.Sf)
	copy(r.St, fl.St)
	copy(r.Losses, fl.Losses)
	copy(r.Loading, fl.Loading)
	copy(r.FlowDirection, fl.FlowDirection)

	for ti, k := range snap.Transformers {
		r.TapModule[ti] = snap.TapModule[k]
		r.TapPosition[ti] = snap.TapPosition[k]
	}

	for h := range snap.HvdcNames {
		pf := snap.HvdcPf[h] * snap.BaseMVA
		pt := snap.HvdcPt[h] * snap.BaseMVA
		r.HvdcPf[h] = pf
		r.HvdcPt[h] = pt
		r.HvdcLosses[h] = pf + pt
		r.HvdcLoading[h] = pf / (snap.HvdcRate[h]*snap.BaseMVA + consts.LOADING_EPS)
	}
}

// ApplyFromIsland merges the island-local results sub into r. The maps give
// the position in r of each island bus, branch and transformer.
func (r *Results) ApplyFromIsland(sub *Results, busMap, branchMap, transformerMap []int) {
	for i, b := range busMap {
		r.Types[b] = sub.Types[i]
		r.V[b] = sub.V[i]
		r.Sbus[b] = sub.Sbus[i]
		r.Island[b] = sub.Island[i]
	}
	for k, br := range branchMap {
		r.Vbranch[br] = sub.Vbranch[k]
		r.If[br] = sub.If[k]
		r.It[br] = sub.It[k]
		r.Sf[br] = sub.Sf[k]
		r.St[br] = sub.St[k]
		r.Losses[br] = sub.Losses[k]
		r.Loading[br] = sub.Loading[k]
		r.FlowDirection[br] = sub.FlowDirection[k]
	}
	for t, tr := range transformerMap {
		r.TapModule[tr] = sub.TapModule[t]
		r.TapPosition[tr] = sub.TapPosition[t]
	}
	for h, hh := range sub.hvdcMap {
		r.HvdcPf[hh] = sub.HvdcPf[h]
		r.HvdcPt[hh] = sub.HvdcPt[h]
		r.HvdcLosses[hh] = sub.HvdcLosses[h]
		r.HvdcLoading[hh] = sub.HvdcLoading[h]
	}
	r.Reports = append(r.Reports, sub.Reports...)
	r.Diagnostics = append(r.Diagnostics, sub.Diagnostics...)
	r.Islands = append(r.Islands, sub.Islands...)
}

// TotalLosses sums the branch losses in MVA.
func (r *Results) TotalLosses() complex128 {
	var total complex128
	for _, l := range r.Losses {
		total += l
	}
	return total
}

func (r *Results) WriteBuses(w io.Writer) error {
	tw := ansiterm.NewTabWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Bus\tType\t|V| (p.u.)\tAngle (deg)\tP (MW)\tQ (MVAr)\tIsland")
	for i, name := range r.BusNames {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			name, r.Types[i],
			util.FormatPU(cmplx.Abs(r.V[i])), util.FormatAngle(r.V[i]),
			util.FormatPower(real(r.Sbus[i])), util.FormatPower(imag(r.Sbus[i])),
			r.Island[i])
	}
	return tw.Flush()
}

func (r *Results) WriteBranches(w io.Writer) error {
	tw := ansiterm.NewTabWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Branch\tPf (MW)\tQf (MVAr)\tPt (MW)\tQt (MVAr)\tLosses (MW)\tLoading")
	for k, name := range r.BranchNames {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			name,
			util.FormatPower(real(r.Sf[k])), util.FormatPower(imag(r.Sf[k])),
			util.FormatPower(real(r.St[k])), util.FormatPower(imag(r.St[k])),
			util.FormatPower(real(r.Losses[k])), util.FormatPercent(r.Loading[k]))
	}
	for h, name := range r.HvdcNames {
		fmt.Fprintf(tw, "%s\t%s\t\t%s\t\t%s\t%s\n",
			name, util.FormatPower(r.HvdcPf[h]), util.FormatPower(r.HvdcPt[h]),
			util.FormatPower(r.HvdcLosses[h]), util.FormatPercent(r.HvdcLoading[h]))
	}
	return tw.Flush()
}
