package powerflow

import (
	"math"
	"math/cmplx"
	"slices"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/solver"
)

// Flows holds the bus injections and branch quantities derived from a
// voltage solution. Powers are in MVA, currents and voltages in p.u.
type Flows struct {
	Sbus          []complex128
	Vbranch       []complex128
	If            []complex128
	It            []complex128
	Sf            []complex128
	St            []complex128
	Losses        []complex128
	Loading       []float64
	FlowDirection []float64
}

// BranchFlows computes the flows of v over the snapshot's branches. The
// slack injections are recomputed from v, and so is the reactive part of
// the PV injections. sbus is in p.u. and is not modified.
func BranchFlows(snap *network.Snapshot, sbus, v []complex128) Flows {
	base := complex(snap.BaseMVA, 0)
	idx := snap.Indices()

	scalc := solver.Power(snap.Ybus, v, snap.Ibus)
	s := slices.Clone(sbus)
	for _, i := range idx.Vd {
		s[i] = scalc[i]
	}
	for _, i := range idx.Pv {
		s[i] = complex(real(sbus[i]), imag(scalc[i]))
	}
	for i := range s {
		s[i] *= base
	}

	vf := snap.Cf.MulVec(v)
	vt := snap.Ct.MulVec(v)
	fl := Flows{
		Sbus:          s,
		Vbranch:       make([]complex128, len(vf)),
		If:            snap.Yf.MulVec(v),
		It:            snap.Yt.MulVec(v),
		Sf:            make([]complex128, len(vf)),
		St:            make([]complex128, len(vf)),
		Losses:        make([]complex128, len(vf)),
		Loading:       make([]float64, len(vf)),
		FlowDirection: make([]float64, len(vf)),
	}
	for k := range vf {
		fl.Vbranch[k] = vf[k] - vt[k]
		fl.Sf[k] = vf[k] * cmplx.Conj(fl.If[k]) * base
		fl.St[k] = vt[k] * cmplx.Conj(fl.It[k]) * base
		fl.Losses[k] = fl.Sf[k] + fl.St[k]
		fl.Loading[k] = real(fl.Sf[k]) / (snap.Rates[k]*snap.BaseMVA + consts.LOADING_EPS)
		if p := real(fl.Sf[k]); p != 0 {
			fl.FlowDirection[k] = math.Copysign(1, p)
		}
	}
	return fl
}
