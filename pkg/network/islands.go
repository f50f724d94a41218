package network

import (
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// IslandBuses returns the connected bus groups, each sorted, ordered by
// their lowest bus index.
func (s *Snapshot) IslandBuses() [][]int {
	g := simple.NewUndirectedGraph()
	for i := range s.NumBuses() {
		g.AddNode(simple.Node(int64(i)))
	}
	for k := range s.F {
		if s.F[k] == s.T[k] {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(int64(s.F[k])), T: simple.Node(int64(s.T[k]))})
	}

	components := topo.ConnectedComponents(g)
	islands := make([][]int, 0, len(components))
	for _, comp := range components {
		buses := make([]int, len(comp))
		for i, n := range comp {
			buses[i] = int(n.ID())
		}
		slices.Sort(buses)
		islands = append(islands, buses)
	}
	slices.SortFunc(islands, func(a, b []int) int { return a[0] - b[0] })
	return islands
}

// Islands splits the snapshot into independently solvable sub-snapshots.
// A single island spanning every bus is the snapshot itself.
func (s *Snapshot) Islands(ignoreSingleNode bool) []*Snapshot {
	groups := s.IslandBuses()
	if len(groups) == 1 && len(groups[0]) == s.NumBuses() {
		return []*Snapshot{s}
	}

	islands := make([]*Snapshot, 0, len(groups))
	for _, buses := range groups {
		if ignoreSingleNode && len(buses) == 1 {
			continue
		}
		islands = append(islands, s.Subset(buses))
	}
	return islands
}

// Subset extracts the buses given (sorted, 0-based) with every branch and
// HVDC link lying inside them. Index maps point back into s.
func (s *Snapshot) Subset(buses []int) *Snapshot {
	local := make(map[int]int, len(buses))
	for i, b := range buses {
		local[b] = i
	}

	sub := newSnapshot(s.Name, s.BaseMVA, len(buses))
	for i, b := range buses {
		sub.BusNames[i] = s.BusNames[b]
		sub.Types[i] = s.Types[b]
		sub.Vset[i] = s.Vset[b]
		sub.V0[i] = s.V0[b]
		sub.Sbus[i] = s.Sbus[b]
		sub.Ibus[i] = s.Ibus[b]
		sub.Yshunt[i] = s.Yshunt[b]
		sub.Qmax[i] = s.Qmax[b]
		sub.Qmin[i] = s.Qmin[b]
		sub.InstalledPower[i] = s.InstalledPower[b]
		sub.BusMap[i] = s.BusMap[b]
	}

	isTransformer := make(map[int]int, len(s.Transformers))
	for ti, k := range s.Transformers {
		isTransformer[k] = ti
	}

	for k := range s.F {
		f, okf := local[s.F[k]]
		t, okt := local[s.T[k]]
		if !okf || !okt {
			continue
		}
		kk := len(sub.F)
		sub.BranchNames = append(sub.BranchNames, s.BranchNames[k])
		sub.F = append(sub.F, f)
		sub.T = append(sub.T, t)
		sub.Ys = append(sub.Ys, s.Ys[k])
		sub.Bc = append(sub.Bc, s.Bc[k])
		sub.Rates = append(sub.Rates, s.Rates[k])
		sub.TapModule = append(sub.TapModule, s.TapModule[k])
		sub.TapAngle = append(sub.TapAngle, s.TapAngle[k])
		sub.TapPosition = append(sub.TapPosition, s.TapPosition[k])
		sub.MinTap = append(sub.MinTap, s.MinTap[k])
		sub.MaxTap = append(sub.MaxTap, s.MaxTap[k])
		sub.TapIncUp = append(sub.TapIncUp, s.TapIncUp[k])
		sub.TapIncDown = append(sub.TapIncDown, s.TapIncDown[k])
		sub.Regulated = append(sub.Regulated, s.Regulated[k])
		sub.Continuous = append(sub.Continuous, s.Continuous[k])
		sub.BranchVset = append(sub.BranchVset, s.BranchVset[k])
		sub.Bsh = append(sub.Bsh, s.Bsh[k])
		sub.BranchMap = append(sub.BranchMap, s.BranchMap[k])
		if ti, ok := isTransformer[k]; ok {
			sub.Transformers = append(sub.Transformers, kk)
			sub.TransformerMap = append(sub.TransformerMap, s.TransformerMap[ti])
		}
	}

	for h := range s.HvdcF {
		f, ok := local[s.HvdcF[h]]
		if !ok {
			continue
		}
		// Reported by the island holding the sending end
		t := -1
		if lt, ok := local[s.HvdcT[h]]; ok {
			t = lt
		}
		sub.HvdcNames = append(sub.HvdcNames, s.HvdcNames[h])
		sub.HvdcF = append(sub.HvdcF, f)
		sub.HvdcT = append(sub.HvdcT, t)
		sub.HvdcPf = append(sub.HvdcPf, s.HvdcPf[h])
		sub.HvdcPt = append(sub.HvdcPt, s.HvdcPt[h])
		sub.HvdcRate = append(sub.HvdcRate, s.HvdcRate[h])
		sub.HvdcMap = append(sub.HvdcMap, s.HvdcMap[h])
	}

	sub.RecomputeAdmittance()
	return sub
}
