package powerflow

import (
	"slices"

	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/solver"
)

type stage int

const (
	stageInitial stage = iota
	stageInnerSolving
	stageReactiveControl
	stageTapControl
	stageAdmittanceRecompute
	stageConverged
	stageMaxIterations
)

func (s stage) String() string {
	return [...]string{
		"initial",
		"inner solving",
		"reactive control",
		"tap control",
		"admittance recompute",
		"converged",
		"max iterations",
	}[s]
}

// islandSolver runs the outer control loop of one island. It owns the
// snapshot for the duration of the solve.
type islandSolver struct {
	snap    *network.Snapshot
	opts    Options
	diag    *Diagnostics
	metrics *Metrics
	report  *Report

	original []network.BusType
	idx      network.Indices
	v0       []complex128
	sbus     []complex128
	stage    stage
}

func (is *islandSolver) enter(s stage) {
	is.stage = s
	if is.opts.Verbose > 0 {
		is.diag.Debugf("stage %s", s)
	}
}

// solveIsland solves one island and returns its island-local results.
// The snapshot's bus types, taps and admittances are updated in place.
func solveIsland(snap *network.Snapshot, island int, opts Options, diag *Diagnostics, m *Metrics) (*Results, error) {
	is := &islandSolver{
		snap:     snap,
		opts:     opts,
		diag:     diag,
		metrics:  m,
		report:   &Report{},
		original: slices.Clone(snap.Types),
		idx:      snap.Indices(),
		v0:       slices.Clone(snap.V0),
		sbus:     slices.Clone(snap.Sbus),
	}
	is.enter(stageInitial)

	summary := IslandSummary{Index: island, Buses: snap.NumBuses()}
	res := NewResults(snap)
	res.Reports = []*Report{is.report}

	if len(is.idx.Vd) == 0 {
		diag.Warningf("island", "no slack bus in island %d (%d buses), not solved", island, snap.NumBuses())
		summary.Skipped = true
		summary.Converged = true
		res.Converged = true
		res.Islands = []IslandSummary{summary}
		res.Diagnostics = diag.Entries()
		m.island("skipped")
		return res, nil
	}

	result, outer, err := is.loop()
	if err != nil {
		return nil, err
	}
	m.outerLoop(outer)

	is.applyContinuousTaps(result)
	res.fill(snap, result.V, is.sbus, island)
	res.Converged = result.Converged

	summary.Converged = result.Converged
	summary.Method = result.Method
	summary.Error = result.Error
	summary.Iterations = outer
	res.Islands = []IslandSummary{summary}

	if result.Converged {
		m.island("converged")
	} else {
		m.island("failed")
	}
	res.Diagnostics = diag.Entries()
	return res, nil
}

func (is *islandSolver) loop() (solver.Result, int, error) {
	var result solver.Result
	qIssue, tapIssue := true, true
	outer := 0

	for (qIssue || tapIssue) && outer < is.opts.MaxOuterLoopIter {
		is.enter(stageInnerSolving)
		var err error
		result, err = Solve(is.snap, is.opts, is.input(), is.report, is.diag, is.metrics)
		if err != nil {
			return result, outer, err
		}

		if is.opts.DistributedSlack && result.Converged {
			if sbus, ok := is.distributeSlack(result); ok {
				is.sbus = sbus
				if result, err = Solve(is.snap, is.opts, is.input(), is.report, is.diag, is.metrics); err != nil {
					return result, outer, err
				}
			}
		}

		if result.Converged {
			is.v0 = slices.Clone(result.V)
			qIssue = is.controlQ(result)
			tapIssue = is.controlTaps()
		} else {
			is.diag.Warningf("outer", "inner solve failed at outer iteration %d, controls skipped", outer)
			qIssue, tapIssue = false, false
		}

		outer++
		if is.opts.Verbose > 0 {
			is.diag.Infof("outer", "iteration %d: error %.3e with %s, q issue %t, tap issue %t",
				outer, result.Error, result.Method, qIssue, tapIssue)
		}
	}

	if qIssue || tapIssue {
		is.enter(stageMaxIterations)
		is.diag.Warningf("outer", "controls did not settle in %d outer iterations", outer)
	} else {
		is.enter(stageConverged)
	}
	return result, outer, nil
}

func (is *islandSolver) input() SolveInput {
	return SolveInput{
		V0:      is.v0,
		Sbus:    is.sbus,
		Ibus:    is.snap.Ibus,
		Indices: is.idx,
	}
}

// distributeSlack shares the slack surplus among the buses in proportion
// to their installed power.
func (is *islandSolver) distributeSlack(result solver.Result) ([]complex128, bool) {
	var total float64
	for _, p := range is.snap.InstalledPower {
		total += p
	}
	if total <= 0 {
		is.diag.Warningf("outer", "distributed slack requested but no installed power in the island")
		return nil, false
	}

	var surplus float64
	for _, i := range is.idx.Vd {
		surplus += real(result.Scalc[i]) - real(is.sbus[i])
	}

	sbus := slices.Clone(is.sbus)
	for i, p := range is.snap.InstalledPower {
		sbus[i] += complex(surplus*p/total, 0)
	}
	return sbus, true
}

func (is *islandSolver) controlQ(result solver.Result) bool {
	if is.opts.ControlQ == ControlNone {
		return false
	}
	is.enter(stageReactiveControl)

	q := make([]float64, len(result.Scalc))
	for i, s := range result.Scalc {
		q[i] = imag(s)
	}
	qc := QControl{
		V:        is.v0,
		Vset:     is.snap.Vset,
		Q:        q,
		Qmax:     is.snap.Qmax,
		Qmin:     is.snap.Qmin,
		Types:    is.snap.Types,
		Original: is.original,
	}

	var out QControlResult
	if is.opts.ControlQ == ControlDirect {
		out = ControlQDirect(qc)
		is.v0 = out.V
	} else {
		out = ControlQIterative(qc, is.opts.QSteepness)
	}
	if !out.Issue {
		return false
	}

	for i, t := range out.Types {
		if is.original[i] == network.PV && t == network.PQ {
			is.sbus[i] = complex(real(is.sbus[i]), out.Q[i])
		}
	}
	is.idx = is.snap.SetBusTypes(out.Types)
	return true
}

func (is *islandSolver) controlTaps() bool {
	var policy func([]complex128, TapControl) (bool, []float64, []int)
	switch is.opts.ControlTaps {
	case ControlDirect:
		policy = ControlTapsDirect
	case ControlIterative:
		policy = ControlTapsIterative
	default:
		return false
	}
	is.enter(stageTapControl)

	stable, module, position := policy(is.v0, tapControlOf(is.snap))
	if stable {
		return false
	}

	is.enter(stageAdmittanceRecompute)
	is.snap.ApplyTaps(position, module)
	is.snap.RecomputeAdmittance()
	return true
}

// applyContinuousTaps stores the modules found by a device-aware kernel
// so post-processing sees the admittances the solve converged with.
func (is *islandSolver) applyContinuousTaps(result solver.Result) {
	if !is.snap.AnyControl() || result.TapModule == nil {
		return
	}
	module := slices.Clone(is.snap.TapModule)
	for k, c := range is.snap.Continuous {
		if c {
			module[k] = result.TapModule[k]
		}
	}
	is.snap.ApplyTaps(is.snap.TapPosition, module)
	is.snap.RecomputeAdmittance()
}
