package powerflow

import (
	"math"
	"slices"
	"strings"
	"time"

	"gopkg.in/errgo.v1"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/solver"
)

// Fallback orders. The primary method is always moved to the front.
var (
	controlOrder   = []solver.Type{solver.NR, solver.LM, solver.HELM, solver.IWAMOTO, solver.LACPF}
	noControlOrder = []solver.Type{solver.NR, solver.HELM, solver.IWAMOTO, solver.LM, solver.LACPF}
)

// Methods returns the candidate methods in the order they are tried.
func Methods(primary solver.Type, retry, anyControl bool) []solver.Type {
	if !retry {
		return []solver.Type{primary}
	}
	order := noControlOrder
	if anyControl {
		order = controlOrder
	}
	methods := []solver.Type{primary}
	for _, t := range order {
		if t != primary {
			methods = append(methods, t)
		}
	}
	return methods
}

// deviceAware maps NR and LM to their variants that solve the continuous
// transformer controls.
func deviceAware(t solver.Type, anyControl bool) solver.Type {
	if !anyControl {
		return t
	}
	switch t {
	case solver.NR:
		return solver.NRACDC
	case solver.LM:
		return solver.LMACDC
	}
	return t
}

// SolveInput is the per-call state handed to the retry engine.
type SolveInput struct {
	V0      []complex128
	Sbus    []complex128
	Ibus    []complex128
	Indices network.Indices
}

func branchState(snap *network.Snapshot) *solver.BranchState {
	return &solver.BranchState{
		F:          snap.F,
		T:          snap.T,
		Ys:         snap.Ys,
		Bc:         snap.Bc,
		TapModule:  slices.Clone(snap.TapModule),
		TapAngle:   slices.Clone(snap.TapAngle),
		Bsh:        slices.Clone(snap.Bsh),
		Controlled: snap.Continuous,
		Vset:       snap.BranchVset,
	}
}

// Solve runs the candidate kernels until one converges and returns the
// best result seen. Every result improving on the best residual is added
// to report. The only error is an unknown method, raised before any
// kernel runs.
func Solve(snap *network.Snapshot, opts Options, in SolveInput, report *Report, diag *Diagnostics, m *Metrics) (solver.Result, error) {
	primary, err := solver.ParseType(string(opts.Method))
	if err != nil {
		return solver.Result{}, errgo.Mask(err, errgo.Is(solver.ErrUnknownMethod))
	}

	anyControl := snap.AnyControl()
	var kernels []solver.Kernel
	for _, t := range Methods(primary, opts.RetryWithOtherMethods, anyControl) {
		t = deviceAware(t, anyControl)
		if slices.ContainsFunc(kernels, func(k solver.Kernel) bool { return k.Type() == t }) {
			continue
		}
		k, err := solver.New(t, opts.params())
		if err != nil {
			return solver.Result{}, errgo.Mask(err, errgo.Is(solver.ErrUnknownMethod))
		}
		kernels = append(kernels, k)
	}

	input := &solver.Input{
		Ybus:      snap.Ybus,
		Yseries:   snap.Yseries,
		Yshunt:    snap.Yshunt,
		Sbus:      in.Sbus,
		Ibus:      in.Ibus,
		V0:        in.V0,
		Vd:        in.Indices.Vd,
		Pv:        in.Indices.Pv,
		Pq:        in.Indices.Pq,
		Pqpv:      in.Indices.Pqpv,
		Tolerance: opts.Tolerance,
		MaxIter:   opts.MaxIter,
		Branch:    branchState(snap),
	}

	if opts.Verbose > 1 {
		diag.Debugf("candidates %s", methodNames(kernels))
	}

	var best solver.Result
	bestNorm := math.Inf(1)
	for _, k := range kernels {
		res := run(k, input, diag)
		m.kernelRun(res)
		if opts.Verbose > 1 {
			diag.Debugf("%s: converged=%t error=%.3e iterations=%d", res.Method, res.Converged, res.Error, res.Iterations)
		}

		if res.Error < bestNorm {
			bestNorm = res.Error
			best = res
			report.Add(res.Method, res.Converged, res.Error, res.Elapsed, res.Iterations)
		}
		if res.Converged {
			break
		}
	}

	backfill(&best, snap)

	if !best.Converged {
		diag.Warningf("solve", "did not converge, best error %.3e with %s", best.Error, best.Method)
	}
	return best, nil
}

// run invokes a kernel, turning a panic or a non-finite residual into a
// failed result.
func run(k solver.Kernel, in *solver.Input, diag *Diagnostics) (res solver.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			diag.Errorf("solve", "%s panicked: %v", k.Type(), r)
			res = k.Type().Failed(in.V0)
			res.Elapsed = time.Since(start)
		}
	}()

	res = k.Solve(in)
	if math.IsNaN(res.Error) || math.IsInf(res.Error, 0) {
		res.Error = consts.HUGE_RESIDUAL
		res.Converged = false
	}
	return res
}

// backfill fills the branch device arrays left nil by kernels without
// device support.
func backfill(res *solver.Result, snap *network.Snapshot) {
	if res.TapModule == nil {
		res.TapModule = slices.Clone(snap.TapModule)
	}
	if res.TapAngle == nil {
		res.TapAngle = slices.Clone(snap.TapAngle)
	}
	if res.Bsh == nil {
		res.Bsh = slices.Clone(snap.Bsh)
	}
	if res.Scalc == nil {
		res.Scalc = make([]complex128, len(res.V))
	}
}

func methodNames(kernels []solver.Kernel) string {
	names := make([]string, len(kernels))
	for i, k := range kernels {
		names[i] = string(k.Type())
	}
	return "[" + strings.Join(names, ", ") + "]"
}
