// Package solver holds the inner power-flow kernels. Every kernel takes
// the same Input and returns a Result; kernels never panic on numerical
// trouble, they report Converged=false with a large residual instead.
package solver

import (
	"strings"
	"time"

	"gopkg.in/errgo.v1"

	"github.com/edp1096/toy-powerflow/internal/consts"
	"github.com/edp1096/toy-powerflow/pkg/matrix"
)

var ErrUnknownMethod = errgo.New("unknown solver method")

type Type string

const (
	NR      Type = "NR"
	NRACDC  Type = "NR_ACDC"
	LM      Type = "LM"
	LMACDC  Type = "LM_ACDC"
	HELM    Type = "HELM"
	FD      Type = "FD"
	DC      Type = "DC"
	LACPF   Type = "LACPF"
	IWAMOTO Type = "IWAMOTO"
	NRI     Type = "NR_I"
)

var aliases = map[string]Type{
	"NR":                  NR,
	"NEWTON-RAPHSON":      NR,
	"NEWTON_RAPHSON":      NR,
	"NR_ACDC":             NRACDC,
	"LM":                  LM,
	"LEVENBERG-MARQUARDT": LM,
	"LEVENBERG_MARQUARDT": LM,
	"LM_ACDC":             LMACDC,
	"HELM":                HELM,
	"FD":                  FD,
	"FAST-DECOUPLED":      FD,
	"FAST_DECOUPLED":      FD,
	"DC":                  DC,
	"LACPF":               LACPF,
	"IWAMOTO":             IWAMOTO,
	"IWAMOTO-NR":          IWAMOTO,
	"NR_I":                NRI,
	"NR_CURRENT":          NRI,
	"CURRENT-INJECTION":   NRI,
}

// ParseType accepts the canonical method names and a few spelled-out aliases.
func ParseType(name string) (Type, error) {
	if t, ok := aliases[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return "", errgo.WithCausef(nil, ErrUnknownMethod, "unknown solver method %q", name)
}

// BranchState is the per-branch device state consumed by device-aware kernels.
// Controlled branches regulate the voltage of their "to" bus with a
// continuous tap module.
type BranchState struct {
	F, T       []int
	Ys         []complex128
	Bc         []float64
	TapModule  []float64
	TapAngle   []float64
	Bsh        []float64
	Controlled []bool
	Vset       []float64
}

type Input struct {
	Ybus    *matrix.CSR
	Yseries *matrix.CSR
	Yshunt  []complex128
	Sbus    []complex128
	Ibus    []complex128
	V0      []complex128
	Vd      []int
	Pv      []int
	Pq      []int
	Pqpv    []int

	Tolerance float64
	MaxIter   int
	Branch    *BranchState
}

// Result is the outcome of one kernel invocation. TapModule, TapAngle and
// Bsh are nil for kernels that do not model branch devices.
type Result struct {
	Method     Type
	V          []complex128
	Converged  bool
	Error      float64
	Scalc      []complex128
	TapModule  []float64
	TapAngle   []float64
	Bsh        []float64
	Iterations int
	Elapsed    time.Duration
}

// Failed is the result reported for a kernel that produced nothing usable.
func (t Type) Failed(v0 []complex128) Result {
	return Result{
		Method: t,
		V:      append([]complex128(nil), v0...),
		Error:  consts.HUGE_RESIDUAL,
	}
}

type Kernel interface {
	Type() Type
	Solve(in *Input) Result
}

// Params holds the acceleration settings shared by the kernel variants.
type Params struct {
	Backtracking float64 // NR step reduction factor, 0 disables
	LambdaSeed   float64 // LM initial damping relative to max(diag(JᵀJ))
	HelmOrder    int     // Maximum HELM series order
}

func New(t Type, p Params) (Kernel, error) {
	switch t {
	case NR:
		return &NewtonRaphson{Backtracking: p.Backtracking}, nil
	case NRACDC:
		return &NewtonRaphson{Backtracking: p.Backtracking, DeviceAware: true}, nil
	case LM:
		return &LevenbergMarquardt{LambdaSeed: p.LambdaSeed}, nil
	case LMACDC:
		return &LevenbergMarquardt{LambdaSeed: p.LambdaSeed, DeviceAware: true}, nil
	case HELM:
		return &Helm{MaxOrder: p.HelmOrder}, nil
	case FD:
		return &FastDecoupled{}, nil
	case DC:
		return &Linear{}, nil
	case LACPF:
		return &LinearAC{}, nil
	case IWAMOTO:
		return &Iwamoto{}, nil
	case NRI:
		return &CurrentInjection{}, nil
	}
	return nil, errgo.WithCausef(nil, ErrUnknownMethod, "unknown solver method %q", string(t))
}
