package powerflow

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/errgo.v1"
	"gopkg.in/yaml.v3"

	"github.com/edp1096/toy-powerflow/pkg/solver"
)

var ErrInvalidOptions = errgo.New("invalid power flow options")

// ControlMode selects how an outer control loop adjusts the network.
type ControlMode int

const (
	ControlNone ControlMode = iota
	ControlDirect
	ControlIterative
)

func (m ControlMode) String() string {
	switch m {
	case ControlNone:
		return "none"
	case ControlDirect:
		return "direct"
	case ControlIterative:
		return "iterative"
	}
	return fmt.Sprintf("ControlMode(%d)", int(m))
}

func ParseControlMode(s string) (ControlMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off", "no":
		return ControlNone, nil
	case "direct":
		return ControlDirect, nil
	case "iterative":
		return ControlIterative, nil
	}
	return ControlNone, errgo.WithCausef(nil, ErrInvalidOptions, "unknown control mode %q", s)
}

func (m ControlMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ControlMode) UnmarshalText(text []byte) error {
	mode, err := ParseControlMode(string(text))
	if err != nil {
		return errgo.Mask(err, errgo.Is(ErrInvalidOptions))
	}
	*m = mode
	return nil
}

// Options configures one power flow run.
type Options struct {
	Method                solver.Type `yaml:"method" validate:"required"`
	RetryWithOtherMethods bool        `yaml:"retry_with_other_methods"`
	Tolerance             float64     `yaml:"tolerance" validate:"gt=0"`
	MaxIter               int         `yaml:"max_iter" validate:"min=1"`
	MaxOuterLoopIter      int         `yaml:"max_outer_loop_iter" validate:"min=1"`
	ControlQ              ControlMode `yaml:"control_q" validate:"min=0,max=2"`
	ControlTaps           ControlMode `yaml:"control_taps" validate:"min=0,max=2"`
	DistributedSlack      bool        `yaml:"distributed_slack"`

	Backtracking float64 `yaml:"backtracking" validate:"gte=0,lt=1"`
	LambdaSeed   float64 `yaml:"lambda_seed" validate:"gt=0"`
	QSteepness   float64 `yaml:"q_steepness" validate:"gt=0"`
	HelmOrder    int     `yaml:"helm_order" validate:"min=2"`

	IgnoreSingleNodeIslands bool `yaml:"ignore_single_node_islands"`
	Parallel                bool `yaml:"parallel"`
	Workers                 int  `yaml:"workers" validate:"min=0"` // 0 means one per island
	Verbose                 int  `yaml:"verbose" validate:"min=0,max=2"`
}

func DefaultOptions() Options {
	return Options{
		Method:           solver.NR,
		Tolerance:        1e-6,
		MaxIter:          25,
		MaxOuterLoopIter: 100,
		Backtracking:     0.5,
		LambdaSeed:       1e-3,
		QSteepness:       30,
		HelmOrder:        40,
	}
}

var validate = validator.New()

// Validate checks the options. An unknown method keeps solver.ErrUnknownMethod
// as its cause; every other problem has cause ErrInvalidOptions.
func (o Options) Validate() error {
	if _, err := solver.ParseType(string(o.Method)); err != nil {
		return errgo.Mask(err, errgo.Is(solver.ErrUnknownMethod))
	}
	if err := validate.Struct(o); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func (o Options) params() solver.Params {
	return solver.Params{
		Backtracking: o.Backtracking,
		LambdaSeed:   o.LambdaSeed,
		HelmOrder:    o.HelmOrder,
	}
}

func formatValidationError(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return errgo.WithCausef(err, ErrInvalidOptions, "")
	}

	e := errs[0]
	switch e.Tag() {
	case "required":
		return errgo.WithCausef(nil, ErrInvalidOptions, "%s: field is required", e.Field())
	case "min", "gte":
		return errgo.WithCausef(nil, ErrInvalidOptions, "%s: must be at least %s", e.Field(), e.Param())
	case "max", "lte":
		return errgo.WithCausef(nil, ErrInvalidOptions, "%s: must not exceed %s", e.Field(), e.Param())
	case "gt":
		return errgo.WithCausef(nil, ErrInvalidOptions, "%s: must be greater than %s", e.Field(), e.Param())
	case "lt":
		return errgo.WithCausef(nil, ErrInvalidOptions, "%s: must be less than %s", e.Field(), e.Param())
	}
	return errgo.WithCausef(nil, ErrInvalidOptions, "%s: validation failed (%s)", e.Field(), e.Tag())
}

// LoadOptions reads YAML options over the defaults. Unknown keys are rejected.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return Options{}, errgo.WithCausef(err, ErrInvalidOptions, "cannot decode options")
	}
	if err := opts.Validate(); err != nil {
		return Options{}, errgo.Mask(err, errgo.Any)
	}
	return opts, nil
}

// Set applies one key=value override using the YAML key names.
func (o *Options) Set(key, value string) error {
	doc := fmt.Sprintf("%s: %s", strings.ToLower(key), value)
	dec := yaml.NewDecoder(strings.NewReader(doc))
	dec.KnownFields(true)
	if err := dec.Decode(o); err != nil {
		return errgo.WithCausef(err, ErrInvalidOptions, "cannot set %s=%s", key, value)
	}
	return nil
}
