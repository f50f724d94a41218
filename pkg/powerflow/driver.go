package powerflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/juju/loggo"
	"golang.org/x/sync/errgroup"
	"gopkg.in/errgo.v1"

	"github.com/edp1096/toy-powerflow/pkg/network"
	"github.com/edp1096/toy-powerflow/pkg/solver"
)

// Driver runs a power flow over every island of a network.
type Driver struct {
	Options Options
	Logger  loggo.Logger
	Metrics *Metrics // May be nil

	net     *network.Network
	results *Results
}

func NewDriver(opts Options, logger loggo.Logger, m *Metrics) *Driver {
	return &Driver{
		Options: opts,
		Logger:  logger,
		Metrics: m,
	}
}

// Setup validates the options against the network to be solved. An unknown
// method is reported here, before any numerical work.
func (d *Driver) Setup(net *network.Network) error {
	if err := d.Options.Validate(); err != nil {
		return errgo.Mask(err, errgo.Is(solver.ErrUnknownMethod), errgo.Is(ErrInvalidOptions))
	}
	d.net = net
	d.results = nil
	return nil
}

func (d *Driver) Execute(ctx context.Context) error {
	if d.net == nil {
		return errgo.New("driver not set up")
	}
	snap, err := d.net.Compile()
	if err != nil {
		return errgo.Mask(err, errgo.Is(network.ErrInvalidModel))
	}
	results, err := d.run(ctx, snap)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	d.results = results
	return nil
}

func (d *Driver) GetResults() *Results {
	return d.results
}

// Run is Setup followed by Execute.
func Run(ctx context.Context, net *network.Network, opts Options, logger loggo.Logger, m *Metrics) (*Results, error) {
	d := NewDriver(opts, logger, m)
	if err := d.Setup(net); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	if err := d.Execute(ctx); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return d.GetResults(), nil
}

// SolveSnapshot runs the driver on an already compiled snapshot.
func SolveSnapshot(ctx context.Context, snap *network.Snapshot, opts Options, logger loggo.Logger, m *Metrics) (*Results, error) {
	d := NewDriver(opts, logger, m)
	if err := opts.Validate(); err != nil {
		return nil, errgo.Mask(err, errgo.Is(solver.ErrUnknownMethod), errgo.Is(ErrInvalidOptions))
	}
	return d.run(ctx, snap)
}

func (d *Driver) run(ctx context.Context, snap *network.Snapshot) (*Results, error) {
	runID := uuid.NewString()
	opts := d.Options

	islands := snap.Islands(opts.IgnoreSingleNodeIslands)
	d.Logger.Infof("run %s: %d buses, %d branches, %d islands", runID, snap.NumBuses(), snap.NumBranches(), len(islands))

	subs := make([]*Results, len(islands))
	solveOne := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		diag := NewDiagnostics(d.Logger, fmt.Sprintf("[%s island %d]", runID[:8], i))
		sub, err := solveIsland(islands[i], i, opts, diag, d.Metrics)
		if err != nil {
			return errgo.Mask(err, errgo.Any)
		}
		subs[i] = sub
		return nil
	}

	if opts.Parallel && len(islands) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		if opts.Workers > 0 {
			g.SetLimit(opts.Workers)
		}
		for i := range islands {
			g.Go(func() error { return solveOne(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, errgo.Mask(err, errgo.Any)
		}
	} else {
		for i := range islands {
			if err := solveOne(ctx, i); err != nil {
				return nil, errgo.Mask(err, errgo.Any)
			}
		}
	}

	// A single island spanning every bus is already the full result
	if len(islands) == 1 && islands[0] == snap {
		res := subs[0]
		res.RunID = runID
		return res, nil
	}

	res := NewResults(snap)
	res.RunID = runID
	res.Converged = true
	for i, island := range islands {
		sub := subs[i]
		res.ApplyFromIsland(sub, island.BusMap, island.BranchMap, island.TransformerMap)
		if !sub.Converged {
			res.Converged = false
		}
	}

	if opts.IgnoreSingleNodeIslands {
		for _, buses := range snap.IslandBuses() {
			if len(buses) == 1 {
				msg := fmt.Sprintf("single node island %s ignored", snap.BusNames[buses[0]])
				d.Logger.Infof("run %s: %s", runID, msg)
				res.Diagnostics = append(res.Diagnostics, Diagnostic{Severity: Info, Source: "island", Message: msg})
				res.Islands = append(res.Islands, IslandSummary{Index: -1, Buses: 1, Skipped: true})
				d.Metrics.island("skipped")
			}
		}
	}
	return res, nil
}
