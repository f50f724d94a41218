package powerflow

import (
	"fmt"
	"io"
	"time"

	"github.com/juju/ansiterm"

	"github.com/edp1096/toy-powerflow/pkg/solver"
)

type ReportEntry struct {
	Method     solver.Type
	Converged  bool
	Error      float64
	Elapsed    time.Duration
	Iterations int
}

// Report is the append-only record of the kernel results that improved on
// the best residual of a solve.
type Report struct {
	entries []ReportEntry
}

func (r *Report) Add(method solver.Type, converged bool, norm float64, elapsed time.Duration, iterations int) {
	r.entries = append(r.entries, ReportEntry{
		Method:     method,
		Converged:  converged,
		Error:      norm,
		Elapsed:    elapsed,
		Iterations: iterations,
	})
}

// Entries returns a copy of the entries in insertion order.
func (r *Report) Entries() []ReportEntry {
	return append([]ReportEntry(nil), r.entries...)
}

func (r *Report) Len() int {
	return len(r.entries)
}

func (r *Report) last() (ReportEntry, bool) {
	if len(r.entries) == 0 {
		return ReportEntry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

func (r *Report) LastMethod() solver.Type {
	e, _ := r.last()
	return e.Method
}

func (r *Report) Converged() bool {
	e, _ := r.last()
	return e.Converged
}

func (r *Report) LastError() float64 {
	e, ok := r.last()
	if !ok {
		return 0
	}
	return e.Error
}

func (r *Report) LastElapsed() time.Duration {
	e, _ := r.last()
	return e.Elapsed
}

func (r *Report) LastIterations() int {
	e, _ := r.last()
	return e.Iterations
}

// WriteTable prints the entries as an aligned table.
func (r *Report) WriteTable(w io.Writer) error {
	tw := ansiterm.NewTabWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Method\tConverged\tError\tElapsed\tIterations")
	for _, e := range r.entries {
		fmt.Fprintf(tw, "%s\t%t\t%.4e\t%s\t%d\n", e.Method, e.Converged, e.Error, e.Elapsed, e.Iterations)
	}
	return tw.Flush()
}
