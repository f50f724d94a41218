package powerflow

import (
	"fmt"

	"github.com/juju/loggo"
)

type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "?"
}

type Diagnostic struct {
	Severity Severity
	Source   string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Severity, d.Source, d.Message)
}

// Diagnostics collects the messages of one island solve. Every entry is
// also forwarded to the logger it was created with.
type Diagnostics struct {
	logger  loggo.Logger
	prefix  string
	entries []Diagnostic
}

func NewDiagnostics(logger loggo.Logger, prefix string) *Diagnostics {
	return &Diagnostics{logger: logger, prefix: prefix}
}

func (d *Diagnostics) add(sev Severity, source, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.entries = append(d.entries, Diagnostic{Severity: sev, Source: source, Message: msg})

	line := source + ": " + msg
	if d.prefix != "" {
		line = d.prefix + " " + line
	}
	switch sev {
	case Info:
		d.logger.Infof("%s", line)
	case Warning:
		d.logger.Warningf("%s", line)
	default:
		d.logger.Errorf("%s", line)
	}
}

func (d *Diagnostics) Infof(source, format string, args ...any) {
	d.add(Info, source, format, args...)
}

func (d *Diagnostics) Warningf(source, format string, args ...any) {
	d.add(Warning, source, format, args...)
}

func (d *Diagnostics) Errorf(source, format string, args ...any) {
	d.add(Error, source, format, args...)
}

// Debugf goes to the logger only.
func (d *Diagnostics) Debugf(format string, args ...any) {
	if d.prefix != "" {
		format = d.prefix + " " + format
	}
	d.logger.Debugf(format, args...)
}

func (d *Diagnostics) Entries() []Diagnostic {
	return append([]Diagnostic(nil), d.entries...)
}

func (d *Diagnostics) Len() int {
	return len(d.entries)
}

func (d *Diagnostics) HasErrors() bool {
	for _, e := range d.entries {
		if e.Severity == Error {
			return true
		}
	}
	return false
}
