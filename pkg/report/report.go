// Package report collects the findings of a check pass. A finding never
// aborts anything by itself: callers decide whether to continue, and the
// CLI turns the error count into the exit status.
package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
)

// Severity of a finding
type Severity int

const (
	// Notice is informational, e.g. an unreachable private overlay
	Notice Severity = iota
	// Warning is a soft problem, e.g. an outdated patch
	Warning
	// Error is a defect; the pass continues
	Error
	// Fatal is a defect that stopped its domain
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Notice:
		return "NOTICE"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Finding is one reported condition
type Finding struct {
	Severity Severity
	Domain   string
	Message  string
}

func (f Finding) String() string {
	if f.Domain == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Domain, f.Message)
}

// Reporter accumulates findings and optionally prints them as they arrive.
// It is safe for concurrent use.
type Reporter struct {
	mu       sync.Mutex
	findings []Finding
	out      io.Writer
	color    bool
	printers map[Severity]*pterm.PrefixPrinter
}

// New creates a reporter printing to out. Colour is used only when out is
// a terminal and NO_COLOR is unset.
func New(out io.Writer) *Reporter {
	r := &Reporter{out: out}
	if f, ok := out.(*os.File); ok && os.Getenv("NO_COLOR") == "" {
		r.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	fatal := pterm.Error
	fatal.Prefix = pterm.Prefix{Text: "FATAL", Style: pterm.NewStyle(pterm.BgRed, pterm.FgWhite, pterm.Bold)}
	r.printers = map[Severity]*pterm.PrefixPrinter{
		Notice:  pterm.Info.WithWriter(out),
		Warning: pterm.Warning.WithWriter(out),
		Error:   pterm.Error.WithWriter(out),
		Fatal:   fatal.WithWriter(out),
	}
	return r
}

// NewCollector creates a reporter that only records
func NewCollector() *Reporter {
	return &Reporter{}
}

// Report records a finding
func (r *Reporter) Report(sev Severity, domain, message string) {
	f := Finding{Severity: sev, Domain: domain, Message: message}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.findings = append(r.findings, f)
	r.print(f)
}

func (r *Reporter) print(f Finding) {
	if r.out == nil {
		return
	}
	if !r.color {
		_, _ = fmt.Fprintf(r.out, "%s: %s\n", f.Severity, f.String())
		return
	}
	r.printers[f.Severity].Println(f.String())
}

// Errorf records an Error finding
func (r *Reporter) Errorf(domain, format string, args ...interface{}) {
	r.Report(Error, domain, fmt.Sprintf(format, args...))
}

// Warnf records a Warning finding
func (r *Reporter) Warnf(domain, format string, args ...interface{}) {
	r.Report(Warning, domain, fmt.Sprintf(format, args...))
}

// Noticef records a Notice finding
func (r *Reporter) Noticef(domain, format string, args ...interface{}) {
	r.Report(Notice, domain, fmt.Sprintf(format, args...))
}

// Fatalf records a Fatal finding
func (r *Reporter) Fatalf(domain, format string, args ...interface{}) {
	r.Report(Fatal, domain, fmt.Sprintf(format, args...))
}

// Findings returns every recorded finding in order
func (r *Reporter) Findings() []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Finding(nil), r.findings...)
}

// Errors returns the Error and Fatal findings
func (r *Reporter) Errors() []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []Finding
	for _, f := range r.findings {
		if f.Severity >= Error {
			errs = append(errs, f)
		}
	}
	return errs
}

// Count returns the number of findings of one severity
func (r *Reporter) Count(sev Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// HasFatal reports whether any Fatal finding was recorded
func (r *Reporter) HasFatal() bool {
	return r.Count(Fatal) > 0
}

// Reset forgets every finding
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findings = nil
}
