// Package readiness determines when a freshly launched backend can serve
// traffic. Two independent signals race: a marker substring in the captured
// output, and a timeout-triggered health probe fallback. A process exit
// always wins over both.
package readiness

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loykin/sidecard/internal/launcher"
)

// Error is the terminal outcome of a failed readiness wait. It carries the
// buffered output tails because the process output is lost once reaped.
type Error struct {
	TimedOut bool
	Exited   bool
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Exited:
		return fmt.Sprintf("process exited before readiness (code %d): %s", e.ExitCode, tailSummary(e.Stderr, e.Stdout))
	case e.TimedOut:
		return fmt.Sprintf("readiness timeout: %s", tailSummary(e.Stderr, e.Stdout))
	default:
		return fmt.Sprintf("readiness failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func tailSummary(preferred, fallback []byte) string {
	tail := preferred
	if len(tail) == 0 {
		tail = fallback
	}
	s := strings.TrimSpace(string(tail))
	if s == "" {
		return "(no output captured)"
	}
	return s
}

// Detector watches scanned output lines for a marker substring. Install
// Scan as the launcher's OnLine hook before starting the process so no
// early line can be missed.
type Detector struct {
	marker string
	once   sync.Once
	seen   chan struct{}
}

// NewDetector returns a detector for the given marker substring.
func NewDetector(marker string) *Detector {
	return &Detector{marker: marker, seen: make(chan struct{})}
}

// Scan inspects one output line. Safe for concurrent use from both stream
// scanners; the first match wins.
func (d *Detector) Scan(_ launcher.Stream, line string) {
	if strings.Contains(line, d.marker) {
		d.once.Do(func() { close(d.seen) })
	}
}

// Seen is closed after the first marker match.
func (d *Detector) Seen() <-chan struct{} { return d.seen }

// Await blocks until the process is ready or has definitively failed.
// probe is consulted once if the timeout elapses with no marker; a positive
// probe is accepted as readiness (banner text changes across versions).
func (d *Detector) Await(ctx context.Context, proc *launcher.Process, timeout time.Duration, probe func(context.Context) error) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-d.seen:
		// An exit racing a stale marker match must not be reported as
		// success.
		if proc.Exited() {
			return exitError(proc)
		}
		return nil
	case <-proc.Done():
		return exitError(proc)
	case <-timer.C:
		if probe != nil {
			if err := probe(ctx); err == nil {
				return nil
			}
		}
		if proc.Exited() {
			return exitError(proc)
		}
		return &Error{
			TimedOut: true,
			Stdout:   proc.StdoutTail(),
			Stderr:   proc.StderrTail(),
		}
	case <-ctx.Done():
		return &Error{Err: ctx.Err(), Stdout: proc.StdoutTail(), Stderr: proc.StderrTail()}
	}
}

func exitError(proc *launcher.Process) *Error {
	return &Error{
		Exited:   true,
		ExitCode: proc.ExitCode(),
		Stdout:   proc.StdoutTail(),
		Stderr:   proc.StderrTail(),
		Err:      proc.ExitErr(),
	}
}
