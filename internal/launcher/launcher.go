// Package launcher spawns the backend service process with an injected
// environment and captures its output through bounded buffers.
package launcher

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Stream identifies which pipe a captured line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Spec describes a single launch attempt. Launch does not retry; retry
// policy belongs to the caller.
type Spec struct {
	Path string
	Args []string
	Dir  string
	Env  []string // extra KEY=VALUE entries appended to the OS environment

	DataDir      string // created before spawn when non-empty
	CaptureBytes int    // per-stream tail capacity, default 8192

	// MirrorOut/MirrorErr optionally receive every captured line (for
	// rotated log files). Closed when the process exits.
	MirrorOut io.WriteCloser
	MirrorErr io.WriteCloser

	// OnLine is invoked from the scanner goroutines for each output line.
	// It must be fast and must not block.
	OnLine func(stream Stream, line string)
}

// LaunchError indicates the spawn call itself failed.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("launch %s: %v", e.Path, e.Err) }
func (e *LaunchError) Unwrap() error { return e.Err }

// Process is a handle to one running generation of the backend. It is
// exclusively owned by the supervisor; nothing else may signal or reap it.
type Process struct {
	cmd    *exec.Cmd
	stdout *RingBuffer
	stderr *RingBuffer

	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

// Launch starts the process and wires up output capture. It returns as soon
// as the OS accepts the spawn; readiness is the caller's separate concern.
func Launch(spec Spec) (*Process, error) {
	if spec.DataDir != "" {
		if err := os.MkdirAll(spec.DataDir, 0o750); err != nil {
			return nil, &LaunchError{Path: spec.Path, Err: err}
		}
	}

	// #nosec G204 -- the path comes from the resolver, not user input
	cmd := exec.Command(spec.Path, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Env = append(os.Environ(), spec.Env...)
	setSysProcAttr(cmd)

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Path: spec.Path, Err: err}
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Path: spec.Path, Err: err}
	}

	p := &Process{
		cmd:    cmd,
		stdout: NewRingBuffer(spec.CaptureBytes),
		stderr: NewRingBuffer(spec.CaptureBytes),
		done:   make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: spec.Path, Err: err}
	}

	var scanners sync.WaitGroup
	scanners.Add(2)
	go p.consume(&scanners, Stdout, outPipe, p.stdout, spec.MirrorOut, spec.OnLine)
	go p.consume(&scanners, Stderr, errPipe, p.stderr, spec.MirrorErr, spec.OnLine)

	go func() {
		scanners.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		if spec.MirrorOut != nil {
			_ = spec.MirrorOut.Close()
		}
		if spec.MirrorErr != nil {
			_ = spec.MirrorErr.Close()
		}
		close(p.done)
	}()

	return p, nil
}

func (p *Process) consume(wg *sync.WaitGroup, stream Stream, r io.Reader, ring *RingBuffer, mirror io.Writer, onLine func(Stream, string)) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		line := sc.Text()
		_, _ = ring.Write(append([]byte(line), '\n'))
		if mirror != nil {
			_, _ = mirror.Write(append([]byte(line), '\n'))
		}
		if onLine != nil {
			onLine(stream, line)
		}
	}
}

// PID returns the OS process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has already been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr returns cmd.Wait's error. Only meaningful after Done is closed.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// ExitCode returns the exit code after the process exited, or -1.
func (p *Process) ExitCode() int {
	if st := p.cmd.ProcessState; st != nil {
		return st.ExitCode()
	}
	return -1
}

// StdoutTail returns the retained tail of standard output.
func (p *Process) StdoutTail() []byte { return p.stdout.Bytes() }

// StderrTail returns the retained tail of standard error.
func (p *Process) StderrTail() []byte { return p.stderr.Bytes() }
