// Package supervisor owns the backend service process: it allocates a port,
// resolves and launches the executable, waits for readiness, polls health,
// restarts on failure within a budget, and tears everything down on stop.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/sidecard/internal/backoff"
	"github.com/loykin/sidecard/internal/health"
	"github.com/loykin/sidecard/internal/history"
	"github.com/loykin/sidecard/internal/launcher"
	"github.com/loykin/sidecard/internal/logger"
	"github.com/loykin/sidecard/internal/metrics"
	"github.com/loykin/sidecard/internal/portalloc"
	"github.com/loykin/sidecard/internal/readiness"
	"github.com/loykin/sidecard/internal/resolver"
)

// State is the externally visible lifecycle state.
type State int32

const (
	StateNotStarted State = iota
	StateLaunching
	StateRunning
	StateExhausted
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateExhausted:
		return "exhausted"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Options configures a Supervisor. Zero values get the documented defaults.
type Options struct {
	Resolver resolver.Config

	Host       string // bind host injected into the backend, default 127.0.0.1
	DataDir    string // created before spawn, injected as SIDECARD_DATA_DIR
	Marker     string // readiness marker substring
	HealthPath string // probed endpoint path, default /health

	StartupTimeout time.Duration // marker/probe race bound, default 30s
	HealthInterval time.Duration // probe period after readiness, default 30s
	ProbeTimeout   time.Duration // per-probe bound, default 2s
	GraceTimeout   time.Duration // SIGTERM-to-SIGKILL bound, default 5s

	MaxRestarts  int              // restart budget, default 3
	Backoff      backoff.Strategy // restart delay policy, default Fixed{1s}
	CaptureBytes int              // per-stream output tail, default 8192

	Log     logger.Config // mirror files for captured backend output
	Logger  *slog.Logger
	History history.Sink // optional lifecycle audit sink
}

func (o *Options) applyDefaults() {
	if o.Host == "" {
		o.Host = "127.0.0.1"
	}
	if o.Marker == "" {
		o.Marker = "Application startup complete"
	}
	if o.HealthPath == "" {
		o.HealthPath = "/health"
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = 30 * time.Second
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 30 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 2 * time.Second
	}
	if o.GraceTimeout <= 0 {
		o.GraceTimeout = 5 * time.Second
	}
	if o.MaxRestarts <= 0 {
		o.MaxRestarts = 3
	}
	if o.Backoff == nil {
		o.Backoff = backoff.Fixed{Interval: time.Second}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Status is a synchronous, side-effect-free snapshot.
type Status struct {
	State     string `json:"state"`
	Running   bool   `json:"running"`
	Port      int    `json:"port"`
	PID       int    `json:"pid"`
	Restarts  int    `json:"restarts"`
	Exhausted bool   `json:"exhausted"`
}

// Supervisor manages exactly one backend process generation at a time.
// Construct it once at the composition root and pass the handle around.
type Supervisor struct {
	opts   Options
	log    *slog.Logger
	events *Bus

	// stopMu serializes Stop so concurrent calls are idempotent rather
	// than racing the grace-period escalation.
	stopMu sync.Mutex

	mu           sync.Mutex
	state        State
	proc         *launcher.Process
	port         int
	restartCount int
	shuttingDown bool
	healthCancel context.CancelFunc
	restarting   bool // dedups concurrent Restart requests
	gen          int  // process generation; stale watchers compare and bail
	stopEpoch    int  // bumped by every Stop; in-flight recoveries compare and bail

	// seams for tests; default to the real implementations
	resolveFn func(resolver.Config) (resolver.Command, error)
	launchFn  func(launcher.Spec) (*launcher.Process, error)
	allocFn   func() (int, error)
	freeFn    func(int) bool
}

// New constructs a Supervisor. Nothing is launched until Start.
func New(opts Options) *Supervisor {
	opts.applyDefaults()
	return &Supervisor{
		opts:      opts,
		log:       opts.Logger,
		events:    NewBus(),
		resolveFn: resolver.Resolve,
		launchFn:  launcher.Launch,
		allocFn:   portalloc.Allocate,
		freeFn:    portalloc.Free,
	}
}

// Events exposes the asynchronous notification stream.
func (s *Supervisor) Events() *Bus { return s.events }

// Start launches the backend and blocks until readiness or a diagnosable
// failure. Calling Start while already running is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		return nil
	case StateLaunching:
		s.mu.Unlock()
		return ErrStartInProgress
	case StateExhausted:
		s.mu.Unlock()
		return ErrExhausted
	}
	s.setStateLocked(StateLaunching)
	epoch := s.stopEpoch
	s.mu.Unlock()

	if err := s.launchOnce(ctx, epoch); err != nil {
		s.mu.Lock()
		if s.state == StateLaunching {
			s.setStateLocked(StateNotStarted)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Stop tears the backend down: graceful signal, grace timeout, forced kill.
// Idempotent and callable from any state.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	s.shuttingDown = true
	s.stopEpoch++
	wasActive := s.state != StateNotStarted
	if wasActive {
		s.setStateLocked(StateShuttingDown)
	}
	if s.healthCancel != nil {
		s.healthCancel()
		s.healthCancel = nil
	}
	proc := s.proc
	s.proc = nil
	port := s.port
	s.port = 0
	s.gen++
	s.mu.Unlock()

	if proc != nil && !proc.Exited() {
		s.log.Info("stopping backend", "pid", proc.PID())
		_ = proc.Terminate()
		select {
		case <-proc.Done():
		case <-time.After(s.opts.GraceTimeout):
			s.log.Warn("grace period elapsed, killing backend", "pid", proc.PID())
			_ = proc.Kill()
			s.awaitReap(proc)
		case <-ctx.Done():
			_ = proc.Kill()
			s.awaitReap(proc)
		}
	}

	if wasActive {
		s.publish(Event{Kind: EventStopped, Port: port})
		s.record(history.EventStop, port, pid(proc), "")
	}

	s.mu.Lock()
	s.shuttingDown = false
	s.setStateLocked(StateNotStarted)
	s.mu.Unlock()
	return nil
}

// Restart is Stop, a retry-count reset, then Start. Concurrent Restart
// requests are deduplicated rather than spawning overlapping pipelines.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	if s.restarting {
		s.mu.Unlock()
		return nil
	}
	s.restarting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.restarting = false
		s.mu.Unlock()
	}()

	if err := s.Stop(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.restartCount = 0
	s.mu.Unlock()
	return s.Start(ctx)
}

// Status returns a snapshot without side effects.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:     s.state.String(),
		Port:      s.port,
		Restarts:  s.restartCount,
		Exhausted: s.state == StateExhausted,
	}
	if s.proc != nil {
		st.PID = s.proc.PID()
		st.Running = s.state == StateRunning && !s.proc.Exited()
	}
	return st
}

// BaseURL returns the backend's HTTP base URL, or "" before a port exists.
func (s *Supervisor) BaseURL() string {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", s.opts.Host, port)
}

// SocketURL returns the backend's websocket URL, or "" before a port exists.
func (s *Supervisor) SocketURL() string {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == 0 {
		return ""
	}
	return fmt.Sprintf("ws://%s:%d/ws", s.opts.Host, port)
}

// launchOnce runs the full pipeline for one generation: port, resolve,
// spawn, readiness, then health monitoring. At most one call is in flight.
// epoch is the stop epoch observed when the caller committed to launching;
// any Stop since then aborts the attempt.
func (s *Supervisor) launchOnce(ctx context.Context, epoch int) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	// Reuse the previous port when still free so the front end's cached
	// URLs stay valid across a restart; reallocate otherwise.
	if port == 0 || !s.freeFn(port) {
		p, err := s.allocFn()
		if err != nil {
			return err
		}
		port = p
	}

	cmd, err := s.resolveFn(s.opts.Resolver)
	if err != nil {
		return err
	}

	det := readiness.NewDetector(s.opts.Marker)
	mirrorOut, mirrorErr := s.opts.Log.MirrorWriters("backend")
	spec := launcher.Spec{
		Path:         cmd.Path,
		Args:         cmd.Args,
		Dir:          cmd.Dir,
		DataDir:      s.opts.DataDir,
		CaptureBytes: s.opts.CaptureBytes,
		MirrorOut:    mirrorOut,
		MirrorErr:    mirrorErr,
		OnLine:       det.Scan,
		Env: []string{
			fmt.Sprintf("SIDECARD_PORT=%d", port),
			"SIDECARD_HOST=" + s.opts.Host,
			"SIDECARD_DATA_DIR=" + s.opts.DataDir,
			"PYTHONUNBUFFERED=1",
		},
	}

	// The shutdown epoch must be checked immediately before spawning;
	// this is the near edge of the stop/launch race window.
	s.mu.Lock()
	if s.shuttingDown || s.stopEpoch != epoch {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	s.mu.Unlock()
	startedAt := time.Now()
	proc, err := s.launchFn(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.shuttingDown || s.stopEpoch != epoch {
		s.mu.Unlock()
		_ = proc.Kill()
		s.awaitReap(proc)
		return ErrShuttingDown
	}
	s.gen++
	gen := s.gen
	s.proc = proc
	s.port = port
	s.mu.Unlock()

	metrics.IncLaunch()
	s.log.Info("backend launched", "pid", proc.PID(), "port", port, "path", cmd.Path)
	s.publish(Event{Kind: EventLaunching, Port: port, PID: proc.PID()})
	s.record(history.EventLaunch, port, proc.PID(), cmd.Path)

	probe := health.NewProbe(s.healthURL(port), s.opts.ProbeTimeout)
	if err := det.Await(ctx, proc, s.opts.StartupTimeout, probe.Check); err != nil {
		if !proc.Exited() {
			_ = proc.Kill()
			s.awaitReap(proc)
		}
		s.mu.Lock()
		if s.proc == proc {
			s.proc = nil
		}
		s.mu.Unlock()
		s.record(history.EventExit, port, proc.PID(), err.Error())
		return err
	}

	s.mu.Lock()
	if s.shuttingDown || s.gen != gen {
		// A stop claimed this generation while we waited for readiness;
		// it owns (or already finished) the teardown.
		s.mu.Unlock()
		return ErrShuttingDown
	}
	s.setStateLocked(StateRunning)
	hctx, cancel := context.WithCancel(context.Background())
	s.healthCancel = cancel
	s.mu.Unlock()

	metrics.ObserveReadiness(time.Since(startedAt))
	s.log.Info("backend ready", "pid", proc.PID(), "port", port, "after", time.Since(startedAt))
	s.publish(Event{Kind: EventReady, Port: port, PID: proc.PID()})
	s.record(history.EventReady, port, proc.PID(), "")

	mon := health.NewMonitor(probe, s.opts.HealthInterval)
	go mon.Run(hctx, func(cause error) {
		metrics.IncHealthFailure()
		s.publish(Event{Kind: EventUnhealthy, Port: port, PID: proc.PID(), Detail: cause.Error()})
		s.record(history.EventUnhealthy, port, proc.PID(), cause.Error())
		s.recover(gen, cause)
	})
	go s.watchExit(gen, proc, port)
	return nil
}

// watchExit observes one generation's unexpected death.
func (s *Supervisor) watchExit(gen int, proc *launcher.Process, port int) {
	<-proc.Done()

	s.mu.Lock()
	stale := s.gen != gen || s.shuttingDown || s.state != StateRunning
	s.mu.Unlock()
	if stale {
		return
	}

	cause := fmt.Errorf("backend exited unexpectedly (code %d)", proc.ExitCode())
	s.log.Warn("backend crashed", "pid", proc.PID(), "code", proc.ExitCode())
	s.publish(Event{Kind: EventCrashed, Port: port, PID: proc.PID(), Detail: cause.Error()})
	s.record(history.EventExit, port, proc.PID(), cause.Error())
	s.recover(gen, cause)
}

// recover is the restart controller: after an unhealthy probe or a crash it
// relaunches within the budget, or parks in the exhausted state.
func (s *Supervisor) recover(gen int, cause error) {
	s.mu.Lock()
	if s.shuttingDown || gen != s.gen {
		// A stop or a competing recovery already claimed this
		// generation; whoever got here first owns the teardown.
		s.mu.Unlock()
		return
	}
	s.gen++
	epoch := s.stopEpoch
	if s.healthCancel != nil {
		s.healthCancel()
		s.healthCancel = nil
	}
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	if proc != nil && !proc.Exited() {
		_ = proc.Kill()
		s.awaitReap(proc)
	}

	for {
		s.mu.Lock()
		if s.shuttingDown || s.stopEpoch != epoch {
			s.mu.Unlock()
			return
		}
		if s.restartCount >= s.opts.MaxRestarts {
			s.setStateLocked(StateExhausted)
			s.mu.Unlock()
			s.log.Error("restart budget exhausted", "restarts", s.opts.MaxRestarts, "cause", cause)
			s.publish(Event{Kind: EventExhausted, Detail: cause.Error()})
			s.record(history.EventExhausted, 0, 0, cause.Error())
			return
		}
		s.restartCount++
		attempt := s.restartCount
		s.setStateLocked(StateLaunching)
		s.mu.Unlock()

		metrics.IncRestart()
		s.log.Info("restarting backend", "attempt", attempt, "cause", cause)
		s.publish(Event{Kind: EventRestarting, Attempt: attempt, Detail: cause.Error()})
		s.sleepUnlessStopping(s.opts.Backoff.Delay(attempt))
		s.mu.Lock()
		aborted := s.shuttingDown || s.stopEpoch != epoch
		s.mu.Unlock()
		if aborted {
			return
		}

		err := s.launchOnce(context.Background(), epoch)
		if err == nil {
			return
		}
		if errors.Is(err, ErrShuttingDown) {
			return
		}
		// A launch failure during a restart cycle consumes budget like
		// any other failure.
		cause = err
	}
}

func (s *Supervisor) healthURL(port int) string {
	return fmt.Sprintf("http://%s:%d%s", s.opts.Host, port, s.opts.HealthPath)
}

func (s *Supervisor) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// sleepUnlessStopping waits d but returns early once a stop begins.
func (s *Supervisor) sleepUnlessStopping(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if s.isShuttingDown() {
			return
		}
		remain := time.Until(deadline)
		if remain > 50*time.Millisecond {
			remain = 50 * time.Millisecond
		}
		time.Sleep(remain)
	}
}

// awaitReap waits briefly for the waiter goroutine to reap a killed process.
func (s *Supervisor) awaitReap(proc *launcher.Process) {
	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		// best-effort
	}
}

// setStateLocked updates state under s.mu and records the transition.
func (s *Supervisor) setStateLocked(next State) {
	prev := s.state
	s.state = next
	if prev != next {
		metrics.RecordStateTransition(prev.String(), next.String())
	}
}

func (s *Supervisor) publish(e Event) { s.events.Publish(e) }

func (s *Supervisor) record(t history.EventType, port, procPID int, detail string) {
	if s.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.opts.History.Record(ctx, history.Record{
		Type:       t,
		OccurredAt: time.Now(),
		Port:       port,
		PID:        procPID,
		Detail:     detail,
	}); err != nil {
		s.log.Warn("history sink write failed", "error", err)
	}
}

func pid(proc *launcher.Process) int {
	if proc == nil {
		return 0
	}
	return proc.PID()
}
