//go:build !windows

package readiness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/sidecard/internal/launcher"
)

const marker = "Application startup complete"

func launchScript(t *testing.T, d *Detector, script string) *launcher.Process {
	t.Helper()
	p, err := launcher.Launch(launcher.Spec{
		Path:   "/bin/sh",
		Args:   []string{"-c", script},
		OnLine: d.Scan,
	})
	require.NoError(t, err)
	return p
}

func TestAwaitMarkerWinsImmediately(t *testing.T) {
	d := NewDetector(marker)
	p := launchScript(t, d, `echo "INFO: Application startup complete."; sleep 10`)
	defer func() { _ = p.Kill() }()

	started := time.Now()
	err := d.Await(context.Background(), p, 10*time.Second, nil)
	require.NoError(t, err)
	// Resolves on the marker, not after the full timeout.
	assert.Less(t, time.Since(started), 3*time.Second)
}

func TestAwaitExitBeforeMarker(t *testing.T) {
	d := NewDetector(marker)
	p := launchScript(t, d, `echo "boom" 1>&2; exit 1`)

	err := d.Await(context.Background(), p, 5*time.Second, nil)
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.Exited)
	assert.Equal(t, 1, rerr.ExitCode)
	assert.Contains(t, string(rerr.Stderr), "boom")
}

func TestAwaitTimeoutWithFailingProbe(t *testing.T) {
	d := NewDetector(marker)
	p := launchScript(t, d, `echo "still warming up"; sleep 10`)
	defer func() { _ = p.Kill() }()

	probeErr := errors.New("connection refused")
	err := d.Await(context.Background(), p, 300*time.Millisecond, func(context.Context) error { return probeErr })
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.TimedOut)
	assert.Contains(t, string(rerr.Stdout), "warming up")
}

func TestAwaitTimeoutWithPositiveProbeFallback(t *testing.T) {
	// No marker ever appears, but the probe says the service answers:
	// accepted as ready (banner text changed across versions).
	d := NewDetector(marker)
	p := launchScript(t, d, `sleep 10`)
	defer func() { _ = p.Kill() }()

	err := d.Await(context.Background(), p, 200*time.Millisecond, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestAwaitExitWinsOverStaleMarker(t *testing.T) {
	// The marker is printed but the process exits immediately after.
	// Await must not report success for a dead process.
	d := NewDetector(marker)
	p := launchScript(t, d, `echo "Application startup complete"; exit 1`)

	// Let the process fully exit so both signals are pending.
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	err := d.Await(context.Background(), p, 5*time.Second, nil)
	require.Error(t, err)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.Exited)
}

func TestAwaitContextCancel(t *testing.T) {
	d := NewDetector(marker)
	p := launchScript(t, d, `sleep 10`)
	defer func() { _ = p.Kill() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Await(ctx, p, 5*time.Second, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
