package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "  ")
	assert.Error(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	base := time.Now().Add(-time.Minute)
	events := []Record{
		{Type: EventLaunch, OccurredAt: base, PID: 100, Port: 5001},
		{Type: EventReady, OccurredAt: base.Add(time.Second), PID: 100, Port: 5001},
		{Type: EventUnhealthy, OccurredAt: base.Add(2 * time.Second), PID: 100, Port: 5001, Detail: "health endpoint returned 500"},
	}
	for _, e := range events {
		require.NoError(t, s.Record(ctx, e))
	}

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest first.
	assert.Equal(t, EventUnhealthy, got[0].Type)
	assert.Equal(t, "health endpoint returned 500", got[0].Detail)
	assert.Equal(t, EventLaunch, got[2].Type)
	assert.Equal(t, 5001, got[2].Port)
}

func TestRecentLimit(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Record{Type: EventExit, PID: i}))
	}
	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
