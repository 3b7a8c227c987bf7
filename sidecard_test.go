package sidecard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacadeStatusBeforeStart(t *testing.T) {
	s := New(Options{})
	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "not_started", st.State)
	assert.Empty(t, s.BaseURL())
	assert.Empty(t, s.SocketURL())
}

func TestFacadeStopWithoutStart(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestFacadeSubscribe(t *testing.T) {
	s := New(Options{})
	ch, cancel := s.Subscribe(1)
	require.NotNil(t, ch)
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestOpenHistory(t *testing.T) {
	h, err := OpenHistory(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, h.Close())
}
