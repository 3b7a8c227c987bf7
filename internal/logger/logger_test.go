package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	for _, format := range []string{"", "color", "text", "json"} {
		l, err := Config{Format: format}.NewLogger(&buf)
		require.NoError(t, err, format)
		l.Info("hello")
		assert.Contains(t, buf.String(), "hello")
		buf.Reset()
	}
}

func TestNewLoggerRejectsUnknowns(t *testing.T) {
	var buf bytes.Buffer
	_, err := Config{Format: "yaml"}.NewLogger(&buf)
	assert.Error(t, err)
	_, err = Config{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := Config{Level: "warn", Format: "text"}.NewLogger(&buf)
	require.NoError(t, err)
	l.Info("quiet")
	l.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestMirrorWriters(t *testing.T) {
	dir := t.TempDir()
	out, errW := Config{Dir: dir}.MirrorWriters("backend")
	require.NotNil(t, out)
	require.NotNil(t, errW)
	_, err := out.Write([]byte("stdout line\n"))
	require.NoError(t, err)
	require.NoError(t, out.Close())
	require.NoError(t, errW.Close())

	b, err := os.ReadFile(filepath.Join(dir, "backend.stdout.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "stdout line")
}

func TestMirrorWritersDisabled(t *testing.T) {
	out, errW := Config{}.MirrorWriters("backend")
	assert.Nil(t, out)
	assert.Nil(t, errW)
}
