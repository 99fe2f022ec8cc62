package logsvc

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/system"
	"github.com/trezcool/elimu/core/user"
)

func newTestLogger(t *testing.T) (*RollbarLogger, *bytes.Buffer, string) {
	conf := core.NewTestConfig()
	conf.System.LogFile = filepath.Join(t.TempDir(), "logs", "elimu.log")

	var console bytes.Buffer
	l, err := NewRollbarLogger(&console, conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, &console, conf.System.LogFile
}

func TestRollbarLogger_WritesViewerFormat(t *testing.T) {
	l, console, path := newTestLogger(t)

	l.Info("server started", "0.0.0.0:8000")
	l.Error("query failed", errors.New("connection reset"), user.User{ID: "u1", Username: "jdoe"})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	entries, err := system.ParseLogs(f)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "test", entries[0].Env)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "server started", entries[0].Message)
	assert.Equal(t, "0.0.0.0:8000", entries[0].Context)

	assert.Equal(t, "ERROR", entries[1].Level)
	assert.Contains(t, entries[1].Context, "connection reset")
	assert.NotContains(t, entries[1].Context, "jdoe", "users are reported to rollbar only")

	assert.Contains(t, console.String(), "server started")
	assert.Contains(t, console.String(), "connection reset")
}

func TestRollbarLogger_Fatal(t *testing.T) {
	l, _, path := newTestLogger(t)
	var code int
	l.exit = func(c int) { code = c }

	l.Fatal("cannot start")

	assert.Equal(t, 1, code)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test.CRITICAL: cannot start")
}

func TestRollbarLogger_WritesUTC(t *testing.T) {
	l, _, path := newTestLogger(t)
	kinshasa := time.FixedZone("WAT", 60*60)
	l.now = func() time.Time { return time.Date(2024, 5, 1, 11, 0, 0, 0, kinshasa) }

	l.Warn("disk almost full")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := system.ParseLogs(f)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), entries[0].Timestamp)
	assert.Equal(t, "WARNING", entries[0].Level)
}

func TestNewRollbarLogger_LogFileError(t *testing.T) {
	conf := core.NewTestConfig()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o640))
	conf.System.LogFile = filepath.Join(blocker, "elimu.log")

	_, err := NewRollbarLogger(&bytes.Buffer{}, conf)
	assert.ErrorContains(t, err, "creating log directory")
}

func Test_isTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "console")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f))
}
