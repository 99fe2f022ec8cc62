package system_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/system"
)

const sampleLog = `garbage before the first entry
[2024-05-15 08:00:00] dev.INFO: server started
[2024-05-15 08:01:00] dev.ERROR: finding student: child profile not found
goroutine 1 [running]:
main.main()
[2024-05-15 08:02:00] prod.warning: invoice not emailed: parent has no email
[2024-05-15 08:03:00] dev.ERROR: second failure
`

func TestParseLogs(t *testing.T) {
	entries, err := system.ParseLogs(strings.NewReader(sampleLog))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, system.LogEntry{
		Timestamp: time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC),
		Env:       "dev",
		Level:     "INFO",
		Message:   "server started",
	}, entries[0])
	assert.Equal(t, "goroutine 1 [running]:\nmain.main()", entries[1].Context)
	assert.Equal(t, "prod", entries[2].Env)
	assert.Equal(t, "WARNING", entries[2].Level)
	assert.Empty(t, entries[3].Context)
}

func TestLogViewer(t *testing.T) {
	_, err := system.NewLogViewer("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "logs", "elimu.log")
	v, err := system.NewLogViewer(path)
	require.NoError(t, err)

	entries, err := v.Read(0, "")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o640))

	tests := []struct {
		name  string
		limit int
		level string
		want  []string
	}{
		{name: "all, newest first", want: []string{"second failure", "invoice not emailed: parent has no email", "finding student: child profile not found", "server started"}},
		{name: "limited", limit: 2, want: []string{"second failure", "invoice not emailed: parent has no email"}},
		{name: "by level", level: " error ", want: []string{"second failure", "finding student: child profile not found"}},
		{name: "by level, limited", limit: 1, level: "ERROR", want: []string{"second failure"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := v.Read(tt.limit, tt.level)
			require.NoError(t, err)
			msgs := make([]string, 0, len(entries))
			for _, e := range entries {
				msgs = append(msgs, e.Message)
			}
			assert.Equal(t, tt.want, msgs)
		})
	}

	require.NoError(t, v.Clear())
	entries, err = v.Read(0, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
