package system_test

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/system"
	testutil "github.com/trezcool/elimu/tests"
)

type fakeRunner struct {
	err  error
	name string
	args []string
	env  []string
}

func (r *fakeRunner) Run(_ context.Context, stdout io.Writer, env []string, name string, args ...string) error {
	r.name, r.args, r.env = name, args, env
	if r.err != nil {
		return r.err
	}
	_, err := io.WriteString(stdout, "-- PostgreSQL database dump\n")
	return err
}

func freezeTime(t *testing.T, now time.Time) {
	prev := system.NowFunc
	system.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { system.NowFunc = prev })
}

func zipEntries(t *testing.T, path string) map[string]string {
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		out[f.Name] = string(data)
	}
	return out
}

func TestNewBackupManager(t *testing.T) {
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger(t, conf)

	_, err := system.NewBackupManager(conf, nil, logger)
	assert.EqualError(t, err, "runner: parameter was nil")

	_, err = system.NewBackupManager(conf, system.NewExecRunner(), nil)
	assert.EqualError(t, err, "logger: parameter was nil")

	m, err := system.NewBackupManager(conf, system.NewExecRunner(), logger)
	require.NoError(t, err)
	assert.NotNil(t, m)

	conf.System.PGDumpPath = ""
	_, err = system.NewBackupManager(conf, &fakeRunner{}, logger)
	assert.Error(t, err)
}

func TestBackupManager(t *testing.T) {
	freezeTime(t, time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC))
	conf := testutil.NewConfig(t)
	conf.Database.Name = "elimu"
	conf.Database.Password = "s3cret"

	uploads := filepath.Join(t.TempDir(), "uploads")
	require.NoError(t, os.MkdirAll(filepath.Join(uploads, "avatars"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(uploads, "avatars", "tom.png"), []byte("png"), 0o640))
	conf.System.BackupSources = []string{uploads, filepath.Join(t.TempDir(), "missing")}

	runner := &fakeRunner{}
	m, err := system.NewBackupManager(conf, runner, testutil.NewLogger(t, conf))
	require.NoError(t, err)
	ctx := context.Background()

	b, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^backup-20240515-103000-[0-9a-f]{8}\.zip$`, b.Name)
	assert.Positive(t, b.Size)
	assert.Equal(t, "pg_dump", runner.name)
	assert.Contains(t, runner.args, "elimu")
	assert.Contains(t, runner.env, "PGPASSWORD=s3cret")

	path, err := m.Path(b.Name)
	require.NoError(t, err)
	entries := zipEntries(t, path)
	assert.Equal(t, "-- PostgreSQL database dump\n", entries["database.sql"])
	assert.Equal(t, "png", entries["files/uploads/avatars/tom.png"])

	// the temporary dump never stays around
	dirEntries, err := os.ReadDir(conf.System.BackupDir)
	require.NoError(t, err)
	assert.Len(t, dirEntries, 1)

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.Name, list[0].Name)

	t.Run("path traversal", func(t *testing.T) {
		_, err := m.Path("../" + b.Name)
		assert.ErrorIs(t, err, system.ErrBackupNotFound)
		assert.ErrorIs(t, m.Delete("notes.txt"), system.ErrBackupNotFound)
	})

	require.NoError(t, m.Delete(b.Name))
	list, err = m.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.ErrorIs(t, m.Delete(b.Name), system.ErrBackupNotFound)
}

func TestBackupManager_DumpFails(t *testing.T) {
	conf := testutil.NewConfig(t)
	m, err := system.NewBackupManager(conf, &fakeRunner{err: errors.New("connection refused")}, testutil.NewLogger(t, conf))
	require.NoError(t, err)

	_, err = m.Create(context.Background())
	assert.ErrorContains(t, err, "dumping database")

	dirEntries, err := os.ReadDir(conf.System.BackupDir)
	require.NoError(t, err)
	assert.Empty(t, dirEntries)
}

func TestBackupManager_ListMissingDir(t *testing.T) {
	conf := testutil.NewConfig(t)
	m, err := system.NewBackupManager(conf, &fakeRunner{}, testutil.NewLogger(t, conf))
	require.NoError(t, err)

	list, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
