package system

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

const (
	backupPrefix  = "backup-"
	backupExt     = ".zip"
	dumpEntryName = "database.sql"
)

var (
	ErrBackupNotFound = errors.New("backup not found")

	// NowFunc is overridden in tests.
	NowFunc = time.Now
)

type Backup struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupManager creates zip archives holding a database dump and the configured source directories.
type BackupManager struct {
	dir     string
	sources []string
	pgDump  string
	db      core.DatabaseConfig
	runner  CommandRunner
	logger  core.Logger
}

func NewBackupManager(conf *core.Config, runner CommandRunner, logger core.Logger) (*BackupManager, error) {
	if runner == nil {
		return nil, errors.New("runner: parameter was nil")
	}
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
	).Check()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, errors.New("logger: parameter was nil")
	}
	if err = vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.System.BackupDir, "conf.System.BackupDir"),
		vala.StringNotEmpty(conf.System.PGDumpPath, "conf.System.PGDumpPath"),
	).Check(); err != nil {
		return nil, err
	}

	return &BackupManager{
		dir:     conf.System.BackupDir,
		sources: conf.System.BackupSources,
		pgDump:  conf.System.PGDumpPath,
		db:      conf.Database,
		runner:  runner,
		logger:  logger,
	}, nil
}

// Create dumps the database and zips it with the source directories.
// Partial files are removed when any step fails.
func (m *BackupManager) Create(ctx context.Context) (b Backup, err error) {
	if err = os.MkdirAll(m.dir, 0o750); err != nil {
		return Backup{}, errors.Wrap(err, "creating backup directory")
	}

	now := NowFunc().UTC()
	name := fmt.Sprintf("%s%s-%s%s", backupPrefix, now.Format("20060102-150405"), uuid.New().String()[:8], backupExt)
	archivePath := filepath.Join(m.dir, name)

	dump, err := os.CreateTemp(m.dir, "dump-*.sql")
	if err != nil {
		return Backup{}, errors.Wrap(err, "creating dump file")
	}
	defer func() {
		_ = dump.Close()
		_ = os.Remove(dump.Name())
		if err != nil {
			_ = os.Remove(archivePath)
			m.logger.Error("backup failed", err)
		}
	}()

	if err = m.dumpDatabase(ctx, dump); err != nil {
		return Backup{}, err
	}
	if err = m.writeArchive(archivePath, dump.Name()); err != nil {
		return Backup{}, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return Backup{}, errors.Wrap(err, "reading backup")
	}
	m.logger.Info("backup created", name)
	return Backup{Name: name, Size: info.Size(), CreatedAt: now}, nil
}

func (m *BackupManager) dumpDatabase(ctx context.Context, out io.Writer) error {
	args := []string{
		"--host", m.db.Host,
		"--port", m.db.Port,
		"--username", m.db.User,
		"--no-owner",
		"--no-privileges",
		"--format", "plain",
		m.db.Name,
	}
	env := []string{"PGPASSWORD=" + m.db.Password}
	return errors.Wrap(m.runner.Run(ctx, out, env, m.pgDump, args...), "dumping database")
}

func (m *BackupManager) writeArchive(archivePath, dumpPath string) (err error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return errors.Wrap(err, "creating archive")
	}
	defer func() {
		if cErr := f.Close(); err == nil && cErr != nil {
			err = errors.Wrap(cErr, "closing archive")
		}
	}()

	zw := zip.NewWriter(f)
	if err = addFile(zw, dumpPath, dumpEntryName); err != nil {
		return err
	}
	for _, src := range m.sources {
		if err = addDir(zw, src); err != nil {
			return err
		}
	}
	return errors.Wrap(zw.Close(), "finalizing archive")
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer src.Close()

	w, err := zw.Create(filepath.ToSlash(name))
	if err != nil {
		return errors.Wrapf(err, "adding %s", name)
	}
	_, err = io.Copy(w, src)
	return errors.Wrapf(err, "writing %s", name)
}

// addDir adds the files under root, stored as "files/<base of root>/...". A missing root is skipped.
func addDir(zw *zip.Writer, root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	base := filepath.Base(filepath.Clean(root))
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.Join("files", base, rel))
	})
}

// List returns the existing backups, newest first.
func (m *BackupManager) List() ([]Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Backup{}, nil
		}
		return nil, errors.Wrap(err, "reading backup directory")
	}

	backups := make([]Backup, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isBackupName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Backup{Name: entry.Name(), Size: info.Size(), CreatedAt: info.ModTime().UTC()})
	}
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].Name > backups[j].Name
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Path returns the location of the named backup.
func (m *BackupManager) Path(name string) (string, error) {
	if !isBackupName(name) {
		return "", ErrBackupNotFound
	}
	path := filepath.Join(m.dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrBackupNotFound
		}
		return "", errors.Wrap(err, "reading backup")
	}
	return path, nil
}

func (m *BackupManager) Delete(name string) error {
	path, err := m.Path(name)
	if err != nil {
		return err
	}
	if err = os.Remove(path); err != nil {
		return errors.Wrap(err, "deleting backup")
	}
	m.logger.Info("backup deleted", name)
	return nil
}

// isBackupName rejects anything that is not a plain backup file name, path separators included.
func isBackupName(name string) bool {
	return name == filepath.Base(name) &&
		!strings.ContainsAny(name, `/\`) &&
		strings.HasPrefix(name, backupPrefix) &&
		strings.HasSuffix(name, backupExt)
}
