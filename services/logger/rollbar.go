package logsvc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
	"github.com/rollbar/rollbar-go"
	rbErrors "github.com/rollbar/rollbar-go/errors"
	"golang.org/x/term"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/system"
	"github.com/trezcool/elimu/core/user"
)

// RollbarLogger reports to Rollbar (when a token is configured), prints to a console and appends to the log file
// read by the admin log viewer.
type RollbarLogger struct {
	console *slog.Logger
	env     string

	mu   sync.Mutex
	file io.WriteCloser

	exit func(code int)
	now  func() time.Time
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger logs to console and, when conf.System.LogFile is set, to that file.
func NewRollbarLogger(console io.Writer, conf *core.Config) (*RollbarLogger, error) {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(rbErrors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)

	level := slog.LevelInfo
	if conf.Debug {
		level = slog.LevelDebug
	}
	l := &RollbarLogger{
		console: slog.New(tint.NewHandler(console, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(console),
		})),
		env:  strings.ToLower(conf.Env),
		exit: os.Exit,
		now:  time.Now,
	}

	if path := conf.System.LogFile; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, errors.Wrap(err, "creating log directory")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, errors.Wrap(err, "opening log file")
		}
		l.file = f
	}
	return l, nil
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close waits for pending Rollbar items and closes the log file.
func (l *RollbarLogger) Close() error {
	rollbar.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l *RollbarLogger) prepare(msg string, args []interface{}) (rbArgs, rest []interface{}) {
	var usrSet bool
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	rest = make([]interface{}, 0, len(args))
	for _, arg := range args {
		// set logged in User
		if usr, ok := arg.(user.User); ok {
			if !usrSet { // only set one User
				rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
				usrSet = true
			}
			continue
		}
		rbArgs = append(rbArgs, arg)
		rest = append(rest, arg)
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return rbArgs, rest
}

func (l *RollbarLogger) print(level slog.Level, msg string, args []interface{}) {
	attrs := make([]any, 0, len(args)*2)
	for i, arg := range args {
		if err, ok := arg.(error); ok {
			attrs = append(attrs, tint.Err(err))
			continue
		}
		attrs = append(attrs, fmt.Sprintf("arg%d", i), fmt.Sprintf("%+v", arg))
	}
	l.console.Log(context.Background(), level, msg, attrs...)
	l.writeFile(level, msg, args)
}

// writeFile appends "[2006-01-02 15:04:05] env.LEVEL: msg" (UTC) followed by one line per argument.
func (l *RollbarLogger) writeFile(level slog.Level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s.%s: %s\n", l.now().UTC().Format(system.LogTimeLayout), l.env, levelName(level), msg)
	for _, arg := range args {
		fmt.Fprintf(&b, "%+v\n", arg)
	}
	_, _ = io.WriteString(l.file, b.String())
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, rest := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.print(slog.LevelDebug, msg, rest)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, rest := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.print(slog.LevelInfo, msg, rest)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, rest := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.print(slog.LevelWarn, msg, rest)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, rest := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.print(slog.LevelError, msg, rest)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, rest := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	l.print(levelCritical, msg, rest)
	rollbar.Wait()
	l.exit(1)
}

const levelCritical = slog.Level(12)

func levelName(level slog.Level) string {
	switch {
	case level >= levelCritical:
		return "CRITICAL"
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
