package system

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
)

// LogTimeLayout is the timestamp layout of log lines: "[2006-01-02 15:04:05] dev.ERROR: message".
const LogTimeLayout = "2006-01-02 15:04:05"

var logLineRegex = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\]\s+([\w-]+)\.(\w+):\s?(.*)$`)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Env       string    `json:"env"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	// Context holds the continuation lines following the entry (stack traces, attributes).
	Context string `json:"context,omitempty"`
}

// ParseLogs reads entries from r, oldest first. Lines preceding the first entry are dropped.
func ParseLogs(r io.Reader) ([]LogEntry, error) {
	var (
		entries []LogEntry
		context []string
	)
	flush := func() {
		if len(entries) > 0 && len(context) > 0 {
			entries[len(entries)-1].Context = strings.Join(context, "\n")
		}
		context = context[:0]
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		m := logLineRegex.FindStringSubmatch(line)
		if m == nil {
			if len(entries) > 0 {
				context = append(context, line)
			}
			continue
		}
		flush()
		ts, err := time.Parse(LogTimeLayout, m[1])
		if err != nil {
			continue
		}
		entries = append(entries, LogEntry{
			Timestamp: ts,
			Env:       m[2],
			Level:     strings.ToUpper(m[3]),
			Message:   m[4],
		})
	}
	flush()
	return entries, errors.Wrap(sc.Err(), "scanning logs")
}

// LogViewer reads and clears the application log file.
type LogViewer struct {
	path string
}

func NewLogViewer(path string) (*LogViewer, error) {
	if err := vala.BeginValidation().Validate(vala.StringNotEmpty(path, "path")).Check(); err != nil {
		return nil, err
	}
	return &LogViewer{path: path}, nil
}

// Read returns up to limit entries (all when limit <= 0), newest first, optionally restricted to a level.
func (v *LogViewer) Read(limit int, level string) ([]LogEntry, error) {
	f, err := os.Open(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, errors.Wrap(err, "opening log file")
	}
	defer f.Close()

	entries, err := ParseLogs(f)
	if err != nil {
		return nil, err
	}

	level = strings.ToUpper(strings.TrimSpace(level))
	out := make([]LogEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if level != "" && entries[i].Level != level {
			continue
		}
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Clear truncates the log file, creating it when missing.
func (v *LogViewer) Clear() error {
	if err := os.MkdirAll(filepath.Dir(v.path), 0o750); err != nil {
		return errors.Wrap(err, "creating log directory")
	}
	f, err := os.OpenFile(v.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Wrap(err, "truncating log file")
	}
	return f.Close()
}
