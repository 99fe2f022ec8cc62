// Package system holds the operational utilities of the admin console:
// database backups, log inspection, maintenance mode and the update channel.
package system

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// CommandRunner runs an external program, writing its standard output to stdout.
type CommandRunner interface {
	Run(ctx context.Context, stdout io.Writer, env []string, name string, args ...string) error
}

type execRunner struct{}

// NewExecRunner returns a CommandRunner backed by os/exec.
func NewExecRunner() CommandRunner { return execRunner{} }

func (execRunner) Run(ctx context.Context, stdout io.Writer, env []string, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		return errors.Wrapf(err, "%s failed: %s", name, msg)
	}
	return nil
}
