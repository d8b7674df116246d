package fetchplan

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CommandRunner executes a local CLI tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// ExecRunner runs binaries through os/exec. A binary missing from PATH
// surfaces as exec.ErrNotFound so the planner can treat the source as
// unavailable rather than failed.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s exited: %w: %s", binary, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
