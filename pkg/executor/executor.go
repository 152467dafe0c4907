package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type implExecutor struct{}

// New creates a new Executor instance
func New() Executor {
	return &implExecutor{}
}

// Execute runs an external command with the given arguments
func (e *implExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	return e.run(exec.CommandContext(ctx, name, args...))
}

// ExecuteWithInput runs a command that reads its input from stdin
func (e *implExecutor) ExecuteWithInput(ctx context.Context, input []byte, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	return e.run(cmd)
}

func (e *implExecutor) run(cmd *exec.Cmd) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Include stderr in error message for debugging
		if stderrStr := strings.TrimSpace(stderr.String()); stderrStr != "" {
			return "", fmt.Errorf("command '%s' failed: %w\nstderr: %s", cmd.Args[0], err, stderrStr)
		}
		return "", fmt.Errorf("command '%s' failed: %w", cmd.Args[0], err)
	}

	return stdout.String(), nil
}
