package executor

import "context"

// Executor runs external tools such as ffprobe.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) (string, error)
	// ExecuteWithInput pipes input to the command's stdin.
	ExecuteWithInput(ctx context.Context, input []byte, name string, args ...string) (string, error)
}
