package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nguyentantai21042004/protocol-flow/pkg/executor"
)

// FFprobe reads the container duration with ffprobe, feeding audio on stdin.
type FFprobe struct {
	exec executor.Executor
	path string
}

// NewFFprobe returns a Prober. An empty path means "ffprobe" on PATH.
func NewFFprobe(exec executor.Executor, path string) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{exec: exec, path: path}
}

func (p *FFprobe) Duration(ctx context.Context, data []byte) (time.Duration, error) {
	out, err := p.exec.ExecuteWithInput(ctx, data, p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"-i", "pipe:0",
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	value := strings.TrimSpace(out)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("ffprobe: duration unavailable")
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: parse duration %q: %w", value, err)
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond), nil
}

// Check confirms the binary runs and reports its version line.
func (p *FFprobe) Check(ctx context.Context) (string, error) {
	out, err := p.exec.Execute(ctx, p.path, "-version")
	if err != nil {
		return "", fmt.Errorf("ffprobe: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(line, "ffprobe version") {
		return "", fmt.Errorf("ffprobe: unexpected version output %q", line)
	}
	return line, nil
}
