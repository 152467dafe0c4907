package transcriber

import (
	"context"
	"time"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Transcriber turns raw audio into speaker-attributed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string, speakers int) ([]domain.TranscriptSegment, error)
}

// Clock drives the poll loop. Tests inject a fake one.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
