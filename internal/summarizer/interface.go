package summarizer

import (
	"context"
	"errors"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// Summarizer turns a transcript into protocol markup.
type Summarizer interface {
	Summarize(ctx context.Context, segments []domain.TranscriptSegment, promptTemplate string) (string, error)
}

// Generator is a language model that answers a system and a user turn.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// ErrGeneration wraps every failure to obtain protocol markup.
var ErrGeneration = errors.New("protocol generation failed")
