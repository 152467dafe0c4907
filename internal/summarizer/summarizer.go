package summarizer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

// DefaultPrompt instructs the model to write a meeting protocol in markdown.
const DefaultPrompt = `You are an experienced meeting secretary. You receive the transcript of a meeting
as a list of utterances, one per block, in the form "speaker_id: <id>, text: <text>, emotion: <emotion>".

Write a formal meeting protocol in the language of the transcript.

Requirements:
- Start with a level 1 heading naming the meeting topic
- Add a "Participants" section listing speakers by their id
- Add an "Agenda" section as a numbered list
- For every agenda item summarize the discussion and the decisions taken
- Add an "Action items" section as a markdown table with columns: Task, Owner, Deadline
- Quote important statements verbatim using blockquotes
- Separate major sections with a horizontal rule
- Use markdown only, no HTML and no code fences`

type implSummarizer struct {
	gen Generator
	l   logger.Logger
}

// New creates a Summarizer backed by gen.
func New(gen Generator, l logger.Logger) Summarizer {
	return &implSummarizer{
		gen: gen,
		l:   l.With("component", "summarizer"),
	}
}

// Summarize sends the prompt as the system turn and the formatted transcript as the user turn.
func (s *implSummarizer) Summarize(ctx context.Context, segments []domain.TranscriptSegment, promptTemplate string) (string, error) {
	if strings.TrimSpace(promptTemplate) == "" {
		promptTemplate = DefaultPrompt
	}

	transcript := FormatTranscript(segments)
	s.l.Debug(ctx, "Summarizing %d segments (%d chars)", len(segments), len(transcript))

	markup, err := s.gen.Generate(ctx, promptTemplate, transcript)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(markup) == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return markup, nil
}

// FormatTranscript renders one line per segment, blocks separated by a blank line.
func FormatTranscript(segments []domain.TranscriptSegment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		speaker := "None"
		if seg.SpeakerID != nil {
			speaker = strconv.Itoa(*seg.SpeakerID)
		}
		lines = append(lines, fmt.Sprintf("speaker_id: %s, text: %s, emotion: %s", speaker, seg.Text, seg.Emotion))
	}
	return strings.Join(lines, "\n\n")
}

// LoadPrompt reads a prompt template from path, or returns DefaultPrompt when path is empty.
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return DefaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	return prompt, nil
}
