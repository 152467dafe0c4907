package domain

import (
	"github.com/google/uuid"
)

// Emotion is the closed set of emotion tags the recognizer emits.
type Emotion string

const (
	EmotionPositive Emotion = "positive"
	EmotionNeutral  Emotion = "neutral"
	EmotionNegative Emotion = "negative"
)

// Valid reports whether e belongs to the closed set.
func (e Emotion) Valid() bool {
	switch e {
	case EmotionPositive, EmotionNeutral, EmotionNegative:
		return true
	default:
		return false
	}
}

// TranscriptSegment is one speaker-attributed piece of recognized speech.
// SpeakerID is nil when diarization is disabled.
type TranscriptSegment struct {
	Text      string  `json:"text"`
	SpeakerID *int    `json:"speaker_id"`
	Emotion   Emotion `json:"emotion"`
}

// DocumentExtension is the default extension of generated protocols.
const DocumentExtension = "docx"

// GeneratedDocument is a rendered protocol waiting to be stored.
type GeneratedDocument struct {
	ID       uuid.UUID
	FileName string
	Data     []byte
}

// Message is the dispatch notification that a task is ready to run.
type Message struct {
	TaskID    uuid.UUID `json:"task_id"`
	SourceRef string    `json:"source_ref"`
}

// Bucket names shared by ingestion and the orchestrator.
const (
	AudioBucket     = "audio"
	DocumentsBucket = "documents"
)
