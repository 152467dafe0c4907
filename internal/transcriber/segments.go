package transcriber

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
)

// rawSegment accepts both the flat form {text, speaker_id, emotion} and the
// service's nested form with results, speaker_info and emotions_result.
type rawSegment struct {
	Text      string `json:"text"`
	SpeakerID *int   `json:"speaker_id"`
	Emotion   string `json:"emotion"`

	Results []struct {
		Text           string `json:"text"`
		NormalizedText string `json:"normalized_text"`
	} `json:"results"`
	SpeakerInfo *struct {
		SpeakerID *int `json:"speaker_id"`
	} `json:"speaker_info"`
	EmotionsResult map[string]float64 `json:"emotions_result"`
}

func decodeSegments(body []byte) ([]domain.TranscriptSegment, error) {
	var raws []rawSegment
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}

	segments := make([]domain.TranscriptSegment, 0, len(raws))
	for _, raw := range raws {
		seg := domain.TranscriptSegment{
			Text:      raw.Text,
			SpeakerID: raw.SpeakerID,
			Emotion:   domain.Emotion(raw.Emotion),
		}
		if seg.Text == "" && len(raw.Results) > 0 {
			parts := make([]string, 0, len(raw.Results))
			for _, r := range raw.Results {
				text := r.NormalizedText
				if text == "" {
					text = r.Text
				}
				if text != "" {
					parts = append(parts, text)
				}
			}
			seg.Text = strings.Join(parts, " ")
		}
		if seg.SpeakerID == nil && raw.SpeakerInfo != nil {
			seg.SpeakerID = raw.SpeakerInfo.SpeakerID
		}
		if !seg.Emotion.Valid() {
			seg.Emotion = dominantEmotion(raw.EmotionsResult)
		}
		if seg.Text == "" {
			continue
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// dominantEmotion picks the highest score, neutral on ties or absence.
func dominantEmotion(scores map[string]float64) domain.Emotion {
	best := domain.EmotionNeutral
	bestScore := scores[string(domain.EmotionNeutral)]
	for _, e := range []domain.Emotion{domain.EmotionPositive, domain.EmotionNegative} {
		if s := scores[string(e)]; s > bestScore {
			best, bestScore = e, s
		}
	}
	return best
}
