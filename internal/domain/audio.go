package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for audio outside the supported set.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

type formatInfo struct {
	encoding    string
	contentType string
}

var audioFormats = map[string]formatInfo{
	"mp3":  {encoding: "MP3", contentType: "audio/mpeg"},
	"ogg":  {encoding: "OPUS", contentType: "audio/ogg;codecs=opus"},
	"pcm":  {encoding: "PCM_S16LE", contentType: "audio/x-pcm;bit=16;rate=16000"},
	"flac": {encoding: "FLAC", contentType: "audio/flac"},
}

// SupportedFormats lists accepted audio formats in a stable order.
func SupportedFormats() []string {
	return []string{"mp3", "ogg", "pcm", "flac"}
}

// AudioArtifact describes an uploaded recording.
type AudioArtifact struct {
	Key              string
	Format           string
	Duration         time.Duration
	SpeakerCountHint int
}

// NewAudioArtifact validates the format before anything is stored.
func NewAudioArtifact(key, format string, duration time.Duration, speakers int) (AudioArtifact, error) {
	format = NormalizeFormat(format)
	if !IsSupportedFormat(format) {
		return AudioArtifact{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if speakers <= 0 {
		speakers = DefaultSpeakerCount
	}
	return AudioArtifact{
		Key:              key,
		Format:           format,
		Duration:         duration,
		SpeakerCountHint: speakers,
	}, nil
}

// NormalizeFormat lowercases a format and strips a leading dot.
func NormalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}

// FormatFromKey derives the format from a storage key or file name extension.
func FormatFromKey(key string) string {
	return NormalizeFormat(filepath.Ext(key))
}

// IsSupportedFormat reports whether format belongs to the supported set.
func IsSupportedFormat(format string) bool {
	_, ok := audioFormats[NormalizeFormat(format)]
	return ok
}

// AudioEncoding maps a format to the recognition service encoding name.
func AudioEncoding(format string) (string, error) {
	info, ok := audioFormats[NormalizeFormat(format)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return info.encoding, nil
}

// ContentType maps a format to the upload Content-Type.
func ContentType(format string) (string, error) {
	info, ok := audioFormats[NormalizeFormat(format)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return info.contentType, nil
}
