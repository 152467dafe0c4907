package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nguyentantai21042004/protocol-flow/internal/domain"
	"github.com/nguyentantai21042004/protocol-flow/internal/processor"
)

type request struct {
	FileName string `validate:"required"`
	Size     int    `validate:"gt=0"`
	Speakers int    `validate:"min=1,max=10"`
}

func (s *implService) Ingest(ctx context.Context, fileName string, data []byte, speakers int) (domain.Task, error) {
	if speakers <= 0 {
		speakers = domain.DefaultSpeakerCount
	}
	req := request{FileName: filepath.Base(fileName), Size: len(data), Speakers: speakers}
	if err := s.validate.Struct(req); err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	artifact, err := domain.NewAudioArtifact("", domain.FormatFromKey(fileName), 0, speakers)
	if err != nil {
		return domain.Task{}, err
	}
	artifact.Duration = s.probe(ctx, req.FileName, data)
	artifact.Key = s.keys.Key(artifact.Format)

	if err := s.objects.Put(ctx, domain.AudioBucket, artifact.Key, data); err != nil {
		return domain.Task{}, fmt.Errorf("%w: %w", ErrStoreAudio, err)
	}

	task, err := s.creator.Create(ctx, artifact.Key, artifact.SpeakerCountHint)
	if err != nil {
		// Audio without a task row is unreachable, so remove it.
		if errors.Is(err, processor.ErrCreation) {
			if derr := s.objects.Delete(context.WithoutCancel(ctx), domain.AudioBucket, artifact.Key); derr != nil {
				s.logger.Warn(ctx, "Failed to remove audio %s: %v", artifact.Key, derr)
			}
		}
		return domain.Task{}, err
	}

	if artifact.Duration > 0 {
		s.logger.Info(ctx, "Ingested %s as %s (%s, %s)", req.FileName, artifact.Key, artifact.Format, artifact.Duration)
	} else {
		s.logger.Info(ctx, "Ingested %s as %s (%s)", req.FileName, artifact.Key, artifact.Format)
	}
	return task, nil
}

// probe is best effort: the duration is informational only.
func (s *implService) probe(ctx context.Context, name string, data []byte) time.Duration {
	if s.prober == nil {
		return 0
	}
	d, err := s.prober.Duration(ctx, data)
	if err != nil {
		s.logger.Warn(ctx, "Could not probe duration of %s: %v", name, err)
		return 0
	}
	return d
}
