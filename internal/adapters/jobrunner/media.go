package jobrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/audioscribe/audioscribe/internal/artifact"
	"github.com/audioscribe/audioscribe/internal/core"
	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/service"
	"github.com/audioscribe/audioscribe/internal/transcribe"
)

// stageMedia copies the job's media artifact to a local temp file for the
// engine. The returned cleanup removes the staging directory.
func stageMedia(ctx context.Context, store core.ArtifactStore, mediaRef string) (string, func(), error) {
	rc, err := store.Get(ctx, mediaRef)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return "", nil, &transcribe.EngineError{
				Kind:    model.FailureKindBadMedia,
				Message: fmt.Sprintf("media artifact %s does not exist", mediaRef),
				Cause:   err,
			}
		}
		return "", nil, &transcribe.EngineError{
			Kind:    model.FailureKindResourceExhausted,
			Message: "fetch media artifact",
			Cause:   err,
		}
	}
	defer rc.Close()

	dir, err := os.MkdirTemp("", "scribe-media-*")
	if err != nil {
		return "", nil, fmt.Errorf("create media staging dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, "media"+filepath.Ext(mediaRef))
	f, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("create staged media file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("stage media %s: %w", mediaRef, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close staged media file: %w", err)
	}
	return path, cleanup, nil
}

// transcriptRef is the artifact key for a job's transcript document.
func transcriptRef(jobID string) string {
	return "transcripts/" + jobID + ".json"
}

// storeTranscript writes the transcript document to blob storage and builds
// the metadata row that completes the job.
func storeTranscript(
	ctx context.Context,
	store core.ArtifactStore,
	job *model.Job,
	result *transcribe.Result,
) (*model.Transcript, error) {
	segments := make([]model.TranscriptSegment, 0, len(result.Segments))
	for _, s := range result.Segments {
		segments = append(segments, model.TranscriptSegment{
			Start:   s.Start,
			End:     s.End,
			Speaker: s.Speaker,
			Text:    s.Text,
		})
	}

	language := result.Language
	if language == "" {
		language = job.Language
	}

	doc := &model.TranscriptDocument{
		JobID:              job.ID,
		Language:           language,
		Model:              job.Model,
		DurationSeconds:    result.DurationSeconds,
		DiarizationApplied: job.DiarizationEnabled,
		Text:               result.Text,
		Segments:           segments,
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal transcript document: %w", err)
	}

	ref := transcriptRef(job.ID)
	if err := store.Put(ctx, ref, bytes.NewReader(payload), service.TranscriptContentType); err != nil {
		return nil, fmt.Errorf("store transcript artifact %s: %w", ref, err)
	}

	return &model.Transcript{
		JobID:           job.ID,
		OwnerID:         job.OwnerID,
		ArtifactRef:     ref,
		Language:        language,
		Model:           job.Model,
		DurationSeconds: result.DurationSeconds,
		SegmentCount:    len(segments),
		WordCount:       result.WordCount(),
		SizeBytes:       int64(len(payload)),
	}, nil
}
