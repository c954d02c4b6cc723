package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jaki95/draft-builder/internal/assets"
	"github.com/jaki95/draft-builder/internal/keyframe"
	"github.com/jaki95/draft-builder/internal/probe"
	"github.com/jaki95/draft-builder/internal/timeline"
)

// SaveResult reports the outcome of a save. Per-item failures (probe,
// fetch, keyframe) never fail the save as a whole; they are enumerated
// here so the caller can see exactly what degraded.
type SaveResult struct {
	Success bool
	DraftID string

	// Path is the local draft folder; URL is set when the archive was
	// published remotely.
	Path string
	URL  string

	ProbeFailures    []probe.Failure
	FetchFailures    []assets.Outcome
	KeyframeFailures []keyframe.BakeFailure
	DroppedSegments  []*timeline.Segment
	Warnings         []string
}

// Save runs the full pipeline for one draft: resolve metadata, re-validate
// overlaps, bake keyframes, materialize assets, serialize, and optionally
// publish. The per-draft lock is held for the whole pipeline so adds
// against the same id cannot interleave.
func (e *Engine) Save(ctx context.Context, draftID string, progress func(done, total int)) (*SaveResult, error) {
	unlock, err := e.cache.Lock(draftID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := e.cache.Get(draftID)
	if err != nil {
		return nil, err
	}

	result := &SaveResult{DraftID: draftID}

	probeFailures, warnings := e.resolver.ResolveAll(ctx, d, false)
	result.ProbeFailures = probeFailures
	result.Warnings = append(result.Warnings, warnings...)

	// Metadata backfill may have grown segment intervals, so overlaps are
	// re-validated under the configured policy before anything is written.
	dropped, err := d.ResolveOverlaps(e.overlapPolicy)
	if err != nil {
		return nil, err
	}
	result.DroppedSegments = dropped
	for _, seg := range dropped {
		result.Warnings = append(result.Warnings, fmt.Sprintf("dropped overlapping segment %s", seg.ID))
	}

	result.Warnings = append(result.Warnings, d.ValidateDurations()...)

	result.KeyframeFailures = keyframe.Bake(d)

	report, err := e.materializer.Materialize(ctx, d, e.store.AssetsDir(draftID), progress)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize assets: %w", err)
	}
	result.FetchFailures = report.Failures()

	path, err := e.store.WriteDraft(d)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize draft: %w", err)
	}
	result.Path = path
	result.Success = true

	if e.cfg.Upload.Enabled {
		url, err := e.publish(ctx, draftID)
		if err != nil {
			// A failed upload leaves the local folder in place; the save
			// itself already succeeded.
			slog.Error("failed to publish draft archive", "draft_id", draftID, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("publish failed: %v", err))
		} else {
			result.URL = url
		}
	}

	slog.Info("saved draft",
		"draft_id", draftID,
		"path", result.Path,
		"probe_failures", len(result.ProbeFailures),
		"fetch_failures", len(result.FetchFailures),
		"keyframe_failures", len(result.KeyframeFailures),
		"warnings", len(result.Warnings))
	return result, nil
}

// publish zips the draft folder, uploads the archive and removes the local
// folder on success.
func (e *Engine) publish(ctx context.Context, draftID string) (string, error) {
	if e.publisher == nil {
		return "", fmt.Errorf("upload enabled but no publisher configured")
	}
	zipPath, err := e.store.Zip(draftID)
	if err != nil {
		return "", fmt.Errorf("failed to archive draft: %w", err)
	}

	url, err := e.publisher.Publish(ctx, zipPath, filepath.Base(zipPath))
	if err != nil {
		return "", err
	}

	if err := e.store.RemoveDraft(draftID); err != nil {
		slog.Warn("failed to remove local draft after publish", "draft_id", draftID, "error", err)
	}
	return url, nil
}

// MoveIntoEditor copies a saved draft folder into an external editor's
// drafts root so the editor picks it up on next launch.
func (e *Engine) MoveIntoEditor(draftID, editorRoot string, overwrite bool) (string, error) {
	return e.store.MoveIntoEditor(draftID, editorRoot, overwrite)
}
