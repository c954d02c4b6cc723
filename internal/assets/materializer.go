package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jaki95/draft-builder/internal/timeline"
)

// Outcome records the result of materializing one material.
type Outcome struct {
	Ref       string
	Kind      timeline.MaterialKind
	LocalPath string
	Err       error
}

// Report aggregates the per-material outcomes of a materialization run.
type Report struct {
	Outcomes []Outcome
}

// Failures returns the outcomes that did not produce a local file.
func (r *Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Materializer fetches a draft's distinct materials into its asset tree
// with bounded parallelism.
type Materializer struct {
	fetcher       Fetcher
	maxConcurrent int
}

// NewMaterializer builds a materializer; a non-positive limit falls back to
// 16 concurrent fetches.
func NewMaterializer(fetcher Fetcher, maxConcurrent int) *Materializer {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &Materializer{fetcher: fetcher, maxConcurrent: maxConcurrent}
}

// Materialize replaces the asset tree under assetsDir with a fresh copy of
// every distinct material, laid out as <assetsDir>/<kind>/<derived name>.
// One failed fetch never aborts the others; every material gets an outcome.
// An optional progress callback receives (done, total) after each fetch.
func (m *Materializer) Materialize(ctx context.Context, d *timeline.Draft, assetsDir string, progress func(done, total int)) (*Report, error) {
	materials := d.Materials()

	// Full overwrite: stale assets from a previous save must not survive.
	if err := os.RemoveAll(assetsDir); err != nil {
		return nil, fmt.Errorf("failed to clear asset dir: %w", err)
	}
	for _, kind := range []timeline.MaterialKind{timeline.MaterialVideo, timeline.MaterialAudio, timeline.MaterialImage} {
		if err := os.MkdirAll(filepath.Join(assetsDir, string(kind)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create asset dir: %w", err)
		}
	}

	outcomes := make([]Outcome, len(materials))
	var done int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrent)
	for i, mat := range materials {
		i, mat := i, mat
		g.Go(func() error {
			dest := filepath.Join(assetsDir, string(mat.Kind), DerivedFilename(mat.Ref))
			err := m.fetcher.Fetch(gctx, mat.Ref, dest)
			if err != nil {
				slog.Warn("asset fetch failed", "ref", mat.Ref, "error", err)
				outcomes[i] = Outcome{Ref: mat.Ref, Kind: mat.Kind, Err: err}
			} else {
				outcomes[i] = Outcome{Ref: mat.Ref, Kind: mat.Kind, LocalPath: dest}
			}
			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(materials))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return &Report{Outcomes: outcomes}, nil
}
