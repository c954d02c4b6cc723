package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jaki95/draft-builder/internal/timeline"
)

const (
	defaultImageWidth  = 1920
	defaultImageHeight = 1080
)

// Failure records a material whose probe exhausted its retry budget.
type Failure struct {
	Ref string
	Err error
}

// Resolver backfills unresolved material metadata with bounded-parallel,
// retried probes. Concurrent resolve requests for the same reference share
// a single in-flight probe.
type Resolver struct {
	prober      Prober
	attempts    int
	timeout     time.Duration
	maxParallel int
	group       singleflight.Group
}

// NewResolver builds a resolver; zero options fall back to 3 attempts, a
// 30s per-attempt timeout and 16 parallel probes.
func NewResolver(prober Prober, attempts int, timeout time.Duration, maxParallel int) *Resolver {
	if attempts <= 0 {
		attempts = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxParallel <= 0 {
		maxParallel = 16
	}
	return &Resolver{
		prober:      prober,
		attempts:    attempts,
		timeout:     timeout,
		maxParallel: maxParallel,
	}
}

// ResolveAll probes every material of the draft that still needs metadata
// and backfills segment durations from the results. Failures are collected
// per material, never aborting the others; warnings from the backfill pass
// are returned alongside.
func (r *Resolver) ResolveAll(ctx context.Context, d *timeline.Draft, force bool) ([]Failure, []string) {
	materials := d.Materials()

	var mu sync.Mutex
	var failures []Failure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for _, m := range materials {
		m := m
		g.Go(func() error {
			if err := r.Resolve(gctx, m, force); err != nil {
				mu.Lock()
				failures = append(failures, Failure{Ref: m.Ref, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	warnings := d.BackfillDurations()
	return failures, warnings
}

// Resolve probes a single material. Already-resolved materials are left
// untouched unless force is set; a failed material stays failed until the
// next forced refresh. The singleflight group guarantees that two
// concurrent resolves of the same reference issue one probe.
func (r *Resolver) Resolve(ctx context.Context, m *timeline.Material, force bool) error {
	if m.State == timeline.MetadataResolved && !force {
		return nil
	}

	_, err, _ := r.group.Do(m.ID, func() (any, error) {
		m.State = timeline.MetadataResolving
		meta, err := r.probeWithRetry(ctx, m.Ref)
		if err != nil {
			if m.Kind == timeline.MaterialImage {
				// Images fall back to a default canvas size; they carry no
				// intrinsic duration so nothing downstream is lost.
				slog.Warn("image probe failed, using default dimensions",
					"ref", m.Ref, "error", err)
				m.Width = defaultImageWidth
				m.Height = defaultImageHeight
				m.State = timeline.MetadataResolved
				return nil, nil
			}
			m.State = timeline.MetadataFailed
			return nil, err
		}

		if m.Kind != timeline.MaterialImage {
			m.Duration = meta.Duration
		}
		if meta.Width > 0 {
			m.Width = meta.Width
			m.Height = meta.Height
		}
		m.State = timeline.MetadataResolved
		slog.Debug("resolved material metadata",
			"ref", m.Ref, "duration", m.Duration, "width", m.Width, "height", m.Height)
		return nil, nil
	})
	return err
}

func (r *Resolver) probeWithRetry(ctx context.Context, ref string) (*Metadata, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		meta, err := r.prober.Probe(attemptCtx, ref)
		cancel()
		if err == nil {
			return meta, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < r.attempts {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			slog.Warn("probe attempt failed, retrying",
				"ref", ref, "attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("probe failed after %d attempts: %w", r.attempts, lastErr)
}
