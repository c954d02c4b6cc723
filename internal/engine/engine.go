// Package engine exposes the editing operations and the save pipeline on
// top of the draft cache. It is the single entry point both for direct
// callers and for interpreted scripts.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jaki95/draft-builder/config"
	"github.com/jaki95/draft-builder/internal/assets"
	"github.com/jaki95/draft-builder/internal/cache"
	"github.com/jaki95/draft-builder/internal/probe"
	"github.com/jaki95/draft-builder/internal/script"
	"github.com/jaki95/draft-builder/internal/storage"
	"github.com/jaki95/draft-builder/internal/timeline"
)

// Engine owns the collaborators the operations run against.
type Engine struct {
	cfg           *config.Config
	cache         *cache.Manager
	store         *storage.Store
	resolver      *probe.Resolver
	materializer  *assets.Materializer
	publisher     storage.Publisher
	overlapPolicy timeline.OverlapPolicy
	capabilities  capabilitySet
}

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

type options struct {
	prober    probe.Prober
	fetcher   assets.Fetcher
	publisher storage.Publisher
}

// WithProber replaces the default ffprobe-backed metadata prober.
func WithProber(p probe.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithFetcher replaces the default HTTP/local-copy asset fetcher.
func WithFetcher(f assets.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPublisher sets the remote publish collaborator used after a save
// when uploading is enabled.
func WithPublisher(p storage.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New builds an engine from configuration, wiring the real collaborators
// unless options override them.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.prober == nil {
		o.prober = probe.NewFFProbe()
	}
	if o.fetcher == nil {
		o.fetcher = assets.NewHTTPFetcher()
	}

	policy, err := timeline.ParseOverlapPolicy(cfg.OverlapPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid overlap policy: %w", err)
	}

	store, err := storage.NewStore(cfg.DraftRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open draft store: %w", err)
	}

	return &Engine{
		cfg:   cfg,
		cache: cache.NewManager(store),
		store: store,
		resolver: probe.NewResolver(o.prober, cfg.Probe.Attempts,
			time.Duration(cfg.Probe.TimeoutSeconds)*time.Second, cfg.Probe.MaxParallel),
		materializer:  assets.NewMaterializer(o.fetcher, cfg.Downloads.MaxConcurrent),
		publisher:     o.publisher,
		overlapPolicy: policy,
		capabilities:  newCapabilitySet(cfg.Capabilities),
	}, nil
}

// Cache exposes the draft cache for listings and direct lookups.
func (e *Engine) Cache() *cache.Manager { return e.cache }

// Result is the outcome of a single operation.
type Result struct {
	DraftID   string
	TrackName string
	SegmentID string
	Save      *SaveResult
}

// RunScript resolves the script's target draft and runs every step in
// document order, normalizing (defaults, asset substitution, ambiguity
// check) and dispatching one step at a time. The first failing step aborts
// the run at that step; already executed steps stay applied, nothing is
// rolled back. Returns the last step's result, or a minimal result
// carrying the draft id when the step list is empty.
func (e *Engine) RunScript(ctx context.Context, doc *script.Document) (Result, error) {
	width, height := doc.Draft.Width, doc.Draft.Height
	if width <= 0 {
		width = 1080
	}
	if height <= 0 {
		height = 1920
	}
	draftID, _ := e.cache.GetOrCreate(doc.Draft.DraftID, width, height)

	result := Result{DraftID: draftID}
	for i, step := range doc.Steps {
		op, err := doc.Normalize(step)
		if err != nil {
			return Result{DraftID: draftID}, fmt.Errorf("step %d: %w", i+1, err)
		}
		if _, ok := op.Params["draft_id"]; !ok {
			op.Params["draft_id"] = draftID
		}
		stepResult, err := e.Apply(ctx, op.Name, op.Params)
		if err != nil {
			return Result{DraftID: draftID}, fmt.Errorf("step %d (%s): %w", i+1, op.Name, err)
		}
		result = stepResult
	}
	return result, nil
}

// Apply dispatches one named operation with its raw parameter map.
func (e *Engine) Apply(ctx context.Context, name string, params map[string]any) (Result, error) {
	switch name {
	case "create_draft":
		return e.createDraft(params)
	case "clone_draft":
		return e.cloneDraft(params)
	case "copy_draft":
		return e.copyDraft(params)
	case "add_video":
		return e.addVideo(params)
	case "add_audio":
		return e.addAudio(params)
	case "add_image":
		return e.addImage(params)
	case "add_text":
		return e.addText(params)
	case "add_subtitle":
		return e.addSubtitle(params)
	case "add_effect":
		return e.addEffect(params)
	case "add_sticker":
		return e.addSticker(params)
	case "add_keyframe":
		return e.addKeyframe(params)
	case "save_draft":
		return e.saveDraft(ctx, params)
	default:
		return Result{}, fmt.Errorf("%w: %q", script.ErrUnknownOperation, name)
	}
}
