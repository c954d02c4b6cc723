package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaki95/draft-builder/config"
	"github.com/jaki95/draft-builder/internal/probe"
	"github.com/jaki95/draft-builder/internal/script"
	"github.com/jaki95/draft-builder/internal/timeline"
)

// stubProber serves canned metadata keyed by reference.
type stubProber struct {
	mu   sync.Mutex
	meta map[string]*probe.Metadata
	errs map[string]error
}

func newStubProber() *stubProber {
	return &stubProber{meta: make(map[string]*probe.Metadata), errs: make(map[string]error)}
}

func (p *stubProber) Probe(ctx context.Context, ref string) (*probe.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errs[ref]; ok {
		return nil, err
	}
	if m, ok := p.meta[ref]; ok {
		return m, nil
	}
	return nil, errors.New("unknown ref")
}

// stubFetcher writes marker files instead of hitting the network.
type stubFetcher struct {
	mu   sync.Mutex
	errs map[string]error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{errs: make(map[string]error)}
}

func (f *stubFetcher) Fetch(ctx context.Context, ref, destPath string) error {
	f.mu.Lock()
	err := f.errs[ref]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(ref), 0644)
}

type stubPublisher struct {
	published []string
	err       error
}

func (p *stubPublisher) Publish(ctx context.Context, localPath, objectName string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, localPath)
	return "https://example.com/drafts/" + objectName, nil
}

type testEnv struct {
	engine  *Engine
	prober  *stubProber
	fetcher *stubFetcher
	cfg     *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.DraftRoot = t.TempDir()
	cfg.Probe.Attempts = 1
	if mutate != nil {
		mutate(cfg)
	}

	prober := newStubProber()
	fetcher := newStubFetcher()
	e, err := New(cfg, WithProber(prober), WithFetcher(fetcher))
	require.NoError(t, err)
	return &testEnv{engine: e, prober: prober, fetcher: fetcher, cfg: cfg}
}

func TestRunScript(t *testing.T) {
	env := newTestEnv(t, nil)

	doc, err := script.Parse([]byte(`
draft:
  width: 1080
  height: 1920
assets:
  greeting: "Hello from assets"
defaults:
  track_name: text_main
  font_size: 10.0
steps:
  - add_text:
      text: $assets.greeting
      start: 0
      end: 2
  - add_text:
      text: "Second line"
      start: 2
      end: 4
      font_size: 12.0
  - op: add_text
    text: "Third via explicit op"
    start: 4
    end: 6
`))
	require.NoError(t, err)

	result, err := env.engine.RunScript(context.Background(), doc)
	require.NoError(t, err)
	require.NotEmpty(t, result.DraftID)
	assert.Equal(t, "text_main", result.TrackName)

	d, err := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, err)
	track := d.Track("text_main")
	require.NotNil(t, track)
	require.Len(t, track.Segments, 3)

	assert.Equal(t, "Hello from assets", track.Segments[0].Text)
	assert.Equal(t, 10.0, track.Segments[0].Style["font_size"])
	assert.Equal(t, 12.0, track.Segments[1].Style["font_size"])
	assert.Equal(t, 6*time.Second, d.Duration())
}

func TestRunScriptUnknownOperation(t *testing.T) {
	env := newTestEnv(t, nil)

	doc, err := script.Parse([]byte(`
steps:
  - add_text:
      text: "kept"
      start: 0
      end: 1
  - explode_draft:
      fuse: short
`))
	require.NoError(t, err)

	result, err := env.engine.RunScript(context.Background(), doc)
	require.ErrorIs(t, err, script.ErrUnknownOperation)

	// The failing step aborts the run; the step before it stays applied.
	d, getErr := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, getErr)
	require.NotNil(t, d.Track("text_main"))
	assert.Len(t, d.Track("text_main").Segments, 1)
}

func TestAddVideoUnresolvedUntilSave(t *testing.T) {
	env := newTestEnv(t, nil)
	env.prober.meta["https://example.com/clip.mp4"] = &probe.Metadata{
		Duration: 10 * time.Second, Width: 1920, Height: 1080,
	}

	result, err := env.engine.Apply(context.Background(), "add_video", map[string]any{
		"ref":   "https://example.com/clip.mp4",
		"start": 2.0,
	})
	require.NoError(t, err)

	d, err := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, err)
	seg := d.Track("video_main").Segments[0]
	assert.Equal(t, timeline.MetadataUnresolved, seg.Material.State)
	assert.Equal(t, time.Duration(0), seg.Duration)

	save, err := env.engine.Save(context.Background(), result.DraftID, nil)
	require.NoError(t, err)
	assert.True(t, save.Success)
	assert.Empty(t, save.ProbeFailures)

	// (10-2)/1.0 after the probe backfill.
	assert.Equal(t, 8*time.Second, seg.Duration)
	assert.Equal(t, 1920, seg.Material.Width)

	assert.FileExists(t, filepath.Join(save.Path, "draft_info.json"))
	entries, err := os.ReadDir(filepath.Join(save.Path, "assets", "video"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddVideoExplicitWindow(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.engine.Apply(context.Background(), "add_video", map[string]any{
		"ref":   "/local/clip.mp4",
		"start": 1.0,
		"end":   7.0,
		"speed": 2.0,
	})
	require.NoError(t, err)

	d, err := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, err)
	seg := d.Track("video_main").Segments[0]
	assert.Equal(t, 3*time.Second, seg.Duration) // (7-1)/2
}

func TestAddVideoValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.Apply(ctx, "add_video", map[string]any{"start": 0})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = env.engine.Apply(ctx, "add_video", map[string]any{"ref": "/a.mp4", "start": 5.0, "end": 2.0})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = env.engine.Apply(ctx, "add_video", map[string]any{"ref": "/a.mp4", "speed": -1.0})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestAddImageDefaultHold(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.engine.Apply(context.Background(), "add_image", map[string]any{
		"ref": "/pics/cover.png",
	})
	require.NoError(t, err)

	d, err := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, err)
	seg := d.Track("video_main").Segments[0]
	assert.Equal(t, timeline.MaterialImage, seg.Material.Kind)
	assert.Equal(t, 3*time.Second, seg.Duration)
}

func TestAddEffectCapabilityValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.Apply(ctx, "add_effect", map[string]any{
		"effect_type": "melt_screen", "start": 0, "end": 2,
	})
	assert.ErrorIs(t, err, ErrUnknownName)

	result, err := env.engine.Apply(ctx, "add_effect", map[string]any{
		"effect_type": "blur", "start": 0, "end": 2,
	})
	require.NoError(t, err)

	// Effect tracks admit a single segment, even in a disjoint interval.
	_, err = env.engine.Apply(ctx, "add_effect", map[string]any{
		"draft_id": result.DraftID, "effect_type": "glow", "start": 5, "end": 6,
	})
	assert.ErrorIs(t, err, timeline.ErrSegmentOverlap)
}

func TestAddSubtitle(t *testing.T) {
	env := newTestEnv(t, nil)

	srt := "1\n00:00:01,000 --> 00:00:03,000\nFirst line\n\n2\n00:00:03,500 --> 00:00:05,000\nSecond line\n"
	result, err := env.engine.Apply(context.Background(), "add_subtitle", map[string]any{
		"srt": srt, "offset": 1.0,
	})
	require.NoError(t, err)

	d, err := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, err)
	track := d.Track("subtitle")
	require.NotNil(t, track)
	require.Len(t, track.Segments, 2)
	assert.Equal(t, "First line", track.Segments[0].Text)
	assert.Equal(t, 2*time.Second, track.Segments[0].TargetStart)
	assert.Equal(t, 2*time.Second, track.Segments[0].Duration)
}

func TestAddKeyframeBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, err := env.engine.Apply(ctx, "add_text", map[string]any{
		"text": "animated", "start": 0, "end": 5,
	})
	require.NoError(t, err)

	_, err = env.engine.Apply(ctx, "add_keyframe", map[string]any{
		"draft_id":       result.DraftID,
		"track_name":     "text_main",
		"property_types": []any{"alpha", "alpha"},
		"times":          []any{0.0, 2.0},
		"values":         []any{"0%", "100%"},
	})
	require.NoError(t, err)

	d, err := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, err)
	require.Len(t, d.PendingKeyframes, 2)

	save, err := env.engine.Save(ctx, result.DraftID, nil)
	require.NoError(t, err)
	assert.Empty(t, save.KeyframeFailures)

	seg := d.Track("text_main").Segments[0]
	require.Len(t, seg.Keyframes, 2)
	assert.Equal(t, 0.0, seg.Keyframes[0].Value)
	assert.Equal(t, 1.0, seg.Keyframes[1].Value)
}

func TestSaveAggregatesPartialFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.prober.meta["https://example.com/good.mp4"] = &probe.Metadata{Duration: 4 * time.Second}
	env.prober.errs["https://example.com/dead.mp4"] = errors.New("unreachable")
	env.fetcher.errs["https://example.com/good.mp4"] = errors.New("connection reset")

	result, err := env.engine.Apply(ctx, "add_video", map[string]any{
		"ref": "https://example.com/good.mp4", "track_name": "a",
	})
	require.NoError(t, err)
	_, err = env.engine.Apply(ctx, "add_video", map[string]any{
		"draft_id": result.DraftID, "ref": "https://example.com/dead.mp4", "track_name": "b",
	})
	require.NoError(t, err)
	_, err = env.engine.Apply(ctx, "add_keyframe", map[string]any{
		"draft_id": result.DraftID, "track_name": "a",
		"property": "alpha", "time": 0.0, "value": "not-a-number",
	})
	require.NoError(t, err)

	save, err := env.engine.Save(ctx, result.DraftID, nil)
	require.NoError(t, err)

	// Per-item failures degrade the result without failing the save.
	assert.True(t, save.Success)
	assert.Len(t, save.ProbeFailures, 1)
	assert.Len(t, save.FetchFailures, 1)
	assert.Len(t, save.KeyframeFailures, 1)
	assert.NotEmpty(t, save.Warnings)
	assert.FileExists(t, filepath.Join(save.Path, "draft_info.json"))
}

func TestSaveReplacePolicyDropsLaterSegment(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.OverlapPolicy = "replace"
	})
	ctx := context.Background()

	env.prober.meta["https://example.com/long.mp4"] = &probe.Metadata{Duration: 10 * time.Second}

	// Unresolved duration: the overlap only becomes visible after the
	// probe backfills it.
	result, err := env.engine.Apply(ctx, "add_video", map[string]any{
		"ref": "https://example.com/long.mp4",
	})
	require.NoError(t, err)
	_, err = env.engine.Apply(ctx, "add_video", map[string]any{
		"draft_id": result.DraftID,
		"ref":      "https://example.com/long.mp4",
		"start":    0.0, "end": 2.0, "target_start": 5.0,
	})
	require.NoError(t, err)

	save, err := env.engine.Save(ctx, result.DraftID, nil)
	require.NoError(t, err)
	require.Len(t, save.DroppedSegments, 1)

	d, err := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, err)
	assert.Len(t, d.Track("video_main").Segments, 1)
}

func TestSavePublishes(t *testing.T) {
	pub := &stubPublisher{}
	cfg := config.Default()
	cfg.DraftRoot = t.TempDir()
	cfg.Probe.Attempts = 1
	cfg.Upload.Enabled = true

	e, err := New(cfg, WithProber(newStubProber()), WithFetcher(newStubFetcher()), WithPublisher(pub))
	require.NoError(t, err)

	result, err := e.Apply(context.Background(), "add_text", map[string]any{
		"text": "published", "start": 0, "end": 2,
	})
	require.NoError(t, err)

	save, err := e.Save(context.Background(), result.DraftID, nil)
	require.NoError(t, err)
	assert.True(t, save.Success)
	assert.Contains(t, save.URL, "https://example.com/drafts/")
	require.Len(t, pub.published, 1)

	// The local draft folder is removed after a successful publish.
	assert.NoDirExists(t, save.Path)
}

func TestSavePublishFailureKeepsLocalFolder(t *testing.T) {
	pub := &stubPublisher{err: errors.New("bucket unavailable")}
	cfg := config.Default()
	cfg.DraftRoot = t.TempDir()
	cfg.Probe.Attempts = 1
	cfg.Upload.Enabled = true

	e, err := New(cfg, WithProber(newStubProber()), WithFetcher(newStubFetcher()), WithPublisher(pub))
	require.NoError(t, err)

	result, err := e.Apply(context.Background(), "add_text", map[string]any{
		"text": "kept", "start": 0, "end": 2,
	})
	require.NoError(t, err)

	save, err := e.Save(context.Background(), result.DraftID, nil)
	require.NoError(t, err)
	assert.True(t, save.Success)
	assert.Empty(t, save.URL)
	assert.NotEmpty(t, save.Warnings)
	assert.DirExists(t, save.Path)
}

func TestExportScriptRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, err := env.engine.Apply(ctx, "add_video", map[string]any{
		"ref": "/clips/a.mp4", "start": 0.0, "end": 4.0,
	})
	require.NoError(t, err)
	_, err = env.engine.Apply(ctx, "add_text", map[string]any{
		"draft_id": result.DraftID, "text": "caption", "start": 1, "end": 3,
	})
	require.NoError(t, err)

	doc, err := env.engine.ExportScript(result.DraftID)
	require.NoError(t, err)
	require.Len(t, doc.Steps, 2)

	// Replaying the exported document on a fresh engine reproduces the
	// timeline.
	replay := newTestEnv(t, nil)
	doc.Draft.DraftID = ""
	replayed, err := replay.engine.RunScript(ctx, doc)
	require.NoError(t, err)

	original, err := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, err)
	copy2, err := replay.engine.Cache().Get(replayed.DraftID)
	require.NoError(t, err)

	assert.Equal(t, original.Duration(), copy2.Duration())
	require.NotNil(t, copy2.Track("video_main"))
	assert.Equal(t, "/clips/a.mp4", copy2.Track("video_main").Segments[0].Material.Ref)
	require.NotNil(t, copy2.Track("text_main"))
	assert.Equal(t, "caption", copy2.Track("text_main").Segments[0].Text)
}

func TestSummarize(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.engine.Apply(context.Background(), "add_text", map[string]any{
		"text": "hello", "start": 0, "end": 2,
	})
	require.NoError(t, err)

	summary, err := env.engine.Summarize(result.DraftID)
	require.NoError(t, err)
	assert.Contains(t, summary, result.DraftID)
	assert.Contains(t, summary, "text_main")
	assert.Contains(t, summary, "hello")
}

func TestRunScriptKeepsStepsBeforeFailingStep(t *testing.T) {
	env := newTestEnv(t, nil)

	doc, err := script.Parse([]byte(`
steps:
  - add_text:
      text: "first"
      start: 0
      end: 1
  - add_text:
      text: "second"
      start: 1
      end: 2
  - add_video:
      ref: $assets.missing
`))
	require.NoError(t, err)

	result, err := env.engine.RunScript(context.Background(), doc)
	require.ErrorIs(t, err, script.ErrUnknownAsset)

	// The bad asset reference aborts at its own step; the two steps that
	// ran before it stay applied.
	d, getErr := env.engine.Cache().Get(result.DraftID)
	require.NoError(t, getErr)
	track := d.Track("text_main")
	require.NotNil(t, track)
	assert.Len(t, track.Segments, 2)
}
