package engine

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jaki95/draft-builder/internal/keyframe"
	"github.com/jaki95/draft-builder/internal/timeline"
)

// decodeParams maps a raw parameter map onto a typed struct by round
// tripping through YAML, so script steps and direct calls share one
// decoding path.
func decodeParams(params map[string]any, out any) error {
	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func secs(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

type draftParams struct {
	DraftID string `yaml:"draft_id"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

// target resolves the draft the operation mutates, creating one when the
// id is absent or unknown.
func (e *Engine) target(p draftParams) (string, *timeline.Draft) {
	width, height := p.Width, p.Height
	if width <= 0 {
		width = 1080
	}
	if height <= 0 {
		height = 1920
	}
	return e.cache.GetOrCreate(p.DraftID, width, height)
}

func (e *Engine) createDraft(params map[string]any) (Result, error) {
	var p draftParams
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	width, height := p.Width, p.Height
	if width <= 0 {
		width = 1080
	}
	if height <= 0 {
		height = 1920
	}
	_, id := e.cache.Create(width, height)
	return Result{DraftID: id}, nil
}

func (e *Engine) cloneDraft(params map[string]any) (Result, error) {
	var p struct {
		SourceName string `yaml:"source_name"`
		SourceRoot string `yaml:"source_root"`
	}
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if p.SourceName == "" || p.SourceRoot == "" {
		return Result{}, fmt.Errorf("%w: clone_draft requires source_name and source_root", ErrInvalidParams)
	}
	_, id, err := e.cache.Clone(p.SourceName, p.SourceRoot)
	if err != nil {
		return Result{}, err
	}
	return Result{DraftID: id}, nil
}

func (e *Engine) copyDraft(params map[string]any) (Result, error) {
	var p struct {
		SourceID string `yaml:"source_id"`
		NewID    string `yaml:"new_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if p.SourceID == "" {
		return Result{}, fmt.Errorf("%w: copy_draft requires source_id", ErrInvalidParams)
	}
	_, id, err := e.cache.Copy(p.SourceID, p.NewID)
	if err != nil {
		return Result{}, err
	}
	return Result{DraftID: id}, nil
}

// mediaParams is the shared parameter shape of add_video, add_audio and
// add_image. start/end trim the source material; target_start places the
// segment on the timeline.
type mediaParams struct {
	draftParams   `yaml:",inline"`
	Ref           string   `yaml:"ref"`
	TrackName     string   `yaml:"track_name"`
	Start         float64  `yaml:"start"`
	End           float64  `yaml:"end"`
	Duration      float64  `yaml:"duration"`
	TargetStart   float64  `yaml:"target_start"`
	Speed         float64  `yaml:"speed"`
	Volume        *float64 `yaml:"volume"`
	RelativeIndex int      `yaml:"relative_index"`
	Transition    string   `yaml:"transition"`
	Mask          string   `yaml:"mask"`
}

func (p *mediaParams) validate() error {
	if p.Ref == "" {
		return fmt.Errorf("%w: ref is required", ErrInvalidParams)
	}
	if p.Start < 0 || p.TargetStart < 0 {
		return fmt.Errorf("%w: start and target_start must be non-negative", ErrInvalidParams)
	}
	if p.End != 0 && p.End <= p.Start {
		return fmt.Errorf("%w: end (%v) must be greater than start (%v)", ErrInvalidParams, p.End, p.Start)
	}
	if p.Duration < 0 {
		return fmt.Errorf("%w: duration must be non-negative", ErrInvalidParams)
	}
	if p.Speed < 0 {
		return fmt.Errorf("%w: speed must be positive", ErrInvalidParams)
	}
	if p.Volume != nil && (*p.Volume < 0 || *p.Volume > 1) {
		return fmt.Errorf("%w: volume must be within [0, 1]", ErrInvalidParams)
	}
	return nil
}

func (e *Engine) addMedia(params map[string]any, materialKind timeline.MaterialKind, trackKind timeline.TrackKind, defaultTrack string) (Result, error) {
	var p mediaParams
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	if err := validateName(e.capabilities.transitions, "transition", p.Transition); err != nil {
		return Result{}, err
	}
	if err := validateName(e.capabilities.masks, "mask", p.Mask); err != nil {
		return Result{}, err
	}

	id, d := e.target(p.draftParams)
	track := p.TrackName
	if track == "" {
		track = defaultTrack
	}
	speed := p.Speed
	if speed == 0 {
		speed = 1.0
	}

	seg := timeline.NewSegment()
	seg.Material = d.MaterialFor(p.Ref, materialKind)
	seg.Speed = speed
	seg.SourceStart = secs(p.Start)
	seg.TargetStart = secs(p.TargetStart)
	seg.RelativeIndex = p.RelativeIndex

	duration := p.Duration
	if materialKind == timeline.MaterialImage && p.End == 0 && duration == 0 {
		// Images have no intrinsic duration; default to a 3 second hold.
		duration = 3.0
	}
	switch {
	case p.End != 0:
		seg.SourceEnd = secs(p.End)
		seg.Duration = secs((p.End - p.Start) / speed)
	case duration != 0:
		seg.Duration = secs(duration)
		seg.SourceEnd = secs(p.Start + duration*speed)
	}
	// With neither end nor duration the source window stays open and the
	// material's metadata stays unresolved until the save-time probe.

	if p.Volume != nil {
		seg.Style["volume"] = *p.Volume
	}
	if p.Transition != "" {
		seg.Style["transition"] = p.Transition
	}
	if p.Mask != "" {
		seg.Style["mask"] = p.Mask
	}

	if err := d.AddSegment(track, trackKind, seg, e.overlapPolicy); err != nil {
		return Result{}, err
	}
	return Result{DraftID: id, TrackName: track, SegmentID: seg.ID}, nil
}

func (e *Engine) addVideo(params map[string]any) (Result, error) {
	return e.addMedia(params, timeline.MaterialVideo, timeline.TrackVideo, "video_main")
}

func (e *Engine) addAudio(params map[string]any) (Result, error) {
	return e.addMedia(params, timeline.MaterialAudio, timeline.TrackAudio, "audio_main")
}

func (e *Engine) addImage(params map[string]any) (Result, error) {
	// Images occupy video tracks; only the material kind differs.
	return e.addMedia(params, timeline.MaterialImage, timeline.TrackVideo, "video_main")
}

type textParams struct {
	draftParams `yaml:",inline"`
	Text        string  `yaml:"text"`
	TrackName   string  `yaml:"track_name"`
	Start       float64 `yaml:"start"`
	End         float64 `yaml:"end"`
	Font        string  `yaml:"font"`
	FontSize    float64 `yaml:"font_size"`
	Color       string  `yaml:"color"`
	TransformX  float64 `yaml:"transform_x"`
	TransformY  float64 `yaml:"transform_y"`
}

func (e *Engine) addText(params map[string]any) (Result, error) {
	var p textParams
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if p.Text == "" {
		return Result{}, fmt.Errorf("%w: text is required", ErrInvalidParams)
	}
	if p.Start < 0 || p.End <= p.Start {
		return Result{}, fmt.Errorf("%w: text needs start >= 0 and end > start", ErrInvalidParams)
	}
	if err := validateName(e.capabilities.fonts, "font", p.Font); err != nil {
		return Result{}, err
	}

	id, d := e.target(p.draftParams)
	track := p.TrackName
	if track == "" {
		track = "text_main"
	}

	seg := e.textSegment(p.Text, p.Start, p.End)
	if p.Font != "" {
		seg.Style["font"] = p.Font
	}
	if p.FontSize != 0 {
		seg.Style["font_size"] = p.FontSize
	}
	if p.Color != "" {
		seg.Style["color"] = p.Color
	}
	if p.TransformX != 0 {
		seg.Style["transform_x"] = p.TransformX
	}
	if p.TransformY != 0 {
		seg.Style["transform_y"] = p.TransformY
	}

	if err := d.AddSegment(track, timeline.TrackText, seg, e.overlapPolicy); err != nil {
		return Result{}, err
	}
	return Result{DraftID: id, TrackName: track, SegmentID: seg.ID}, nil
}

// textSegment places text directly on the timeline: start/end are target
// times, there is no source material to trim.
func (e *Engine) textSegment(text string, start, end float64) *timeline.Segment {
	seg := timeline.NewSegment()
	seg.Text = text
	seg.TargetStart = secs(start)
	seg.Duration = secs(end - start)
	return seg
}

type effectParams struct {
	draftParams `yaml:",inline"`
	EffectType  string  `yaml:"effect_type"`
	TrackName   string  `yaml:"track_name"`
	Start       float64 `yaml:"start"`
	End         float64 `yaml:"end"`
}

func (e *Engine) addEffect(params map[string]any) (Result, error) {
	var p effectParams
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if p.EffectType == "" {
		return Result{}, fmt.Errorf("%w: effect_type is required", ErrInvalidParams)
	}
	if p.Start < 0 || p.End <= p.Start {
		return Result{}, fmt.Errorf("%w: effect needs start >= 0 and end > start", ErrInvalidParams)
	}
	if !e.capabilities.effects[p.EffectType] {
		return Result{}, fmt.Errorf("%w: effect %q", ErrUnknownName, p.EffectType)
	}

	id, d := e.target(p.draftParams)
	track := p.TrackName
	if track == "" {
		track = "effect_main"
	}

	seg := timeline.NewSegment()
	seg.TargetStart = secs(p.Start)
	seg.Duration = secs(p.End - p.Start)
	seg.Style["effect_type"] = p.EffectType

	if err := d.AddSegment(track, timeline.TrackEffect, seg, e.overlapPolicy); err != nil {
		return Result{}, err
	}
	return Result{DraftID: id, TrackName: track, SegmentID: seg.ID}, nil
}

type stickerParams struct {
	draftParams `yaml:",inline"`
	ResourceID  string  `yaml:"resource_id"`
	TrackName   string  `yaml:"track_name"`
	Start       float64 `yaml:"start"`
	End         float64 `yaml:"end"`
	TransformX  float64 `yaml:"transform_x"`
	TransformY  float64 `yaml:"transform_y"`
	Scale       float64 `yaml:"scale"`
}

func (e *Engine) addSticker(params map[string]any) (Result, error) {
	var p stickerParams
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if p.ResourceID == "" {
		return Result{}, fmt.Errorf("%w: resource_id is required", ErrInvalidParams)
	}
	if p.Start < 0 || p.End <= p.Start {
		return Result{}, fmt.Errorf("%w: sticker needs start >= 0 and end > start", ErrInvalidParams)
	}

	id, d := e.target(p.draftParams)
	track := p.TrackName
	if track == "" {
		track = "sticker_main"
	}

	seg := timeline.NewSegment()
	seg.TargetStart = secs(p.Start)
	seg.Duration = secs(p.End - p.Start)
	seg.Style["resource_id"] = p.ResourceID
	if p.TransformX != 0 {
		seg.Style["transform_x"] = p.TransformX
	}
	if p.TransformY != 0 {
		seg.Style["transform_y"] = p.TransformY
	}
	if p.Scale != 0 {
		seg.Style["scale"] = p.Scale
	}

	if err := d.AddSegment(track, timeline.TrackSticker, seg, e.overlapPolicy); err != nil {
		return Result{}, err
	}
	return Result{DraftID: id, TrackName: track, SegmentID: seg.ID}, nil
}

type keyframeParams struct {
	DraftID   string `yaml:"draft_id"`
	TrackName string `yaml:"track_name"`

	Property string  `yaml:"property"`
	Time     float64 `yaml:"time"`
	Value    any     `yaml:"value"`

	PropertyTypes []string  `yaml:"property_types"`
	Times         []float64 `yaml:"times"`
	Values        []any     `yaml:"values"`
}

func (e *Engine) addKeyframe(params map[string]any) (Result, error) {
	var p keyframeParams
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if p.TrackName == "" {
		return Result{}, fmt.Errorf("%w: track_name is required", ErrInvalidParams)
	}

	d, err := e.cache.Get(p.DraftID)
	if err != nil {
		return Result{}, err
	}

	if len(p.PropertyTypes) > 0 || len(p.Times) > 0 || len(p.Values) > 0 {
		values := make([]string, len(p.Values))
		for i, v := range p.Values {
			values[i] = fmt.Sprint(v)
		}
		if err := keyframe.EnqueueBatch(d, p.TrackName, p.PropertyTypes, p.Times, values); err != nil {
			return Result{}, err
		}
		return Result{DraftID: p.DraftID, TrackName: p.TrackName}, nil
	}

	if p.Property == "" {
		return Result{}, fmt.Errorf("%w: property is required", ErrInvalidParams)
	}
	if err := keyframe.Enqueue(d, p.TrackName, p.Property, p.Time, fmt.Sprint(p.Value)); err != nil {
		return Result{}, err
	}
	return Result{DraftID: p.DraftID, TrackName: p.TrackName}, nil
}

func (e *Engine) saveDraft(ctx context.Context, params map[string]any) (Result, error) {
	var p struct {
		DraftID string `yaml:"draft_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if p.DraftID == "" {
		return Result{}, fmt.Errorf("%w: save_draft requires draft_id", ErrInvalidParams)
	}
	save, err := e.Save(ctx, p.DraftID, nil)
	if err != nil {
		return Result{DraftID: p.DraftID}, err
	}
	return Result{DraftID: p.DraftID, Save: save}, nil
}
