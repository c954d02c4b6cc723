// Package timeline holds the in-memory draft model: tracks, segments and
// the materials they reference. Tracks enforce the no-overlap invariant on
// segment target intervals; everything else about a segment's style payload
// is opaque to this package.
package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrackKind identifies the lane type a track accepts.
type TrackKind string

const (
	TrackVideo   TrackKind = "video"
	TrackAudio   TrackKind = "audio"
	TrackText    TrackKind = "text"
	TrackEffect  TrackKind = "effect"
	TrackSticker TrackKind = "sticker"
)

// exclusive kinds admit at most one segment per named track.
func (k TrackKind) exclusive() bool {
	return k == TrackEffect || k == TrackSticker
}

// MaterialKind classifies the referenced media.
type MaterialKind string

const (
	MaterialVideo MaterialKind = "video"
	MaterialAudio MaterialKind = "audio"
	MaterialImage MaterialKind = "image"
)

// MetadataState tracks the resolution lifecycle of a material's probed
// metadata. A material starts Unresolved unless duration was supplied at
// add time; the resolver moves it through Resolving to Resolved or Failed.
type MetadataState int

const (
	MetadataUnresolved MetadataState = iota
	MetadataResolving
	MetadataResolved
	MetadataFailed
)

func (s MetadataState) String() string {
	switch s {
	case MetadataUnresolved:
		return "unresolved"
	case MetadataResolving:
		return "resolving"
	case MetadataResolved:
		return "resolved"
	case MetadataFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Material is a deduplicated reference to an external media asset. Exactly
// one Material exists per distinct source reference within a draft;
// segments point at it and never own it.
type Material struct {
	ID   string
	Ref  string // URL or local path
	Kind MaterialKind

	State    MetadataState
	Duration time.Duration
	Width    int
	Height   int
}

// Resolved reports whether probed metadata is available.
func (m *Material) Resolved() bool { return m.State == MetadataResolved }

// Keyframe is a baked property animation point on a segment.
type Keyframe struct {
	Property string
	Time     time.Duration
	Value    float64
}

// Segment is a timed placement of a material (or inline content, for text)
// on a track.
type Segment struct {
	ID       string
	Material *Material // nil for text/effect/sticker segments
	Text     string    // inline content for text segments

	// Source trim window, in material time.
	SourceStart time.Duration
	SourceEnd   time.Duration

	TargetStart time.Duration
	Speed       float64

	// Duration is the target duration, (SourceEnd-SourceStart)/Speed once
	// the source window is known. Zero means not yet resolved.
	Duration time.Duration

	// RelativeIndex is the z-order hint among same-kind tracks.
	RelativeIndex int

	// Style carries the type-specific payload (transform, mask, border,
	// animation references). Only timing and layering are load-bearing here.
	Style map[string]any

	Keyframes []Keyframe
}

// NewSegment allocates a segment with a generated id and default speed.
func NewSegment() *Segment {
	return &Segment{ID: uuid.NewString(), Speed: 1.0, Style: map[string]any{}}
}

// TargetEnd returns the exclusive end of the target interval.
func (s *Segment) TargetEnd() time.Duration { return s.TargetStart + s.Duration }

// OverlapsTarget reports whether the two target intervals intersect.
// Zero-duration segments occupy no time and never collide.
func (s *Segment) OverlapsTarget(o *Segment) bool {
	if s.Duration <= 0 || o.Duration <= 0 {
		return false
	}
	return s.TargetStart < o.TargetEnd() && o.TargetStart < s.TargetEnd()
}

// Track is a named lane of segments of one kind, kept in insertion order.
type Track struct {
	Name          string
	Kind          TrackKind
	RelativeIndex int
	Segments      []*Segment
}

// Draft is the root aggregate: canvas settings plus the ordered tracks it
// exclusively owns.
type Draft struct {
	ID     string
	Width  int
	Height int
	FPS    int

	Tracks []*Track

	materials map[string]*Material // keyed by source reference

	// PendingKeyframes buffers queued property edits until the bake pass.
	PendingKeyframes []PendingKeyframe
}

// PendingKeyframe is a queued, unparsed property edit targeting the first
// segment of the named track at bake time.
type PendingKeyframe struct {
	TrackName string
	Property  string
	Time      time.Duration
	RawValue  string
}

// NewDraft creates an empty draft with the given canvas.
func NewDraft(id string, width, height int) *Draft {
	return &Draft{
		ID:        id,
		Width:     width,
		Height:    height,
		FPS:       30,
		materials: make(map[string]*Material),
	}
}

// Track returns the named track, or nil.
func (d *Draft) Track(name string) *Track {
	for _, t := range d.Tracks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// EnsureTrack returns the named track, creating it lazily. Requesting an
// existing name with a mismatched kind is an error.
func (d *Draft) EnsureTrack(name string, kind TrackKind) (*Track, error) {
	if t := d.Track(name); t != nil {
		if t.Kind != kind {
			return nil, fmt.Errorf("%w: track %q is %s, requested %s", ErrTrackKindMismatch, name, t.Kind, kind)
		}
		return t, nil
	}
	t := &Track{Name: name, Kind: kind, RelativeIndex: len(d.Tracks)}
	d.Tracks = append(d.Tracks, t)
	return t, nil
}

// MaterialFor returns the draft's material for ref, creating it on first
// use so that each distinct reference is fetched exactly once.
func (d *Draft) MaterialFor(ref string, kind MaterialKind) *Material {
	if m, ok := d.materials[ref]; ok {
		return m
	}
	m := &Material{ID: uuid.NewString(), Ref: ref, Kind: kind}
	d.materials[ref] = m
	return m
}

// Materials returns the distinct materials referenced by the draft, in
// segment order across tracks.
func (d *Draft) Materials() []*Material {
	var out []*Material
	seen := make(map[string]bool)
	for _, t := range d.Tracks {
		for _, s := range t.Segments {
			if s.Material == nil || seen[s.Material.Ref] {
				continue
			}
			seen[s.Material.Ref] = true
			out = append(out, s.Material)
		}
	}
	return out
}

// RegisterMaterial installs an existing material under its reference,
// used when loading a serialized draft.
func (d *Draft) RegisterMaterial(m *Material) {
	if d.materials == nil {
		d.materials = make(map[string]*Material)
	}
	d.materials[m.Ref] = m
}

// Duration is the derived total: the max target end across all segments.
func (d *Draft) Duration() time.Duration {
	var max time.Duration
	for _, t := range d.Tracks {
		for _, s := range t.Segments {
			if end := s.TargetEnd(); end > max {
				max = end
			}
		}
	}
	return max
}

// Clone returns a deep copy of the draft under a new id. Materials are
// re-deduplicated so the copy shares nothing with the original.
func (d *Draft) Clone(newID string) *Draft {
	out := NewDraft(newID, d.Width, d.Height)
	out.FPS = d.FPS
	for _, t := range d.Tracks {
		nt := &Track{Name: t.Name, Kind: t.Kind, RelativeIndex: t.RelativeIndex}
		for _, s := range t.Segments {
			ns := *s
			ns.ID = uuid.NewString()
			if s.Material != nil {
				nm := out.MaterialFor(s.Material.Ref, s.Material.Kind)
				nm.State = s.Material.State
				nm.Duration = s.Material.Duration
				nm.Width = s.Material.Width
				nm.Height = s.Material.Height
				ns.Material = nm
			}
			if s.Style != nil {
				ns.Style = make(map[string]any, len(s.Style))
				for k, v := range s.Style {
					ns.Style[k] = v
				}
			}
			ns.Keyframes = append([]Keyframe(nil), s.Keyframes...)
			nt.Segments = append(nt.Segments, &ns)
		}
		out.Tracks = append(out.Tracks, nt)
	}
	out.PendingKeyframes = append([]PendingKeyframe(nil), d.PendingKeyframes...)
	return out
}
