package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaki95/draft-builder/internal/timeline"
)

// The draft_info.json document. This is the serialization collaborator
// boundary: the timeline model is flattened into id-referenced documents
// so materials stay deduplicated on disk.

const draftInfoFile = "draft_info.json"

type draftDoc struct {
	ID        string        `json:"id"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	FPS       int           `json:"fps"`
	Duration  float64       `json:"duration"`
	Materials []materialDoc `json:"materials"`
	Tracks    []trackDoc    `json:"tracks"`
}

type materialDoc struct {
	ID       string  `json:"id"`
	Ref      string  `json:"ref"`
	Kind     string  `json:"kind"`
	Resolved bool    `json:"resolved"`
	Duration float64 `json:"duration,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

type trackDoc struct {
	Name          string       `json:"name"`
	Kind          string       `json:"kind"`
	RelativeIndex int          `json:"relative_index"`
	Segments      []segmentDoc `json:"segments"`
}

type segmentDoc struct {
	ID            string         `json:"id"`
	MaterialID    string         `json:"material_id,omitempty"`
	Text          string         `json:"text,omitempty"`
	SourceStart   float64        `json:"source_start"`
	SourceEnd     float64        `json:"source_end"`
	TargetStart   float64        `json:"target_start"`
	Duration      float64        `json:"duration"`
	Speed         float64        `json:"speed"`
	RelativeIndex int            `json:"relative_index"`
	Style         map[string]any `json:"style,omitempty"`
	Keyframes     []keyframeDoc  `json:"keyframes,omitempty"`
}

type keyframeDoc struct {
	Property string  `json:"property"`
	Time     float64 `json:"time"`
	Value    float64 `json:"value"`
}

// WriteDraft serializes the draft into its folder and returns the folder
// path. The folder is created if missing.
func (s *Store) WriteDraft(d *timeline.Draft) (string, error) {
	dir := s.DraftDir(d.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create draft folder: %w", err)
	}

	doc := draftDoc{
		ID:       d.ID,
		Width:    d.Width,
		Height:   d.Height,
		FPS:      d.FPS,
		Duration: d.Duration().Seconds(),
	}
	for _, m := range d.Materials() {
		doc.Materials = append(doc.Materials, materialDoc{
			ID:       m.ID,
			Ref:      m.Ref,
			Kind:     string(m.Kind),
			Resolved: m.Resolved(),
			Duration: m.Duration.Seconds(),
			Width:    m.Width,
			Height:   m.Height,
		})
	}
	for _, t := range d.Tracks {
		td := trackDoc{
			Name:          t.Name,
			Kind:          string(t.Kind),
			RelativeIndex: t.RelativeIndex,
			Segments:      []segmentDoc{},
		}
		for _, seg := range t.Segments {
			sd := segmentDoc{
				ID:            seg.ID,
				Text:          seg.Text,
				SourceStart:   seg.SourceStart.Seconds(),
				SourceEnd:     seg.SourceEnd.Seconds(),
				TargetStart:   seg.TargetStart.Seconds(),
				Duration:      seg.Duration.Seconds(),
				Speed:         seg.Speed,
				RelativeIndex: seg.RelativeIndex,
				Style:         seg.Style,
			}
			if seg.Material != nil {
				sd.MaterialID = seg.Material.ID
			}
			for _, kf := range seg.Keyframes {
				sd.Keyframes = append(sd.Keyframes, keyframeDoc{
					Property: kf.Property,
					Time:     kf.Time.Seconds(),
					Value:    kf.Value,
				})
			}
			td.Segments = append(td.Segments, sd)
		}
		doc.Tracks = append(doc.Tracks, td)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize draft: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, draftInfoFile), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", draftInfoFile, err)
	}
	return dir, nil
}

// LoadDraft parses a draft folder's draft_info.json back into the model,
// registering it under newID.
func (s *Store) LoadDraft(dir, newID string) (*timeline.Draft, error) {
	data, err := os.ReadFile(filepath.Join(dir, draftInfoFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", draftInfoFile, err)
	}

	var doc draftDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", draftInfoFile, err)
	}

	d := timeline.NewDraft(newID, doc.Width, doc.Height)
	if doc.FPS > 0 {
		d.FPS = doc.FPS
	}

	byID := make(map[string]*timeline.Material, len(doc.Materials))
	for _, md := range doc.Materials {
		m := &timeline.Material{
			ID:       md.ID,
			Ref:      md.Ref,
			Kind:     timeline.MaterialKind(md.Kind),
			Duration: secondsToDuration(md.Duration),
			Width:    md.Width,
			Height:   md.Height,
		}
		if md.Resolved {
			m.State = timeline.MetadataResolved
		}
		d.RegisterMaterial(m)
		byID[m.ID] = m
	}

	for _, td := range doc.Tracks {
		track, err := d.EnsureTrack(td.Name, timeline.TrackKind(td.Kind))
		if err != nil {
			return nil, err
		}
		track.RelativeIndex = td.RelativeIndex
		for _, sd := range td.Segments {
			seg := &timeline.Segment{
				ID:            sd.ID,
				Text:          sd.Text,
				SourceStart:   secondsToDuration(sd.SourceStart),
				SourceEnd:     secondsToDuration(sd.SourceEnd),
				TargetStart:   secondsToDuration(sd.TargetStart),
				Duration:      secondsToDuration(sd.Duration),
				Speed:         sd.Speed,
				RelativeIndex: sd.RelativeIndex,
				Style:         sd.Style,
			}
			if seg.Speed == 0 {
				seg.Speed = 1.0
			}
			if sd.MaterialID != "" {
				m, ok := byID[sd.MaterialID]
				if !ok {
					return nil, fmt.Errorf("segment %s references unknown material %s", sd.ID, sd.MaterialID)
				}
				seg.Material = m
			}
			for _, kd := range sd.Keyframes {
				seg.Keyframes = append(seg.Keyframes, timeline.Keyframe{
					Property: kd.Property,
					Time:     secondsToDuration(kd.Time),
					Value:    kd.Value,
				})
			}
			track.Segments = append(track.Segments, seg)
		}
	}
	return d, nil
}

func secondsToDuration(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
