package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaki95/draft-builder/internal/script"
	"github.com/jaki95/draft-builder/internal/timeline"
)

// ExportScript rebuilds a script document from a cached draft, one step
// per segment in track order. Running the exported document against a
// fresh engine reproduces the draft's timeline.
func (e *Engine) ExportScript(draftID string) (*script.Document, error) {
	d, err := e.cache.Get(draftID)
	if err != nil {
		return nil, err
	}

	doc := &script.Document{
		Draft: script.DraftSpec{DraftID: draftID, Width: d.Width, Height: d.Height},
	}
	for _, track := range d.Tracks {
		for _, seg := range track.Segments {
			step := exportStep(track, seg)
			if step == nil {
				slog.Warn("skipping unexportable segment", "track", track.Name, "segment_id", seg.ID)
				continue
			}
			doc.Steps = append(doc.Steps, step)
		}
	}
	return doc, nil
}

func exportStep(track *timeline.Track, seg *timeline.Segment) script.Step {
	params := map[string]any{"track_name": track.Name}
	for key, value := range seg.Style {
		params[key] = value
	}

	switch track.Kind {
	case timeline.TrackVideo, timeline.TrackAudio:
		if seg.Material == nil {
			return nil
		}
		params["ref"] = seg.Material.Ref
		params["start"] = seg.SourceStart.Seconds()
		if seg.SourceEnd > 0 {
			params["end"] = seg.SourceEnd.Seconds()
		}
		params["target_start"] = seg.TargetStart.Seconds()
		if seg.Speed != 1.0 {
			params["speed"] = seg.Speed
		}
		if seg.RelativeIndex != 0 {
			params["relative_index"] = seg.RelativeIndex
		}
		name := "add_video"
		switch {
		case seg.Material.Kind == timeline.MaterialImage:
			name = "add_image"
			if seg.Duration > 0 {
				params["duration"] = seg.Duration.Seconds()
			}
		case track.Kind == timeline.TrackAudio:
			name = "add_audio"
		}
		return script.Step{name: params}

	case timeline.TrackText:
		if seg.Text == "" {
			return nil
		}
		params["text"] = seg.Text
		params["start"] = seg.TargetStart.Seconds()
		params["end"] = seg.TargetEnd().Seconds()
		return script.Step{"add_text": params}

	case timeline.TrackEffect:
		params["start"] = seg.TargetStart.Seconds()
		params["end"] = seg.TargetEnd().Seconds()
		return script.Step{"add_effect": params}

	case timeline.TrackSticker:
		params["start"] = seg.TargetStart.Seconds()
		params["end"] = seg.TargetEnd().Seconds()
		return script.Step{"add_sticker": params}
	}
	return nil
}

// Summarize renders a short human-readable description of a cached draft.
func (e *Engine) Summarize(draftID string) (string, error) {
	d, err := e.cache.Get(draftID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Draft %s: %dx%d, %.1fs, %d track(s)\n",
		draftID, d.Width, d.Height, d.Duration().Seconds(), len(d.Tracks))
	for _, track := range d.Tracks {
		fmt.Fprintf(&b, "  [%s] %s: %d segment(s)\n", track.Kind, track.Name, len(track.Segments))
		for _, seg := range track.Segments {
			label := seg.Text
			if label == "" && seg.Material != nil {
				label = seg.Material.Ref
			}
			fmt.Fprintf(&b, "    %.1fs-%.1fs %s\n",
				seg.TargetStart.Seconds(), seg.TargetEnd().Seconds(), label)
		}
	}
	return b.String(), nil
}
