package timeline

import (
	"fmt"
	"log/slog"
	"time"
)

// OverlapPolicy names the configured behavior for target-interval
// collisions on a track.
type OverlapPolicy string

const (
	// OverlapReject fails the add that would collide.
	OverlapReject OverlapPolicy = "reject"
	// OverlapReplace evicts the previously admitted conflicting segments
	// and admits the newcomer.
	OverlapReplace OverlapPolicy = "replace"
)

// ParseOverlapPolicy validates a configured policy name.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(s) {
	case OverlapReject, OverlapReplace:
		return OverlapPolicy(s), nil
	case "":
		return OverlapReject, nil
	}
	return "", fmt.Errorf("unknown overlap policy %q", s)
}

// AddSegment places seg on the named track, creating the track lazily.
// Collisions are handled per policy. Effect and sticker tracks admit a
// single segment, so reusing a populated track name collides regardless of
// the intervals.
func (d *Draft) AddSegment(trackName string, kind TrackKind, seg *Segment, policy OverlapPolicy) error {
	track, err := d.EnsureTrack(trackName, kind)
	if err != nil {
		return err
	}

	var conflicts []*Segment
	for _, existing := range track.Segments {
		if kind.exclusive() || seg.OverlapsTarget(existing) {
			conflicts = append(conflicts, existing)
		}
	}

	if len(conflicts) > 0 {
		if policy == OverlapReject {
			return &OverlapError{TrackName: trackName, New: seg, Existing: conflicts[0]}
		}
		slog.Warn("replacing conflicting segments",
			"track", trackName, "evicted", len(conflicts), "segment", seg.ID)
		track.Segments = removeSegments(track.Segments, conflicts)
	}

	track.Segments = append(track.Segments, seg)
	return nil
}

// ResolveOverlaps re-validates every track after metadata backfill, when a
// segment's true interval may only just have become known. Under the reject
// policy the first violation is returned as an error; under replace, later
// inserted segments lose to earlier ones deterministically and the dropped
// segments are returned for reporting. After a nil-error return no track
// contains an overlap.
func (d *Draft) ResolveOverlaps(policy OverlapPolicy) ([]*Segment, error) {
	var dropped []*Segment
	for _, track := range d.Tracks {
		removed := make(map[*Segment]bool)
		for i := 0; i < len(track.Segments); i++ {
			a := track.Segments[i]
			if removed[a] {
				continue
			}
			for j := i + 1; j < len(track.Segments); j++ {
				b := track.Segments[j]
				if removed[b] || !a.OverlapsTarget(b) {
					continue
				}
				if policy == OverlapReject {
					return dropped, &OverlapError{TrackName: track.Name, New: b, Existing: a}
				}
				slog.Warn("dropping later-added overlapping segment",
					"track", track.Name, "kept", a.ID, "dropped", b.ID)
				removed[b] = true
				dropped = append(dropped, b)
			}
		}
		if len(removed) > 0 {
			kept := track.Segments[:0]
			for _, s := range track.Segments {
				if !removed[s] {
					kept = append(kept, s)
				}
			}
			track.Segments = kept
		}
	}
	return dropped, nil
}

// BackfillDurations propagates freshly resolved material metadata into
// segment timing: a source window that is unset or runs past the material's
// true duration is clamped to it, and the target duration is recomputed
// through the segment's speed. Returns a warning per segment whose window
// collapses to nothing.
func (d *Draft) BackfillDurations() []string {
	var warnings []string
	for _, track := range d.Tracks {
		for _, seg := range track.Segments {
			m := seg.Material
			if m == nil || !m.Resolved() || m.Duration <= 0 {
				continue
			}
			if seg.SourceEnd > 0 && seg.SourceEnd <= m.Duration {
				continue
			}
			sourceDuration := m.Duration - seg.SourceStart
			if sourceDuration <= 0 {
				warnings = append(warnings, fmt.Sprintf(
					"segment %s: source start %s exceeds material duration %s",
					seg.ID, fmtSec(seg.SourceStart), fmtSec(m.Duration)))
				continue
			}
			seg.SourceEnd = m.Duration
			speed := seg.Speed
			if speed <= 0 {
				speed = 1.0
			}
			seg.Duration = time.Duration(float64(sourceDuration) / speed)
		}
	}
	return warnings
}

// ValidateDurations flags segments that would be unplayable: a segment
// whose duration is still non-positive at save time, typically because its
// material's probe failed.
func (d *Draft) ValidateDurations() []string {
	var warnings []string
	for _, track := range d.Tracks {
		for _, seg := range track.Segments {
			if seg.Duration <= 0 {
				warnings = append(warnings, fmt.Sprintf(
					"segment %s on track %q has non-positive duration", seg.ID, track.Name))
			}
		}
	}
	return warnings
}

func removeSegments(segments []*Segment, toRemove []*Segment) []*Segment {
	drop := make(map[*Segment]bool, len(toRemove))
	for _, s := range toRemove {
		drop[s] = true
	}
	kept := segments[:0]
	for _, s := range segments {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	return kept
}
