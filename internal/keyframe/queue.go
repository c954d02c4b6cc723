package keyframe

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jaki95/draft-builder/internal/timeline"
)

// Enqueue validates the property name and buffers one pending keyframe on
// the draft. The raw value is parsed later, at bake time.
func Enqueue(d *timeline.Draft, trackName, property string, at float64, rawValue string) error {
	if err := ValidateProperty(property); err != nil {
		return err
	}
	d.PendingKeyframes = append(d.PendingKeyframes, timeline.PendingKeyframe{
		TrackName: trackName,
		Property:  property,
		Time:      secondsToDuration(at),
		RawValue:  rawValue,
	})
	return nil
}

// EnqueueBatch buffers one keyframe per (property, time, value) triple.
// The three lists must have equal lengths; nothing is queued on a
// mismatch.
func EnqueueBatch(d *timeline.Draft, trackName string, propertyTypes []string, times []float64, values []string) error {
	if len(propertyTypes) != len(times) || len(times) != len(values) {
		return fmt.Errorf("%w: got %d types, %d times, %d values",
			ErrArity, len(propertyTypes), len(times), len(values))
	}
	for _, p := range propertyTypes {
		if err := ValidateProperty(p); err != nil {
			return err
		}
	}
	for i := range propertyTypes {
		d.PendingKeyframes = append(d.PendingKeyframes, timeline.PendingKeyframe{
			TrackName: trackName,
			Property:  propertyTypes[i],
			Time:      secondsToDuration(times[i]),
			RawValue:  values[i],
		})
	}
	return nil
}

// BakeFailure records a single pending keyframe that failed to parse.
type BakeFailure struct {
	TrackName string
	Property  string
	Time      time.Duration
	RawValue  string
	Err       error
}

func (f BakeFailure) String() string {
	return fmt.Sprintf("keyframe %s@%s on track %q (%q): %v",
		f.Property, f.Time, f.TrackName, f.RawValue, f.Err)
}

// Bake applies every queued keyframe to the first segment of its named
// track, then drains the queue. A keyframe that fails to parse or targets
// a missing/empty track is skipped and recorded; the rest of the batch
// still bakes. Applied keyframes end up ordered by time ascending per
// property, ties keeping enqueue order.
func Bake(d *timeline.Draft) []BakeFailure {
	var failures []BakeFailure
	touched := make(map[*timeline.Segment]bool)

	for _, pending := range d.PendingKeyframes {
		track := d.Track(pending.TrackName)
		if track == nil || len(track.Segments) == 0 {
			failures = append(failures, BakeFailure{
				TrackName: pending.TrackName,
				Property:  pending.Property,
				Time:      pending.Time,
				RawValue:  pending.RawValue,
				Err:       fmt.Errorf("%w: no segment on track %q", timeline.ErrTrackNotFound, pending.TrackName),
			})
			continue
		}

		value, err := ParseValue(pending.Property, pending.RawValue)
		if err != nil {
			slog.Warn("skipping unparseable keyframe",
				"track", pending.TrackName, "property", pending.Property, "value", pending.RawValue, "error", err)
			failures = append(failures, BakeFailure{
				TrackName: pending.TrackName,
				Property:  pending.Property,
				Time:      pending.Time,
				RawValue:  pending.RawValue,
				Err:       err,
			})
			continue
		}

		// Keyframes attach to the first segment in insertion order, not
		// the one covering the timestamp.
		seg := track.Segments[0]
		seg.Keyframes = append(seg.Keyframes, timeline.Keyframe{
			Property: pending.Property,
			Time:     pending.Time,
			Value:    value,
		})
		touched[seg] = true
	}

	for seg := range touched {
		kfs := seg.Keyframes
		sort.SliceStable(kfs, func(i, j int) bool {
			if kfs[i].Property != kfs[j].Property {
				return kfs[i].Property < kfs[j].Property
			}
			return kfs[i].Time < kfs[j].Time
		})
	}

	d.PendingKeyframes = nil
	return failures
}
