package timeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSegmentOverlap    = errors.New("segment overlaps with existing segment")
	ErrTrackKindMismatch = errors.New("track exists with a different kind")
	ErrTrackNotFound     = errors.New("track not found")
)

// OverlapError carries the details of a target-interval collision.
type OverlapError struct {
	TrackName string
	New       *Segment
	Existing  *Segment
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf(
		"segment [%s - %s) overlaps with existing segment [%s - %s) on track %q",
		fmtSec(e.New.TargetStart), fmtSec(e.New.TargetEnd()),
		fmtSec(e.Existing.TargetStart), fmtSec(e.Existing.TargetEnd()),
		e.TrackName,
	)
}

func (e *OverlapError) Unwrap() error { return ErrSegmentOverlap }

func fmtSec(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
