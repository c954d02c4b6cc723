// Package probe resolves unknown media metadata (duration, pixel
// dimensions) by shelling out to ffprobe, with per-material retry and
// in-flight deduplication.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Metadata is the probed information for one media reference.
type Metadata struct {
	Duration time.Duration
	Width    int
	Height   int
}

// Prober obtains metadata for a media reference (URL or local path).
type Prober interface {
	Probe(ctx context.Context, ref string) (*Metadata, error)
}

// Error wraps a failed probe with the command context, truncated.
type Error struct {
	Ref     string
	Output  string
	wrapped error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe error for %s: %v\nOutput: %s", e.Ref, e.wrapped, e.Output)
}

func (e *Error) Unwrap() error { return e.wrapped }

func newProbeError(ref string, output []byte, err error) error {
	out := string(output)
	if len(out) > 500 {
		out = out[:500] + "..."
	}
	return &Error{Ref: ref, Output: out, wrapped: err}
}

// FFProbe runs the ffprobe binary.
type FFProbe struct{}

func NewFFProbe() *FFProbe { return &FFProbe{} }

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe once against ref. Duration prefers the first video
// stream's value and falls back to the container duration; dimensions come
// from the first video stream when one exists.
func (f *FFProbe) Probe(ctx context.Context, ref string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,duration",
		"-show_entries", "format=duration",
		"-of", "json",
		ref,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newProbeError(ref, output, err)
	}

	// ffprobe may prefix the JSON with warnings on some inputs.
	jsonStart := strings.Index(string(output), "{")
	if jsonStart < 0 {
		return nil, newProbeError(ref, output, fmt.Errorf("no JSON in ffprobe output"))
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output[jsonStart:], &parsed); err != nil {
		return nil, newProbeError(ref, output, fmt.Errorf("failed to parse ffprobe output: %w", err))
	}

	meta := &Metadata{}
	durationStr := parsed.Format.Duration
	for _, stream := range parsed.Streams {
		if stream.CodecType == "video" {
			meta.Width = stream.Width
			meta.Height = stream.Height
			if stream.Duration != "" {
				durationStr = stream.Duration
			}
			break
		}
	}
	if durationStr != "" {
		seconds, err := strconv.ParseFloat(durationStr, 64)
		if err != nil {
			return nil, newProbeError(ref, output, fmt.Errorf("bad duration %q: %w", durationStr, err))
		}
		meta.Duration = time.Duration(seconds * float64(time.Second))
	}
	return meta, nil
}
