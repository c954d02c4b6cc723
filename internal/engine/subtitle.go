package engine

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jaki95/draft-builder/internal/timeline"
)

type subtitleParams struct {
	draftParams `yaml:",inline"`
	SRT         string  `yaml:"srt"`
	Path        string  `yaml:"path"`
	TrackName   string  `yaml:"track_name"`
	Offset      float64 `yaml:"offset"`
	Font        string  `yaml:"font"`
	FontSize    float64 `yaml:"font_size"`
}

// addSubtitle turns an SRT document, inline or from a file, into one text
// segment per cue on a subtitle track.
func (e *Engine) addSubtitle(params map[string]any) (Result, error) {
	var p subtitleParams
	if err := decodeParams(params, &p); err != nil {
		return Result{}, err
	}
	if p.SRT == "" && p.Path == "" {
		return Result{}, fmt.Errorf("%w: add_subtitle requires srt content or a path", ErrInvalidParams)
	}
	if err := validateName(e.capabilities.fonts, "font", p.Font); err != nil {
		return Result{}, err
	}

	content := p.SRT
	if content == "" {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read subtitle file: %w", err)
		}
		content = string(data)
	}

	cues, err := parseSRT(content)
	if err != nil {
		return Result{}, err
	}
	if len(cues) == 0 {
		return Result{}, fmt.Errorf("%w: subtitle document contains no cues", ErrInvalidParams)
	}

	id, d := e.target(p.draftParams)
	track := p.TrackName
	if track == "" {
		track = "subtitle"
	}

	var last *timeline.Segment
	for _, cue := range cues {
		seg := e.textSegment(cue.text, cue.start+p.Offset, cue.end+p.Offset)
		if p.Font != "" {
			seg.Style["font"] = p.Font
		}
		if p.FontSize != 0 {
			seg.Style["font_size"] = p.FontSize
		}
		if err := d.AddSegment(track, timeline.TrackText, seg, e.overlapPolicy); err != nil {
			return Result{}, err
		}
		last = seg
	}
	return Result{DraftID: id, TrackName: track, SegmentID: last.ID}, nil
}

type srtCue struct {
	start float64
	end   float64
	text  string
}

// parseSRT reads the blank-line separated cue blocks of an SRT document.
// The numeric cue index line is optional.
func parseSRT(content string) ([]srtCue, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var cues []srtCue
	for _, block := range strings.Split(content, "\n\n") {
		lines := []string{}
		for _, line := range strings.Split(block, "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, strings.TrimSpace(line))
			}
		}
		if len(lines) == 0 {
			continue
		}
		if _, err := strconv.Atoi(lines[0]); err == nil {
			lines = lines[1:]
		}
		if len(lines) < 2 || !strings.Contains(lines[0], "-->") {
			return nil, fmt.Errorf("%w: malformed subtitle cue %q", ErrInvalidParams, block)
		}

		parts := strings.SplitN(lines[0], "-->", 2)
		start, err := parseSRTTime(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		end, err := parseSRTTime(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, fmt.Errorf("%w: subtitle cue ends before it starts: %q", ErrInvalidParams, lines[0])
		}
		cues = append(cues, srtCue{start: start, end: end, text: strings.Join(lines[1:], "\n")})
	}
	return cues, nil
}

// parseSRTTime reads "HH:MM:SS,mmm" (or with a dot) into seconds.
func parseSRTTime(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: invalid subtitle timestamp %q", ErrInvalidParams, s)
	}
	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("%w: invalid subtitle timestamp %q", ErrInvalidParams, s)
	}
	return float64(hours*3600+minutes*60) + seconds, nil
}
