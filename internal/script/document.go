// Package script parses declarative edit documents: a draft header, named
// asset references, shared defaults and an ordered list of operation steps.
package script

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrAmbiguousStep    = errors.New("ambiguous step: cannot tell operation name from parameters")
	ErrUnknownAsset     = errors.New("unknown asset reference")
	ErrUnknownOperation = errors.New("unknown operation")
)

// Document is a parsed edit script. All four sections are optional.
type Document struct {
	Draft    DraftSpec         `yaml:"draft,omitempty"`
	Assets   map[string]string `yaml:"assets,omitempty"`
	Defaults map[string]any    `yaml:"defaults,omitempty"`
	Steps    []Step            `yaml:"steps"`
}

// DraftSpec carries the canvas header of a script.
type DraftSpec struct {
	DraftID string `yaml:"draft_id,omitempty"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

// Step is one raw mapping from the steps list, before normalization.
type Step map[string]any

// Operation is a normalized step: a name plus a flat parameter map with
// defaults merged in and asset references substituted.
type Operation struct {
	Name   string
	Params map[string]any
}

// Parse decodes a YAML script document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return &doc, nil
}

// Normalize turns one step into a canonical operation. Two step syntaxes
// are accepted:
//
//	- add_video: {ref: ..., start: 0}     single-key form
//	- {op: add_video, ref: ..., start: 0} explicit form
//
// A step carrying an "op" key next to exactly one other mapping-valued key
// is rejected as ambiguous rather than silently picking one reading.
// Normalization happens per step at dispatch time, so a bad step only
// fails the run once every step before it has executed.
func (d *Document) Normalize(step Step) (Operation, error) {
	return d.normalize(step)
}

// Operations normalizes every step into an ordered operation list.
func (d *Document) Operations() ([]Operation, error) {
	ops := make([]Operation, 0, len(d.Steps))
	for i, step := range d.Steps {
		op, err := d.normalize(step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (d *Document) normalize(step Step) (Operation, error) {
	if len(step) == 0 {
		return Operation{}, errors.New("empty step")
	}

	if rawName, ok := step["op"]; ok {
		name, ok := rawName.(string)
		if !ok {
			return Operation{}, fmt.Errorf("op name must be a string, got %T", rawName)
		}
		if len(step) == 2 {
			for key, value := range step {
				if key == "op" {
					continue
				}
				if _, isMap := asMapping(value); isMap {
					return Operation{}, fmt.Errorf("%w: step has op %q and nested params under %q", ErrAmbiguousStep, name, key)
				}
			}
		}
		params := make(map[string]any, len(step)-1)
		for key, value := range step {
			if key != "op" {
				params[key] = value
			}
		}
		return d.finish(name, params)
	}

	if len(step) != 1 {
		return Operation{}, fmt.Errorf("step must be a single-key mapping or carry an op key, got %d keys", len(step))
	}
	for name, value := range step {
		if value == nil {
			return d.finish(name, map[string]any{})
		}
		params, ok := asMapping(value)
		if !ok {
			return Operation{}, fmt.Errorf("params of %q must be a mapping, got %T", name, value)
		}
		return d.finish(name, params)
	}
	return Operation{}, errors.New("unreachable")
}

// asMapping unwraps a nested step mapping. The YAML decoder reuses the
// named Step type for mappings nested inside a Step, so both shapes must
// be accepted.
func asMapping(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Step:
		return map[string]any(v), true
	}
	return nil, false
}

// finish layers the step params over the document defaults and substitutes
// asset references.
func (d *Document) finish(name string, params map[string]any) (Operation, error) {
	merged := make(map[string]any, len(d.Defaults)+len(params))
	for key, value := range d.Defaults {
		merged[key] = value
	}
	for key, value := range params {
		merged[key] = value
	}

	for key, value := range merged {
		s, ok := value.(string)
		if !ok {
			continue
		}
		resolved, err := d.substituteAsset(s)
		if err != nil {
			return Operation{}, err
		}
		merged[key] = resolved
	}
	return Operation{Name: name, Params: merged}, nil
}

const assetPrefix = "$assets."

func (d *Document) substituteAsset(s string) (string, error) {
	if !strings.HasPrefix(s, assetPrefix) {
		return s, nil
	}
	name := strings.TrimPrefix(s, assetPrefix)
	ref, ok := d.Assets[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, name)
	}
	return ref, nil
}
