// Package keyframe validates, queues and bakes property-animation edits.
// Edits are buffered on the draft as raw strings and only parsed and
// attached to segments during the bake pass that runs at save time.
package keyframe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnsupportedProperty = errors.New("unsupported keyframe property")
	ErrArity               = errors.New("batch keyframe lists must have equal lengths")
	ErrValueOutOfRange     = errors.New("keyframe value out of range")
)

// propertyKind selects the value grammar for a property.
type propertyKind int

const (
	kindScalar  propertyKind = iota // bare numeric, range [-10, 10]
	kindRotation                    // degrees, optional "deg" suffix
	kindPercent                     // [0,1] or trailing "%"
	kindDelta                       // signed delta string or bare numeric
)

// The closed set of animatable properties.
var properties = map[string]propertyKind{
	"position_x":    kindScalar,
	"position_y":    kindScalar,
	"rotation":      kindRotation,
	"scale_x":       kindScalar,
	"scale_y":       kindScalar,
	"uniform_scale": kindScalar,
	"alpha":         kindPercent,
	"saturation":    kindDelta,
	"contrast":      kindDelta,
	"brightness":    kindDelta,
	"volume":        kindPercent,
}

// ValidateProperty checks a property name against the closed set.
func ValidateProperty(name string) error {
	if _, ok := properties[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedProperty, name)
	}
	return nil
}

// ParseValue parses a raw keyframe value according to its property's
// grammar.
func ParseValue(property, raw string) (float64, error) {
	kind, ok := properties[property]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProperty, property)
	}
	raw = strings.TrimSpace(raw)

	switch kind {
	case kindRotation:
		raw = strings.TrimSuffix(raw, "deg")
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid rotation value %q: %w", raw, err)
		}
		return v, nil

	case kindPercent:
		var v float64
		var err error
		if strings.HasSuffix(raw, "%") {
			v, err = strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
			v /= 100
		} else {
			v, err = strconv.ParseFloat(raw, 64)
		}
		if err != nil {
			return 0, fmt.Errorf("invalid value %q for %s: %w", raw, property, err)
		}
		if v < 0 || v > 1 {
			return 0, fmt.Errorf("%w: %s must be within [0, 1], got %v", ErrValueOutOfRange, property, v)
		}
		return v, nil

	case kindDelta:
		// Signed-delta strings like "+0.5" / "-0.5" parse directly; the
		// sign is the delta direction.
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid delta value %q for %s: %w", raw, property, err)
		}
		return v, nil

	default: // kindScalar
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q for %s: %w", raw, property, err)
		}
		// Values beyond the visible [-1, 1] working range are allowed and
		// simply position content off-canvas.
		if v < -10 || v > 10 {
			return 0, fmt.Errorf("%w: %s must be within [-10, 10], got %v", ErrValueOutOfRange, property, v)
		}
		return v, nil
	}
}

func secondsToDuration(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
