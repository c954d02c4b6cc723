package engine

import (
	"fmt"

	"github.com/jaki95/draft-builder/config"
)

// Built-in name tables, used when the configuration supplies none. The
// consuming editor rejects names outside its own tables, so validating
// here turns a late editor-side failure into an immediate typed error.
var (
	defaultFonts = []string{
		"default", "sans", "serif", "mono", "handwriting", "bold_impact",
	}
	defaultEffects = []string{
		"blur", "glitch", "glow", "vhs", "film_grain", "zoom_pulse", "shake",
	}
	defaultTransitions = []string{
		"fade", "dissolve", "wipe_left", "wipe_right", "slide_up", "zoom_in",
	}
	defaultMasks = []string{
		"circle", "rectangle", "heart", "star", "linear", "mirror",
	}
)

type capabilitySet struct {
	fonts       map[string]bool
	effects     map[string]bool
	transitions map[string]bool
	masks       map[string]bool
}

func newCapabilitySet(cfg config.CapabilitiesConfig) capabilitySet {
	return capabilitySet{
		fonts:       nameTable(cfg.Fonts, defaultFonts),
		effects:     nameTable(cfg.Effects, defaultEffects),
		transitions: nameTable(cfg.Transitions, defaultTransitions),
		masks:       nameTable(cfg.Masks, defaultMasks),
	}
}

func nameTable(configured, fallback []string) map[string]bool {
	names := configured
	if len(names) == 0 {
		names = fallback
	}
	table := make(map[string]bool, len(names))
	for _, n := range names {
		table[n] = true
	}
	return table
}

func validateName(table map[string]bool, category, name string) error {
	if name == "" {
		return nil
	}
	if !table[name] {
		return fmt.Errorf("%w: %s %q", ErrUnknownName, category, name)
	}
	return nil
}
