package models

import (
	"strings"
)

// Tier names a transcription model size class.
type Tier string

const (
	TierTiny   Tier = "tiny"
	TierBase   Tier = "base"
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

var allTiers = []Tier{TierTiny, TierBase, TierSmall, TierMedium, TierLarge}

// approxSizes are used for disk admission when the server omits Content-Length.
var approxSizes = map[Tier]int64{
	TierTiny:   78 * 1024 * 1024,
	TierBase:   148 * 1024 * 1024,
	TierSmall:  488 * 1024 * 1024,
	TierMedium: 1533 * 1024 * 1024,
	TierLarge:  3095 * 1024 * 1024,
}

// AllTiers returns every tier from smallest to largest.
func AllTiers() []Tier {
	out := make([]Tier, len(allTiers))
	copy(out, allTiers)
	return out
}

// ParseTier converts a string into a known Tier.
func ParseTier(value string) (Tier, bool) {
	tier := Tier(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range allTiers {
		if tier == known {
			return tier, true
		}
	}
	return "", false
}

// Weight orders tiers by size; unknown tiers weigh -1.
func (t Tier) Weight() int {
	for i, known := range allTiers {
		if t == known {
			return i
		}
	}
	return -1
}

// FileName is the on-disk artifact name for the tier.
func (t Tier) FileName() string {
	if t == TierLarge {
		return "ggml-large-v3.bin"
	}
	return "ggml-" + string(t) + ".bin"
}

func (t Tier) String() string { return string(t) }
