package feedback

import (
	"strings"
	"time"
)

// Default scoring constants. Tiers are monotonic in responsiveness: the
// faster the follow-up, the better the synthesis is assumed to have landed.
const (
	// DefaultAbandonThreshold is how long a pending record may wait for a
	// follow-up before it counts as abandoned.
	DefaultAbandonThreshold = 600 * time.Second

	qualityFast     = 0.9 // follow-up under 30s
	qualityModerate = 0.7 // follow-up under 120s
	qualitySlow     = 0.5 // follow-up under the abandonment threshold
	qualityAbandon  = 0.1

	correctionPenalty = 0.2
	correctionFloor   = 0.3

	ackBonus = 0.1
)

const (
	tierFast     = 30 * time.Second
	tierModerate = 120 * time.Second
)

// DefaultCorrectionMarkers is the default lexicon for detecting that a
// follow-up contradicts the previous response.
func DefaultCorrectionMarkers() []string {
	return []string{
		"actually",
		"no,",
		"that's not",
		"incorrect",
		"correction",
		"wrong",
		"not true",
		"should be",
	}
}

// DefaultAckMarkers is the default lexicon for positive acknowledgements.
func DefaultAckMarkers() []string {
	return []string{
		"thanks",
		"thank you",
		"got it",
		"great",
		"perfect",
		"that works",
		"awesome",
		"nice",
	}
}

// Scoring derives synthesis quality from continuation timing and content.
type Scoring struct {
	correctionMarkers []string
	ackMarkers        []string
}

// NewScoring builds a Scoring with the given lexicons; empty slices fall
// back to the defaults.
func NewScoring(correctionMarkers, ackMarkers []string) Scoring {
	if len(correctionMarkers) == 0 {
		correctionMarkers = DefaultCorrectionMarkers()
	}
	if len(ackMarkers) == 0 {
		ackMarkers = DefaultAckMarkers()
	}
	return Scoring{correctionMarkers: correctionMarkers, ackMarkers: ackMarkers}
}

// IsCorrection reports whether the follow-up content matches the correction
// lexicon.
func (s Scoring) IsCorrection(content string) bool {
	return containsAny(content, s.correctionMarkers)
}

// IsAcknowledgement reports whether the follow-up content matches the
// positive-acknowledgement lexicon.
func (s Scoring) IsAcknowledgement(content string) bool {
	return containsAny(content, s.ackMarkers)
}

// Quality computes the synthesis quality for a continued response:
// time tiers (<30s: 0.9, <120s: 0.7, otherwise 0.5), minus the correction
// penalty floored at 0.3, plus the acknowledgement bonus capped at 1.0.
// Callers route elapsed times past the abandonment threshold to the
// abandoned path instead.
func (s Scoring) Quality(elapsed time.Duration, content string) (quality float64, corrected bool) {
	corrected = s.IsCorrection(content)

	switch {
	case elapsed < tierFast:
		quality = qualityFast
	case elapsed < tierModerate:
		quality = qualityModerate
	default:
		quality = qualitySlow
	}

	if corrected {
		quality -= correctionPenalty
		if quality < correctionFloor {
			quality = correctionFloor
		}
	}
	if s.IsAcknowledgement(content) {
		quality += ackBonus
		if quality > 1.0 {
			quality = 1.0
		}
	}
	return quality, corrected
}

func containsAny(content string, markers []string) bool {
	lc := strings.ToLower(content)
	for _, m := range markers {
		if strings.Contains(lc, m) {
			return true
		}
	}
	return false
}
