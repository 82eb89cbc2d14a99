package dialogue

import (
	"github.com/vaani-ai/vaani/pkg/core/types"
)

const (
	// DefaultSwitchThreshold is how many consecutive user turns must
	// arrive in a new language before the profile follows.
	DefaultSwitchThreshold = 2

	// defaultMinConfidence gates profile mutation on detection quality.
	// The detection-failure fallback sits at 0.5 and so can never switch.
	defaultMinConfidence = 0.6
)

// Switcher applies hysteresis to language detection so the session's
// working language is stable: one stray utterance, a low-confidence
// classification or a few borrowed words never flip the profile.
type Switcher struct {
	threshold     int
	minConfidence float64
	candidate     types.Language
	streak        int
}

// NewSwitcher creates a switcher requiring threshold consecutive turns.
func NewSwitcher(threshold int) *Switcher {
	if threshold < 1 {
		threshold = DefaultSwitchThreshold
	}
	return &Switcher{
		threshold:     threshold,
		minConfidence: defaultMinConfidence,
	}
}

// Observe feeds one user-turn analysis and returns the primary language
// the profile should use, plus whether that is a switch.
//
// Rules: a turn whose detected primary matches the current language
// resets any pending streak. A turn in a different language starts or
// extends a streak for that language. Low-confidence or indeterminate
// ("mixed") turns are neutral, holding the streak without extending it.
// Code-mixed turns count for whichever language carries the grammar, so
// isolated loanwords in an otherwise same-language sentence never move
// the streak.
func (s *Switcher) Observe(current types.Language, a types.Analysis) (types.Language, bool) {
	if a.Confidence < s.minConfidence || a.Primary == types.LanguageMixed || !a.Primary.Valid() {
		return current, false
	}

	if a.Primary == current {
		s.candidate = ""
		s.streak = 0
		return current, false
	}

	if a.Primary != s.candidate {
		s.candidate = a.Primary
		s.streak = 1
	} else {
		s.streak++
	}

	if s.streak >= s.threshold {
		switched := s.candidate
		s.candidate = ""
		s.streak = 0
		return switched, true
	}
	return current, false
}

// Reset clears any pending streak.
func (s *Switcher) Reset() {
	s.candidate = ""
	s.streak = 0
}
