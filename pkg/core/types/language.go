package types

import (
	"fmt"
	"strings"
)

// Language identifies one of the languages the assistant speaks.
type Language string

const (
	LanguageTamil     Language = "tamil"
	LanguageTelugu    Language = "telugu"
	LanguageKannada   Language = "kannada"
	LanguageMalayalam Language = "malayalam"
	LanguageEnglish   Language = "english"
	LanguageMixed     Language = "mixed"
)

// languageCodes maps each language to its short tag.
var languageCodes = map[Language]string{
	LanguageTamil:     "ta",
	LanguageTelugu:    "te",
	LanguageKannada:   "kn",
	LanguageMalayalam: "ml",
	LanguageEnglish:   "en",
	LanguageMixed:     "mixed",
}

var codeLanguages = map[string]Language{
	"ta": LanguageTamil,
	"te": LanguageTelugu,
	"kn": LanguageKannada,
	"ml": LanguageMalayalam,
	"en": LanguageEnglish,
}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	_, ok := languageCodes[l]
	return ok
}

// Code returns the short language tag ("ta", "te", "kn", "ml", "en").
func (l Language) Code() string {
	if c, ok := languageCodes[l]; ok {
		return c
	}
	return string(l)
}

func (l Language) String() string {
	return string(l)
}

// ParseLanguage accepts full names ("tamil", "Tamil") and short tags ("ta").
func ParseLanguage(s string) (Language, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("empty language")
	}
	if lang, ok := codeLanguages[s]; ok {
		return lang, nil
	}
	lang := Language(s)
	if lang.Valid() {
		return lang, nil
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// MixTag returns the tag for a code-mixed pair, e.g. "ta-en" for Tamil
// mixed with English. A missing or equal secondary collapses to the
// primary's own tag.
func MixTag(primary, secondary Language) string {
	if secondary == "" || secondary == primary {
		return primary.Code()
	}
	return primary.Code() + "-" + secondary.Code()
}

// Analysis is the outcome of language detection on one utterance.
type Analysis struct {
	Primary    Language `json:"primary_language"`
	Secondary  Language `json:"secondary_language,omitempty"`
	Confidence float64  `json:"confidence"`
	CodeMixed  bool     `json:"is_code_mixed"`
	MixRatio   float64  `json:"mix_ratio,omitempty"` // fraction of words in the secondary language
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Tag returns the language tag this analysis assigns to the utterance:
// "ta-en" when code-mixed with a known secondary, the primary's tag
// otherwise.
func (a Analysis) Tag() string {
	if a.CodeMixed && a.Secondary != "" && a.Secondary != a.Primary {
		return MixTag(a.Primary, a.Secondary)
	}
	return a.Primary.Code()
}

// LanguageProfile tracks the session's working language. Only detection
// results mutate it, and only through the orchestrator's hysteresis gate.
type LanguageProfile struct {
	Primary Language   `json:"primary"`
	Mix     []Language `json:"mix,omitempty"` // languages admissible in code-mixed replies
	Voice   string     `json:"voice,omitempty"`
}

// DefaultProfile returns the starting profile: English primary with the
// four South Indian languages admissible for mixing.
func DefaultProfile() LanguageProfile {
	return LanguageProfile{
		Primary: LanguageEnglish,
		Mix: []Language{
			LanguageTamil,
			LanguageTelugu,
			LanguageKannada,
			LanguageMalayalam,
		},
	}
}

// Admits reports whether lang may appear mixed into replies under this
// profile. The primary language and English are always admissible.
func (p LanguageProfile) Admits(lang Language) bool {
	if lang == p.Primary || lang == LanguageEnglish || lang == LanguageMixed {
		return true
	}
	for _, m := range p.Mix {
		if m == lang {
			return true
		}
	}
	return false
}
