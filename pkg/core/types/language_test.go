package types

import (
	"testing"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{"tamil", LanguageTamil, false},
		{"Tamil", LanguageTamil, false},
		{"ta", LanguageTamil, false},
		{"te", LanguageTelugu, false},
		{"kn", LanguageKannada, false},
		{"ml", LanguageMalayalam, false},
		{"en", LanguageEnglish, false},
		{"ENGLISH", LanguageEnglish, false},
		{"mixed", LanguageMixed, false},
		{"  telugu  ", LanguageTelugu, false},
		{"hindi", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLanguage(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLanguage(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLanguage(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMixTag(t *testing.T) {
	tests := []struct {
		primary   Language
		secondary Language
		want      string
	}{
		{LanguageTamil, LanguageEnglish, "ta-en"},
		{LanguageTelugu, LanguageEnglish, "te-en"},
		{LanguageEnglish, LanguageTamil, "en-ta"},
		{LanguageTamil, "", "ta"},
		{LanguageTamil, LanguageTamil, "ta"},
	}

	for _, tt := range tests {
		if got := MixTag(tt.primary, tt.secondary); got != tt.want {
			t.Errorf("MixTag(%v, %v) = %q, want %q", tt.primary, tt.secondary, got, tt.want)
		}
	}
}

func TestAnalysis_Tag(t *testing.T) {
	mixed := Analysis{
		Primary:    LanguageTamil,
		Secondary:  LanguageEnglish,
		CodeMixed:  true,
		Confidence: 0.9,
	}
	if got := mixed.Tag(); got != "ta-en" {
		t.Errorf("mixed Tag() = %q, want %q", got, "ta-en")
	}

	pure := Analysis{Primary: LanguageKannada, Confidence: 0.95}
	if got := pure.Tag(); got != "kn" {
		t.Errorf("pure Tag() = %q, want %q", got, "kn")
	}

	// A code-mixed flag without a distinct secondary still resolves to the
	// primary's own tag.
	odd := Analysis{Primary: LanguageTamil, Secondary: LanguageTamil, CodeMixed: true}
	if got := odd.Tag(); got != "ta" {
		t.Errorf("degenerate Tag() = %q, want %q", got, "ta")
	}
}

func TestProfile_Admits(t *testing.T) {
	p := LanguageProfile{
		Primary: LanguageTamil,
		Mix:     []Language{LanguageEnglish},
	}

	if !p.Admits(LanguageTamil) {
		t.Error("primary language must be admissible")
	}
	if !p.Admits(LanguageEnglish) {
		t.Error("English must always be admissible")
	}
	if p.Admits(LanguageTelugu) {
		t.Error("Telugu is outside this profile's mix set")
	}
}

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()
	if p.Primary != LanguageEnglish {
		t.Errorf("Primary = %v, want %v", p.Primary, LanguageEnglish)
	}
	for _, lang := range []Language{LanguageTamil, LanguageTelugu, LanguageKannada, LanguageMalayalam} {
		if !p.Admits(lang) {
			t.Errorf("default profile should admit %v", lang)
		}
	}
}
