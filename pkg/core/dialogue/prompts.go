package dialogue

import (
	"fmt"
	"strings"

	"github.com/vaani-ai/vaani/pkg/core/types"
)

// culturalContext grounds replies in the user's region.
type culturalContext struct {
	Greeting string
	Culture  string
	Food     string
}

var culturalContexts = map[types.Language]culturalContext{
	types.LanguageTamil: {
		Greeting: "Vanakkam",
		Culture:  "Tamil Nadu culture, Chennai references, Tamil cinema",
		Food:     "dosa, idli, sambar, rasam, Tamil cuisine",
	},
	types.LanguageTelugu: {
		Greeting: "Namaskaram",
		Culture:  "Andhra/Telangana culture, Hyderabad references, Tollywood",
		Food:     "biryani, pesarattu, gongura, Telugu cuisine",
	},
	types.LanguageKannada: {
		Greeting: "Namaskara",
		Culture:  "Karnataka culture, Bangalore references, Sandalwood",
		Food:     "masala dosa, mysore pak, Kannada cuisine",
	},
	types.LanguageMalayalam: {
		Greeting: "Namaskaram",
		Culture:  "Kerala culture, backwaters, Malayalam cinema",
		Food:     "appam, fish curry, coconut, Kerala cuisine",
	},
}

// apologies is spoken when an utterance could not be transcribed, in the
// session's working language.
var apologies = map[types.Language]string{
	types.LanguageTamil:     "Mannikkavum, enakku sariyaa kekkala. Konjam thirumba sollunga?",
	types.LanguageTelugu:    "Kshaminchandi, naaku sariga vinipinchaledu. Malli cheppandi?",
	types.LanguageKannada:   "Kshamisi, nanage sariyagi kelisalilla. Innomme heli?",
	types.LanguageMalayalam: "Kshamikkanam, enikku sariyayi kettilla. Onnu koodi parayamo?",
	types.LanguageEnglish:   "Sorry, I couldn't catch that. Could you say it again?",
}

// FallbackReply is spoken when reply generation fails entirely.
const FallbackReply = "Sorry, I'm having trouble right now. Please try again!"

// Apology returns the can't-hear-you line for the given language.
func Apology(lang types.Language) string {
	if a, ok := apologies[lang]; ok {
		return a
	}
	return apologies[types.LanguageEnglish]
}

// Greeting returns the session opener. The first exchange is anchored in
// English so speakers of any of the supported languages can answer, with
// the regional greeting up front when the profile already leans that way.
func Greeting(lang types.Language) string {
	if cc, ok := culturalContexts[lang]; ok {
		return fmt.Sprintf("%s! I'm your voice assistant. We can talk in Tamil, Telugu, Kannada, Malayalam or English. How are you?", cc.Greeting)
	}
	return "Hello! I'm your voice assistant. We can talk in Tamil, Telugu, Kannada, Malayalam or English. How are you?"
}

// systemPrompt builds the reply-generation system prompt for the current
// profile and the latest utterance's language analysis.
func systemPrompt(profile types.LanguageProfile, analysis types.Analysis) string {
	var b strings.Builder

	b.WriteString("You are a friendly South Indian voice assistant.\n\n")
	fmt.Fprintf(&b, "Current conversation language: %s\n", profile.Primary)

	if cc, ok := culturalContexts[profile.Primary]; ok {
		fmt.Fprintf(&b, "Greeting style: %s\n", cc.Greeting)
		fmt.Fprintf(&b, "Cultural context: %s\n", cc.Culture)
		fmt.Fprintf(&b, "Food references: %s\n", cc.Food)
	}

	b.WriteString("\nRULES:\n")
	b.WriteString("1. This is a spoken conversation. Keep replies under 20 words, one or two short sentences.\n")
	b.WriteString("2. Never use emojis, markdown or lists.\n")
	b.WriteString("3. Be warm and casual, like a friend from the same city.\n")

	if analysis.CodeMixed || profile.Primary != types.LanguageEnglish {
		b.WriteString("4. The user code-mixes with English. Reply the same way: ")
		b.WriteString("mix naturally, always in romanized (English) script, and match roughly the user's ratio of ")
		fmt.Fprintf(&b, "%s to English.\n", profile.Primary)
		b.WriteString("   Example tone: \"Vanakkam! How are you? Naan nalla irukken da!\"\n")
	} else {
		b.WriteString("4. Reply in simple conversational English.\n")
	}

	return b.String()
}

// enhanceSystemPrompt asks the model to rewrite a reply for the speech
// synthesizer without changing its meaning or language mix.
func enhanceSystemPrompt(profile types.LanguageProfile) string {
	var b strings.Builder
	b.WriteString("You prepare text for a speech synthesizer.\n")
	b.WriteString("Rewrite the given reply so it sounds natural when spoken aloud:\n")
	fmt.Fprintf(&b, "- Keep the %s-English code-mixing exactly as it is. Do not translate.\n", profile.Primary)
	b.WriteString("- Keep romanized script. Adjust spellings only where it helps pronunciation.\n")
	b.WriteString("- Do not add or remove content. Output only the rewritten text.\n")
	return b.String()
}
