package language

import "strings"

// Tag identifies an utterance language.
type Tag string

const (
	English Tag = "en"
	Spanish Tag = "es"
)

// Default is the language assigned to a call before any utterance is seen.
const Default = English

// Complement returns the translation target for an utterance in t.
// The relay is two-sided: Spanish goes to English, everything else to Spanish.
func (t Tag) Complement() Tag {
	if t == Spanish {
		return English
	}
	return Spanish
}

// DisplayName is the language name used in translator instructions.
func (t Tag) DisplayName() string {
	switch t {
	case Spanish:
		return "Spanish"
	case English:
		return "English"
	default:
		return string(t)
	}
}

// ParseTag maps a free-form language value to a known tag.
func ParseTag(v string) (Tag, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "en", "eng", "english", "en-us", "en-gb":
		return English, true
	case "es", "spa", "spanish", "espanol", "español", "es-es", "es-mx", "es-us":
		return Spanish, true
	default:
		return "", false
	}
}
