package language

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SpanishMarks are characters that only show up in Spanish text for the
// language pair this relay serves.
const SpanishMarks = "ñáéíóúü¡¿"

// SpanishLexicon is the stop-word, greeting and symptom vocabulary that
// marks an utterance as Spanish even when ASR dropped every accent.
var SpanishLexicon = []string{
	"yo", "usted", "hola",
	"buenos", "buenas",
	"gracias", "por favor",
	"señor", "señora", "señore",
	"niño", "niña",
	"dolor", "cabeza", "estómago",
	"hijo", "hija",
}

// Rule reports whether text belongs to its language.
type Rule interface {
	Tag() Tag
	Match(text string) bool
}

// DiacriticRule matches when text contains any of Chars, ignoring case.
type DiacriticRule struct {
	Lang  Tag
	Chars string
}

func (r DiacriticRule) Tag() Tag { return r.Lang }

func (r DiacriticRule) Match(text string) bool {
	return r.Chars != "" && strings.ContainsAny(strings.ToLower(text), r.Chars)
}

// LexiconRule matches when text contains one of its terms as a whole word.
type LexiconRule struct {
	lang Tag
	re   *regexp.Regexp
}

// NewLexiconRule compiles terms into a single case-insensitive word matcher.
func NewLexiconRule(lang Tag, terms []string) LexiconRule {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(norm.NFC.String(term)))
	}
	if len(quoted) == 0 {
		return LexiconRule{lang: lang}
	}
	return LexiconRule{
		lang: lang,
		re:   regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

func (r LexiconRule) Tag() Tag { return r.lang }

func (r LexiconRule) Match(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// Classifier assigns a language to an utterance. Rules are evaluated in
// order and the first match wins; without a match the fallback applies.
type Classifier struct {
	rules    []Rule
	fallback Tag
}

// NewClassifier builds a classifier over an explicit rule table.
func NewClassifier(fallback Tag, rules ...Rule) *Classifier {
	if fallback == "" {
		fallback = Default
	}
	return &Classifier{rules: rules, fallback: fallback}
}

// NewDefaultClassifier returns the en/es heuristic. extraTerms extend the
// Spanish lexicon.
func NewDefaultClassifier(extraTerms ...string) *Classifier {
	terms := make([]string, 0, len(SpanishLexicon)+len(extraTerms))
	terms = append(terms, SpanishLexicon...)
	terms = append(terms, extraTerms...)
	return NewClassifier(English,
		DiacriticRule{Lang: Spanish, Chars: SpanishMarks},
		NewLexiconRule(Spanish, terms),
	)
}

// Detect classifies text. It is pure: equal input yields equal output.
func (c *Classifier) Detect(text string) Tag {
	text = norm.NFC.String(text)
	for _, rule := range c.rules {
		if rule.Match(text) {
			return rule.Tag()
		}
	}
	return c.fallback
}

var defaultClassifier = NewDefaultClassifier()

// Detect classifies text with the default en/es rule table.
func Detect(text string) Tag {
	return defaultClassifier.Detect(text)
}
