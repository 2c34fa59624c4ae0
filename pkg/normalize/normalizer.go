package normalize

import (
	"regexp"
	"strings"

	"github.com/harunnryd/stella/pkg/language"
)

// Rule rewrites every whole-word, case-insensitive match of any From
// variant into To.
type Rule struct {
	From []string
	To   string
}

// SpanishRules are the known ASR mistranscriptions, in application order.
var SpanishRules = []Rule{
	{From: []string{"mio", "mi o", "miyo"}, To: "mi hijo"},
	{From: []string{"mia", "mi a", "mija"}, To: "mi hija"},
	{From: []string{"mami", "mamy"}, To: "mamá"},
	{From: []string{"papi", "papy"}, To: "papá"},
	{From: []string{"tienne", "tienee"}, To: "tiene"},
	{From: []string{"hedga"}, To: "cabeza"},
}

type compiledRule struct {
	re *regexp.Regexp
	to string
}

// Normalizer applies an ordered rule list to utterances of one language.
type Normalizer struct {
	lang  language.Tag
	rules []compiledRule
}

// New compiles rules for lang. Rules run independently and in order, each
// one scanning the output of the previous.
func New(lang language.Tag, rules []Rule) *Normalizer {
	n := &Normalizer{lang: lang}
	for _, r := range rules {
		alts := make([]string, 0, len(r.From))
		for _, from := range r.From {
			from = strings.TrimSpace(from)
			if from == "" {
				continue
			}
			alts = append(alts, `\b`+regexp.QuoteMeta(from)+`\b`)
		}
		if len(alts) == 0 {
			continue
		}
		n.rules = append(n.rules, compiledRule{
			re: regexp.MustCompile(`(?i)` + strings.Join(alts, "|")),
			to: r.To,
		})
	}
	return n
}

// NewSpanish returns the Spanish normalizer with extra rules appended after
// the fixed list.
func NewSpanish(extra ...Rule) *Normalizer {
	rules := make([]Rule, 0, len(SpanishRules)+len(extra))
	rules = append(rules, SpanishRules...)
	rules = append(rules, extra...)
	return New(language.Spanish, rules)
}

// Apply rewrites text when tag matches the normalizer language and returns
// it untouched otherwise.
func (n *Normalizer) Apply(tag language.Tag, text string) string {
	if n == nil || tag != n.lang {
		return text
	}
	for _, r := range n.rules {
		text = r.re.ReplaceAllLiteralString(text, r.to)
	}
	return text
}

var spanish = NewSpanish()

// Spanish corrects known Spanish ASR mistakes with the fixed rule list.
func Spanish(text string) string {
	return spanish.Apply(language.Spanish, text)
}
