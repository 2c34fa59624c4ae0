package translate

import (
	"strings"

	"github.com/harunnryd/stella/pkg/language"
)

const DefaultPersona = "Stella, a clinical phone interpreter"

// Instruction renders the system prompt for translating into target.
func Instruction(persona string, target language.Tag) string {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = DefaultPersona
	}
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(persona)
	b.WriteString(". Translate the user's message into ")
	b.WriteString(target.DisplayName())
	b.WriteString(" ONLY.\n")
	b.WriteString("- Be concise, neutral, and accurate.\n")
	b.WriteString("- Do not add commentary or greetings.\n")
	b.WriteString("- Output one clean sentence or short paragraphs as needed, no quotes.")
	return b.String()
}
