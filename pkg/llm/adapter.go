package llm

import "context"

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string
	Content string
}

// Context is one completion request. System carries the instruction;
// Messages carry the conversation turns after it.
type Context struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// UserText returns the concatenated content of the user messages.
func (c Context) UserText() string {
	out := ""
	for _, m := range c.Messages {
		if m.Role != RoleUser {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Model        string
	Usage        Usage
	FinishReason string
}

type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}
