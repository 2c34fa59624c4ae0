package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/stella/pkg/llm"
)

// LLMAdapter is a scripted translator for tests and offline runs. It
// records every input it receives.
type LLMAdapter struct {
	cfg LLMConfig

	mu    sync.Mutex
	calls []llm.Context
}

type LLMConfig struct {
	ResponseText string
	// Responses, when set, maps user text to a canned reply.
	Responses map[string]string
	Err       error
	Delay     time.Duration
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" && len(cfg.Responses) == 0 {
		cfg.ResponseText = "mock translation"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	a.calls = append(a.calls, input)
	a.mu.Unlock()

	if a.cfg.Delay > 0 {
		timer := time.NewTimer(a.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	text := a.cfg.ResponseText
	if reply, ok := a.cfg.Responses[input.UserText()]; ok {
		text = reply
	}
	return llm.Response{Text: text, Model: "mock", FinishReason: "stop"}, nil
}

// Calls returns a copy of the recorded inputs.
func (a *LLMAdapter) Calls() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Context, len(a.calls))
	copy(out, a.calls)
	return out
}
