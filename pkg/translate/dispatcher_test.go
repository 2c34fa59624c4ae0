package translate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/language"
	"github.com/harunnryd/stella/pkg/providers/mock"
	"github.com/harunnryd/stella/pkg/resilience"
)

func TestTranslateSpanishNormalizesAndTargetsEnglish(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{ResponseText: "  My son has a headache.\n"})
	d := NewDispatcher(adapter, nil, Config{})

	res, err := d.Translate(context.Background(), Request{CallID: "c1", Text: "mio tiene dolor de hedga", Source: language.Spanish})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if res.Output != "My son has a headache." {
		t.Fatalf("expected trimmed output, got %q", res.Output)
	}
	if res.Target != language.English || res.Source != language.Spanish {
		t.Fatalf("unexpected direction %s->%s", res.Source, res.Target)
	}

	calls := adapter.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	if got := calls[0].UserText(); got != "mi hijo tiene dolor de cabeza" {
		t.Fatalf("expected normalized input, got %q", got)
	}
	if !strings.Contains(calls[0].System, "into English ONLY") {
		t.Fatalf("expected English instruction, got %q", calls[0].System)
	}
	if calls[0].Temperature != DefaultTemperature {
		t.Fatalf("expected default temperature, got %v", calls[0].Temperature)
	}
}

func TestTranslateEnglishSkipsNormalizer(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{ResponseText: "Hola"})
	d := NewDispatcher(adapter, nil, Config{})

	res, err := d.Translate(context.Background(), Request{Text: "mia is here", Source: language.English})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if res.Target != language.Spanish {
		t.Fatalf("expected es target, got %s", res.Target)
	}
	if got := adapter.Calls()[0].UserText(); got != "mia is here" {
		t.Fatalf("expected raw input for english, got %q", got)
	}
	if !strings.Contains(adapter.Calls()[0].System, "into Spanish ONLY") {
		t.Fatalf("expected Spanish instruction")
	}
}

func TestTranslateTimeout(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Delay: time.Second})
	d := NewDispatcher(adapter, nil, Config{Timeout: 10 * time.Millisecond})

	_, err := d.Translate(context.Background(), Request{Text: "hello", Source: language.English})
	if !errors.Is(err, errorsx.ErrTranslationFailure) {
		t.Fatalf("expected translation failure, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonTranslationTimeout) {
		t.Fatalf("expected timeout reason, got %s", errorsx.Reason(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in chain")
	}
}

func TestTranslateEmptyOutputFails(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Responses: map[string]string{"hello": "   "}})
	d := NewDispatcher(adapter, nil, Config{})

	_, err := d.Translate(context.Background(), Request{Text: "hello", Source: language.English})
	if !errors.Is(err, errorsx.ErrTranslationFailure) || !errorsx.HasReason(err, errorsx.ReasonTranslationEmpty) {
		t.Fatalf("expected empty translation failure, got %v (%s)", err, errorsx.Reason(err))
	}
}

func TestTranslateClassifiesProviderErrors(t *testing.T) {
	cases := []struct {
		err    error
		reason errorsx.ReasonCode
	}{
		{resilience.RateLimitError{Provider: "openai"}, errorsx.ReasonTranslationRateLimit},
		{resilience.CircuitOpenError{Provider: "openai"}, errorsx.ReasonTranslationCircuitOpen},
		{errors.New("boom"), errorsx.ReasonTranslationFailure},
	}
	for _, tc := range cases {
		d := NewDispatcher(mock.NewLLMAdapter(mock.LLMConfig{Err: tc.err}), nil, Config{})
		_, err := d.Translate(context.Background(), Request{Text: "hello", Source: language.English})
		if !errors.Is(err, errorsx.ErrTranslationFailure) {
			t.Fatalf("expected translation failure for %v, got %v", tc.err, err)
		}
		if got := errorsx.Reason(err); got != tc.reason {
			t.Fatalf("expected reason %s for %v, got %s", tc.reason, tc.err, got)
		}
	}
}

func TestTranslateWithoutAdapter(t *testing.T) {
	d := NewDispatcher(nil, nil, Config{})
	if _, err := d.Translate(context.Background(), Request{Text: "hello"}); !errors.Is(err, errorsx.ErrTranslationFailure) {
		t.Fatalf("expected failure without adapter, got %v", err)
	}
}

func TestInstructionPersona(t *testing.T) {
	got := Instruction("", language.English)
	if !strings.HasPrefix(got, "You are Stella, a clinical phone interpreter.") {
		t.Fatalf("unexpected default persona: %q", got)
	}
	if !strings.Contains(got, "Do not add commentary or greetings") || !strings.Contains(got, "no quotes") {
		t.Fatalf("missing constraints in %q", got)
	}
	custom := Instruction("Ana, a pharmacy interpreter", language.Spanish)
	if !strings.HasPrefix(custom, "You are Ana, a pharmacy interpreter. Translate the user's message into Spanish ONLY.") {
		t.Fatalf("unexpected custom persona: %q", custom)
	}
}
