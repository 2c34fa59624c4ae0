package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/language"
	"github.com/harunnryd/stella/pkg/llm"
	"github.com/harunnryd/stella/pkg/normalize"
	"github.com/harunnryd/stella/pkg/resilience"
)

const (
	DefaultTimeout     = 8 * time.Second
	DefaultTemperature = 0.2
)

type Request struct {
	CallID string
	Text   string
	Source language.Tag
}

type Result struct {
	Input    string
	Output   string
	Source   language.Tag
	Target   language.Tag
	Provider string
	Duration time.Duration
}

type Config struct {
	Persona     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.Persona) == "" {
		c.Persona = DefaultPersona
	}
	return c
}

// Dispatcher turns one utterance into its translation in the opposite
// language. It never retries.
type Dispatcher struct {
	adapter    llm.LLMAdapter
	normalizer *normalize.Normalizer
	cfg        Config
}

func NewDispatcher(adapter llm.LLMAdapter, normalizer *normalize.Normalizer, cfg Config) *Dispatcher {
	if normalizer == nil {
		normalizer = normalize.NewSpanish()
	}
	return &Dispatcher{adapter: adapter, normalizer: normalizer, cfg: cfg.withDefaults()}
}

func (d *Dispatcher) Provider() string {
	if d.adapter == nil {
		return ""
	}
	return d.adapter.Name()
}

// Translate sends the utterance to the translator under the configured
// timeout. Every failure matches errorsx.ErrTranslationFailure.
func (d *Dispatcher) Translate(ctx context.Context, req Request) (Result, error) {
	source := req.Source
	if source == "" {
		source = language.Default
	}
	target := source.Complement()
	input := d.normalizer.Apply(source, req.Text)
	res := Result{Input: input, Source: source, Target: target, Provider: d.Provider()}

	if d.adapter == nil {
		return res, errorsx.Classify(errorsx.ErrTranslationFailure, errors.New("no translator configured"), errorsx.ReasonTranslationFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.adapter.Generate(ctx, llm.Context{
		System:      Instruction(d.cfg.Persona, target),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: input}},
		Temperature: d.cfg.Temperature,
		MaxTokens:   d.cfg.MaxTokens,
	})
	res.Duration = time.Since(start)
	if err != nil {
		return res, classify(ctx, err)
	}
	res.Output = strings.TrimSpace(resp.Text)
	if res.Output == "" {
		return res, errorsx.Classify(errorsx.ErrTranslationFailure, errors.New("empty translation"), errorsx.ReasonTranslationEmpty)
	}
	return res, nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		if !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return errorsx.Classify(errorsx.ErrTranslationFailure, err, errorsx.ReasonTranslationTimeout)
	case resilience.IsCircuitOpen(err):
		return errorsx.Classify(errorsx.ErrTranslationFailure, err, errorsx.ReasonTranslationCircuitOpen)
	case resilience.IsRateLimit(err):
		return errorsx.Classify(errorsx.ErrTranslationFailure, err, errorsx.ReasonTranslationRateLimit)
	default:
		return errorsx.Classify(errorsx.ErrTranslationFailure, err, errorsx.ReasonTranslationFailure)
	}
}
