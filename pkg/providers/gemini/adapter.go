package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/harunnryd/stella/pkg/llm"
	"github.com/harunnryd/stella/pkg/resilience"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

// Adapter translates through the Gemini API. The SDK client is created
// lazily on first use.
type Adapter struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewAdapter(apiKey, model string) *Adapter {
	if model == "" {
		model = DefaultModel
	}
	return &Adapter{APIKey: apiKey, Model: model}
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	client, err := a.sdk(ctx)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := client.Models.GenerateContent(ctx, a.Model, genai.Text(input.UserText()), generateConfig(input))
	if err != nil {
		return llm.Response{}, mapError(err)
	}
	return fromResponse(resp), nil
}

func (a *Adapter) sdk(ctx context.Context) (*genai.Client, error) {
	a.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     a.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: a.HTTPClient,
		}
		if a.BaseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: a.BaseURL}
		}
		a.client, a.initErr = genai.NewClient(ctx, cfg)
	})
	if a.initErr != nil {
		return nil, fmt.Errorf("gemini: client: %w", a.initErr)
	}
	return a.client, nil
}

func generateConfig(input llm.Context) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(input.Temperature)),
	}
	if input.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(input.System, genai.RoleUser)
	}
	if input.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(input.MaxTokens)
	}
	return cfg
}

func fromResponse(resp *genai.GenerateContentResponse) llm.Response {
	if resp == nil {
		return llm.Response{}
	}
	out := llm.Response{Text: resp.Text(), Model: resp.ModelVersion}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "gemini", Message: apiErr.Message}
	}
	return fmt.Errorf("gemini: %w", err)
}
