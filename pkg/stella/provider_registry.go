package stella

import (
	"strings"
	"time"

	"github.com/harunnryd/stella/pkg/configutil"
	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/llm"
	"github.com/harunnryd/stella/pkg/providers/gemini"
	"github.com/harunnryd/stella/pkg/providers/mock"
	"github.com/harunnryd/stella/pkg/providers/openai"
	"github.com/harunnryd/stella/pkg/resilience"
)

// TranslatorFactory builds the model adapter behind the translation
// dispatcher from the translation section of the config.
type TranslatorFactory func(cfg TranslationConfig) (llm.LLMAdapter, error)

type ProviderRegistry struct {
	translators map[string]TranslatorFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{translators: make(map[string]TranslatorFactory)}
}

// DefaultProviderRegistry has openai, gemini and mock registered.
func DefaultProviderRegistry() *ProviderRegistry {
	reg := NewProviderRegistry()
	reg.RegisterTranslator("openai", buildOpenAI)
	reg.RegisterTranslator("gemini", buildGemini)
	reg.RegisterTranslator("mock", buildMock)
	return reg
}

func (r *ProviderRegistry) RegisterTranslator(name string, factory TranslatorFactory) {
	r.translators[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildTranslator(cfg TranslationConfig) (llm.LLMAdapter, error) {
	fn := r.translators[strings.ToLower(strings.TrimSpace(cfg.Provider))]
	if fn == nil {
		return nil, errorsx.Configf("translation provider not registered: %s", cfg.Provider)
	}
	return fn(cfg)
}

// CircuitSettings are shared by the remote translator providers.
type CircuitSettings struct {
	UseCircuitBreaker *bool `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int   `mapstructure:"circuit_threshold"`
	CircuitCooldownMs int   `mapstructure:"circuit_cooldown_ms"`
}

// Wrap puts adapter behind the rate-limit circuit breaker unless disabled.
func (s CircuitSettings) Wrap(adapter llm.LLMAdapter) llm.LLMAdapter {
	if !configutil.BoolValue(s.UseCircuitBreaker, true) {
		return adapter
	}
	threshold := s.CircuitThreshold
	if threshold == 0 {
		threshold = 3
	}
	cooldown := s.CircuitCooldownMs
	if cooldown == 0 {
		cooldown = 30000
	}
	breaker := resilience.NewCircuitBreaker(threshold, time.Duration(cooldown)*time.Millisecond)
	return llm.NewCircuitBreakerAdapter(adapter, breaker)
}

var breakerKeys = []string{"use_circuit_breaker", "circuit_threshold", "circuit_cooldown_ms"}

type openAISettings struct {
	APIKey          string `mapstructure:"api_key"`
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base_url"`
	CircuitSettings `mapstructure:",squash"`
}

func buildOpenAI(cfg TranslationConfig) (llm.LLMAdapter, error) {
	if err := configutil.ValidateSettings("translation.settings", cfg.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: append([]string{"model", "base_url"}, breakerKeys...),
	}); err != nil {
		return nil, err
	}
	var settings openAISettings
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(settings.APIKey, "translation.settings.api_key"); err != nil {
		return nil, err
	}
	adapter := openai.NewAdapter(settings.APIKey, settings.Model)
	if settings.BaseURL != "" {
		adapter.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	}
	return settings.Wrap(adapter), nil
}

type geminiSettings struct {
	APIKey          string `mapstructure:"api_key"`
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base_url"`
	CircuitSettings `mapstructure:",squash"`
}

func buildGemini(cfg TranslationConfig) (llm.LLMAdapter, error) {
	if err := configutil.ValidateSettings("translation.settings", cfg.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: append([]string{"model", "base_url"}, breakerKeys...),
	}); err != nil {
		return nil, err
	}
	var settings geminiSettings
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(settings.APIKey, "translation.settings.api_key"); err != nil {
		return nil, err
	}
	adapter := gemini.NewAdapter(settings.APIKey, settings.Model)
	adapter.BaseURL = settings.BaseURL
	return settings.Wrap(adapter), nil
}

type mockSettings struct {
	ResponseText string            `mapstructure:"response_text"`
	Responses    map[string]string `mapstructure:"responses"`
	Delay        time.Duration     `mapstructure:"delay"`
}

func buildMock(cfg TranslationConfig) (llm.LLMAdapter, error) {
	if err := configutil.ValidateSettings("translation.settings", cfg.Settings, configutil.Schema{
		// api_key may arrive from OPENAI_API_KEY and is ignored here.
		Optional: []string{"response_text", "responses", "delay", "api_key"},
	}); err != nil {
		return nil, err
	}
	var settings mockSettings
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, err
	}
	return mock.NewLLMAdapter(mock.LLMConfig{
		ResponseText: settings.ResponseText,
		Responses:    settings.Responses,
		Delay:        settings.Delay,
	}), nil
}
