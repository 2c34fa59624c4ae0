package stella

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Signature   SignatureConfig   `mapstructure:"signature"`
	Translation TranslationConfig `mapstructure:"translation"`
	Sessions    SessionsConfig    `mapstructure:"sessions"`
	Languages   LanguageConfig    `mapstructure:"languages"`
	Normalizer  NormalizerConfig  `mapstructure:"normalizer"`
	Events      EventsConfig      `mapstructure:"events"`
	Privacy     PrivacyConfig     `mapstructure:"privacy"`
	Environment string            `mapstructure:"environment"`
	LogLevel    string            `mapstructure:"log_level"`
	LogFormat   string            `mapstructure:"log_format"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Addr         string        `mapstructure:"addr"`
	PublicURL    string        `mapstructure:"public_url"`
	WebhookPath  string        `mapstructure:"webhook_path"`
	MetricsPath  string        `mapstructure:"metrics_path"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// ListenAddr returns Addr when set, otherwise ":<port>".
func (c ServerConfig) ListenAddr() string {
	if strings.TrimSpace(c.Addr) != "" {
		return c.Addr
	}
	return fmt.Sprintf(":%d", c.Port)
}

type SignatureConfig struct {
	Scheme string `mapstructure:"scheme"`
	Header string `mapstructure:"header"`
	Secret string `mapstructure:"secret"`
	// TwilioAuthToken is used when Scheme is "twilio".
	TwilioAuthToken string `mapstructure:"twilio_auth_token"`
}

type TranslationConfig struct {
	Provider     string         `mapstructure:"provider"`
	Settings     map[string]any `mapstructure:"settings"`
	Persona      string         `mapstructure:"persona"`
	Temperature  float64        `mapstructure:"temperature"`
	MaxTokens    int            `mapstructure:"max_tokens"`
	Timeout      time.Duration  `mapstructure:"timeout"`
	Retries      int            `mapstructure:"retries"`
	RetryBackoff time.Duration  `mapstructure:"retry_backoff"`
	FallbackText string         `mapstructure:"fallback_text"`
}

type SessionsConfig struct {
	Backend       string        `mapstructure:"backend"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type LanguageConfig struct {
	// SpanishTerms extend the built-in Spanish lexicon.
	SpanishTerms []string `mapstructure:"spanish_terms"`
}

type NormalizerRule struct {
	From []string `mapstructure:"from"`
	To   string   `mapstructure:"to"`
}

type NormalizerConfig struct {
	Rules []NormalizerRule `mapstructure:"rules"`
}

type EventsConfig struct {
	Buffer   int            `mapstructure:"buffer"`
	Feed     FeedConfig     `mapstructure:"feed"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	JSONL    JSONLConfig    `mapstructure:"jsonl"`
	Timeline TimelineConfig `mapstructure:"timeline"`
}

type FeedConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Path           string   `mapstructure:"path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SampleRate     float64  `mapstructure:"sample_rate"`
}

type AMQPConfig struct {
	URL              string `mapstructure:"url"`
	Exchange         string `mapstructure:"exchange"`
	ExchangeType     string `mapstructure:"exchange_type"`
	RoutingKeyPrefix string `mapstructure:"routing_key_prefix"`
	DialRetries      int    `mapstructure:"dial_retries"`
}

type JSONLConfig struct {
	Path string `mapstructure:"path"`
}

type TimelineConfig struct {
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
	// LogPreview caps utterance text in logs, in runes. Zero omits text.
	LogPreview int `mapstructure:"log_preview"`
}

// envBindings maps process environment variables onto config keys.
var envBindings = map[string]string{
	"server.port":                  "PORT",
	"signature.secret":             "WILDIX_SHARED_SECRET",
	"signature.twilio_auth_token":  "TWILIO_AUTH_TOKEN",
	"translation.settings.api_key": "OPENAI_API_KEY",
	"sessions.redis.url":           "REDIS_URL",
	"events.amqp.url":              "AMQP_URL",
	"log_level":                    "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.webhook_path", "/wildix/webhook")
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.drain_timeout", 15*time.Second)
	v.SetDefault("signature.scheme", "hmac")
	v.SetDefault("signature.header", "x-signature")
	v.SetDefault("translation.provider", "openai")
	v.SetDefault("translation.temperature", 0.2)
	v.SetDefault("translation.timeout", 8*time.Second)
	v.SetDefault("translation.retries", 0)
	v.SetDefault("translation.retry_backoff", 200*time.Millisecond)
	v.SetDefault("translation.fallback_text", "One moment please.")
	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("sessions.idle_ttl", 2*time.Hour)
	v.SetDefault("sessions.sweep_interval", time.Minute)
	v.SetDefault("sessions.redis.key_prefix", "stella:session:")
	v.SetDefault("sessions.redis.ttl", 2*time.Hour)
	v.SetDefault("events.buffer", 2048)
	v.SetDefault("events.feed.enabled", true)
	v.SetDefault("events.feed.path", "/ws/feed")
	v.SetDefault("events.feed.sample_rate", 1.0)
	v.SetDefault("events.timeline.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("privacy.log_preview", 0)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// LoadConfig reads an optional YAML file at path, overlays environment
// variables, expands ${VAR} references and validates the result.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, errorsx.Configf("bind %s: %v", env, err)
		}
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Configf("read config: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Configf("unmarshal: %v", err)
	}
	// Bound env keys under a free-form map are only visible through Get.
	if key := v.GetString("translation.settings.api_key"); key != "" {
		if cfg.Translation.Settings == nil {
			cfg.Translation.Settings = map[string]any{}
		}
		if _, ok := cfg.Translation.Settings["api_key"]; !ok {
			cfg.Translation.Settings["api_key"] = key
		}
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every deployment needs. Provider-specific
// settings are validated when the translator is built.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		if strings.TrimSpace(c.Server.Addr) == "" {
			errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("server.webhook_path must start with /"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Signature.Scheme)) {
	case "hmac", "":
		if strings.TrimSpace(c.Signature.Secret) == "" {
			errs = append(errs, fmt.Errorf("signature.secret is required (WILDIX_SHARED_SECRET)"))
		}
	case "twilio":
		if strings.TrimSpace(c.Signature.TwilioAuthToken) == "" {
			errs = append(errs, fmt.Errorf("signature.twilio_auth_token is required for the twilio scheme"))
		}
	default:
		errs = append(errs, fmt.Errorf("signature.scheme must be one of [hmac, twilio], got %s", c.Signature.Scheme))
	}

	if strings.TrimSpace(c.Translation.Provider) == "" {
		errs = append(errs, fmt.Errorf("translation.provider is required"))
	}
	if c.Translation.Temperature < 0 || c.Translation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("translation.temperature must be between 0 and 2, got %g", c.Translation.Temperature))
	}
	if c.Translation.Retries < 0 {
		errs = append(errs, fmt.Errorf("translation.retries must not be negative"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Sessions.Backend)) {
	case "memory", "":
	case "redis":
		if strings.TrimSpace(c.Sessions.Redis.URL) == "" {
			errs = append(errs, fmt.Errorf("sessions.redis.url is required for the redis backend (REDIS_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("sessions.backend must be one of [memory, redis], got %s", c.Sessions.Backend))
	}

	if c.Events.Feed.Enabled && !strings.HasPrefix(c.Events.Feed.Path, "/") {
		errs = append(errs, fmt.Errorf("events.feed.path must start with /"))
	}
	if c.Events.Feed.SampleRate < 0 || c.Events.Feed.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("events.feed.sample_rate must be between 0 and 1"))
	}
	for i, rule := range c.Normalizer.Rules {
		if len(rule.From) == 0 || strings.TrimSpace(rule.To) == "" {
			errs = append(errs, fmt.Errorf("normalizer.rules[%d] needs from and to", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errorsx.Configf("validate config: %w", errors.Join(errs...))
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Translation.Settings = expandSettings(cfg.Translation.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
