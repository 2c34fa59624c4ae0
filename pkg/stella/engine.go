package stella

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/feed"
	"github.com/harunnryd/stella/pkg/language"
	"github.com/harunnryd/stella/pkg/logging"
	"github.com/harunnryd/stella/pkg/messaging"
	"github.com/harunnryd/stella/pkg/metrics"
	"github.com/harunnryd/stella/pkg/normalize"
	"github.com/harunnryd/stella/pkg/observers"
	"github.com/harunnryd/stella/pkg/redact"
	"github.com/harunnryd/stella/pkg/relay"
	"github.com/harunnryd/stella/pkg/runner"
	"github.com/harunnryd/stella/pkg/session"
	"github.com/harunnryd/stella/pkg/signature"
	"github.com/harunnryd/stella/pkg/translate"
	"github.com/harunnryd/stella/pkg/transports"
	"github.com/harunnryd/stella/pkg/transports/wildix"
	"github.com/redis/go-redis/v9"
)

const retentionInterval = time.Hour

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	// Store overrides the configured session backend.
	Store  session.Store
	Logger *slog.Logger
}

// Engine wires the relay: signed webhook transport, router, session store,
// translator and the event sinks.
type Engine struct {
	cfg       Config
	log       *slog.Logger
	store     session.Store
	memory    *session.MemoryStore
	redis     redis.UniversalClient
	router    *relay.Router
	transport *wildix.Transport
	provider  string

	events    *observers.MultiObserver
	prom      *metrics.PrometheusObserver
	sinks     *metrics.AsyncObserver
	hub       *feed.Hub
	publisher *messaging.Publisher
	jsonl     *metrics.JSONLObserver
	timeline  *observers.TimelineObserver

	runner *runner.LifecycleRunner
	bg     sync.WaitGroup
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	e := &Engine{cfg: cfg, log: log}

	if err := e.buildStore(opts.Store); err != nil {
		return nil, err
	}

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviderRegistry()
	}
	adapter, err := providers.BuildTranslator(cfg.Translation)
	if err != nil {
		_ = e.closeStore()
		return nil, err
	}
	e.provider = adapter.Name()

	rules := make([]normalize.Rule, 0, len(cfg.Normalizer.Rules))
	for _, r := range cfg.Normalizer.Rules {
		rules = append(rules, normalize.Rule{From: r.From, To: r.To})
	}
	dispatcher := translate.NewDispatcher(adapter, normalize.NewSpanish(rules...), translate.Config{
		Persona:     cfg.Translation.Persona,
		Temperature: cfg.Translation.Temperature,
		MaxTokens:   cfg.Translation.MaxTokens,
		Timeout:     cfg.Translation.Timeout,
	})

	e.router = relay.NewRouter(e.store, language.NewDefaultClassifier(cfg.Languages.SpanishTerms...), dispatcher, relay.Config{
		FallbackText: cfg.Translation.FallbackText,
		Retries:      cfg.Translation.Retries,
		RetryBackoff: cfg.Translation.RetryBackoff,
		LogPreview:   cfg.Privacy.LogPreview,
	})
	e.router.SetLogger(logging.NewComponentLogger(log, "router"))

	e.transport = wildix.New(wildix.Config{
		ServerAddr:   cfg.Server.ListenAddr(),
		PublicURL:    cfg.Server.PublicURL,
		WebhookPath:  cfg.Server.WebhookPath,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, buildVerifier(cfg), e.router)
	e.transport.SetLogger(logging.NewComponentLogger(log, "transport"))

	if err := e.buildObservers(); err != nil {
		_ = e.closeStore()
		return nil, err
	}
	e.router.SetObserver(e.events)
	e.transport.SetObserver(e.events)
	if obs, ok := adapter.(interface{ SetObserver(metrics.Observer) }); ok {
		obs.SetObserver(e.events)
	}

	e.runner = runner.NewLifecycleRunner(runner.DrainFunc(e.transport.Stop), runner.Hooks{
		OnStart: e.start,
		OnStop:  e.stop,
	}, cfg.Server.DrainTimeout)

	log.Info("stella_init",
		"environment", cfg.Environment,
		"translation_provider", e.provider,
		"session_backend", e.backend(),
		"signature_scheme", cfg.Signature.Scheme,
	)
	return e, nil
}

func (e *Engine) buildStore(override session.Store) error {
	if override != nil {
		e.store = override
		if m, ok := override.(*session.MemoryStore); ok {
			e.memory = m
		}
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(e.cfg.Sessions.Backend)) {
	case "redis":
		opts, err := redis.ParseURL(e.cfg.Sessions.Redis.URL)
		if err != nil {
			return errorsx.Configf("sessions.redis.url: %v", err)
		}
		e.redis = redis.NewClient(opts)
		e.store = session.NewRedisStore(e.redis, e.cfg.Sessions.Redis.KeyPrefix, e.cfg.Sessions.Redis.TTL)
	default:
		e.memory = session.NewMemoryStore(e.cfg.Sessions.IdleTTL)
		e.store = e.memory
	}
	return nil
}

func buildVerifier(cfg Config) signature.Verifier {
	switch strings.ToLower(strings.TrimSpace(cfg.Signature.Scheme)) {
	case "twilio":
		return &signature.TwilioVerifier{AuthToken: cfg.Signature.TwilioAuthToken, PublicURL: cfg.Server.PublicURL}
	default:
		v := signature.NewHMACVerifier(cfg.Signature.Secret)
		if h := strings.TrimSpace(cfg.Signature.Header); h != "" {
			v.Header = h
		}
		return v
	}
}

// buildObservers assembles the event bus. The logger and Prometheus run
// inline; network and file sinks sit behind one AsyncObserver.
func (e *Engine) buildObservers() error {
	cfg := e.cfg
	var activeSessions func() float64
	if counter, ok := e.store.(session.Counter); ok {
		activeSessions = func() float64 { return float64(counter.Len()) }
	}
	e.prom = metrics.NewPrometheusObserver("stella", activeSessions)
	e.events = observers.NewMultiObserver(
		observers.NewLoggerObserver(logging.NewComponentLogger(e.log, "events")),
		e.prom,
	)
	if path := strings.TrimSpace(cfg.Server.MetricsPath); path != "" {
		e.transport.Handle(path, e.prom.Handler())
	}

	var sinks []metrics.Observer
	if cfg.Events.Feed.Enabled {
		e.hub = feed.NewHub(cfg.Events.Feed.AllowedOrigins, logging.NewComponentLogger(e.log, "feed"))
		e.transport.Handle(cfg.Events.Feed.Path, e.hub)
		sinks = append(sinks, metrics.NewSamplingObserver(e.hub, cfg.Events.Feed.SampleRate,
			metrics.EventCallStart, metrics.EventCallEnd, metrics.EventCallExpired, metrics.EventTranslationFailed))
	}
	if url := strings.TrimSpace(cfg.Events.AMQP.URL); url != "" {
		e.publisher = messaging.NewPublisher(messaging.Config{
			URL:          url,
			Exchange:     cfg.Events.AMQP.Exchange,
			ExchangeType: cfg.Events.AMQP.ExchangeType,
			RoutingKey:   cfg.Events.AMQP.RoutingKeyPrefix,
			DialRetries:  cfg.Events.AMQP.DialRetries,
		}, logging.NewComponentLogger(e.log, "amqp"))
		sinks = append(sinks, e.publisher)
	}
	if path := strings.TrimSpace(cfg.Events.JSONL.Path); path != "" {
		jsonl, err := metrics.OpenJSONLFile(path)
		if err != nil {
			return errorsx.Configf("events.jsonl.path: %v", err)
		}
		e.jsonl = jsonl
		sinks = append(sinks, jsonl)
	}
	if dir := strings.TrimSpace(cfg.Events.Timeline.Dir); dir != "" {
		e.timeline = observers.NewTimelineObserver(dir)
		sinks = append(sinks, e.timeline)
	}
	if len(sinks) > 0 {
		buffer := cfg.Events.Buffer
		if buffer <= 0 {
			buffer = 2048
		}
		e.sinks = metrics.NewAsyncObserver(observers.NewMultiObserver(sinks...), buffer)
		e.events.Add(e.sinks)
	}
	return nil
}

// Run blocks until ctx is cancelled or Stop is called, then drains
// in-flight webhooks and closes the sinks.
func (e *Engine) Run(ctx context.Context) error {
	return e.runner.Run(ctx)
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

func (e *Engine) start(ctx context.Context) error {
	if e.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := e.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return errorsx.Wrap(fmt.Errorf("redis ping: %w", err), errorsx.ReasonSessionStore)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Connect(ctx); err != nil {
			// Publish reconnects on demand.
			e.log.Warn("amqp_unavailable", "reason_code", string(errorsx.Reason(err)), "error", err.Error())
		}
	}
	if e.memory != nil && e.memory.IdleTTL > 0 {
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			e.memory.Run(ctx, e.cfg.Sessions.SweepInterval, e.expired)
		}()
	}
	if e.timeline != nil && e.cfg.Events.Timeline.RetentionDays > 0 {
		dir := e.cfg.Events.Timeline.Dir
		maxAge := time.Duration(e.cfg.Events.Timeline.RetentionDays) * 24 * time.Hour
		if _, err := observers.PurgeTimelines(dir, maxAge, time.Now()); err != nil {
			e.log.Warn("timeline_purge_failed", "dir", dir, "error", err.Error())
		}
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			observers.RunRetention(ctx, dir, maxAge, retentionInterval, e.log)
		}()
	}
	if err := e.transport.Start(ctx); err != nil {
		return err
	}

	fields := []any{"translation_provider", e.provider, "session_backend", e.backend()}
	for k, v := range e.transport.ReadyFields() {
		fields = append(fields, k, v)
	}
	e.log.Info("stella_ready", fields...)
	return nil
}

func (e *Engine) stop(context.Context) error {
	e.bg.Wait()
	var errs []error
	if e.sinks != nil {
		e.sinks.Close()
		e.sinks.Wait()
		if n := e.sinks.Dropped(); n > 0 {
			e.log.Warn("events_dropped", "count", n)
		}
	}
	if e.hub != nil {
		e.hub.Close()
	}
	if e.publisher != nil {
		errs = append(errs, e.publisher.Close())
	}
	if e.jsonl != nil {
		errs = append(errs, e.jsonl.Close())
	}
	if e.timeline != nil {
		errs = append(errs, e.timeline.Close())
	}
	active := -1
	if counter, ok := e.store.(session.Counter); ok {
		active = counter.Len()
	}
	errs = append(errs, e.closeStore())
	e.log.Info("shutdown", "goroutines", runtime.NumGoroutine(), "active_sessions", active)
	return errors.Join(errs...)
}

func (e *Engine) closeStore() error {
	if e.redis == nil {
		return nil
	}
	return e.redis.Close()
}

func (e *Engine) expired(callID string) {
	e.log.Info("session_expired", "call_id", callID, "idle_ttl", e.cfg.Sessions.IdleTTL.String())
	e.events.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventCallExpired,
		Time: time.Now(),
		Tags: map[string]string{metrics.TagCallID: callID},
	})
}

func (e *Engine) backend() string {
	switch {
	case e.redis != nil:
		return "redis"
	case e.memory != nil:
		return "memory"
	default:
		return "custom"
	}
}

// Handler serves every mounted route without a listener.
func (e *Engine) Handler() http.Handler { return e.transport }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Router() *relay.Router { return e.router }

func (e *Engine) Store() session.Store { return e.store }

func (e *Engine) Transport() *wildix.Transport { return e.transport }

func (e *Engine) Metrics() *metrics.PrometheusObserver { return e.prom }

func (e *Engine) State() runner.State { return e.runner.State() }

var _ transports.Transport = (*wildix.Transport)(nil)
