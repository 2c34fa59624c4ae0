package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/language"
	"github.com/harunnryd/stella/pkg/metrics"
	"github.com/harunnryd/stella/pkg/redact"
	"github.com/harunnryd/stella/pkg/resilience"
	"github.com/harunnryd/stella/pkg/session"
	"github.com/harunnryd/stella/pkg/translate"
)

// Translator produces the opposite-language rendering of an utterance.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (translate.Result, error)
}

// Detector classifies the language of an utterance.
type Detector interface {
	Detect(text string) language.Tag
}

type Config struct {
	FallbackText string
	// Retries is the number of extra translation attempts; timeouts are
	// never retried.
	Retries      int
	RetryBackoff time.Duration
	// LogPreview caps utterance text in logs, in runes. Zero omits text.
	LogPreview int
}

type Router struct {
	store      session.Store
	detector   Detector
	translator Translator
	obs        metrics.Observer
	log        *slog.Logger
	cfg        Config
}

func NewRouter(store session.Store, detector Detector, translator Translator, cfg Config) *Router {
	if detector == nil {
		detector = language.NewDefaultClassifier()
	}
	if strings.TrimSpace(cfg.FallbackText) == "" {
		cfg.FallbackText = DefaultFallbackText
	}
	return &Router{
		store:      store,
		detector:   detector,
		translator: translator,
		obs:        metrics.NoopObserver{},
		log:        slog.Default(),
		cfg:        cfg,
	}
}

// SetObserver routes relay events to obs.
func (r *Router) SetObserver(obs metrics.Observer) {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	r.obs = obs
}

func (r *Router) SetLogger(log *slog.Logger) {
	if log != nil {
		r.log = log
	}
}

// Fallback is the reply used when an update cannot be translated.
func (r *Router) Fallback() Reply {
	return Speak(r.cfg.FallbackText)
}

// Handle runs one event through the call state machine. It never fails:
// every error is logged and folded into the reply.
func (r *Router) Handle(ctx context.Context, ev Event) Reply {
	switch ev.Type {
	case TypeCallStart:
		return r.handleStart(ctx, ev)
	case TypeCallEnd:
		return r.handleEnd(ctx, ev)
	case TypeCallUpdate:
		return r.handleUpdate(ctx, ev)
	default:
		r.log.Debug("webhook_event_unknown", "type", ev.Type, "call_id", ev.Data.CallID, "trace_id", TraceID(ctx))
		r.emit(ctx, metrics.EventUnknown, ev.Data.CallID, map[string]string{"type": ev.Type}, nil, 0)
		return Ack()
	}
}

// Malformed records a body that could not be decoded and acknowledges it.
func (r *Router) Malformed(ctx context.Context, err error) Reply {
	r.log.Warn("webhook_event_malformed",
		"trace_id", TraceID(ctx),
		"reason_code", string(errorsx.Reason(err)),
		"error", err.Error(),
	)
	r.emit(ctx, metrics.EventMalformed, "", map[string]string{metrics.TagReasonCode: string(errorsx.ReasonMalformedEvent)}, nil, 0)
	return Ack()
}

func (r *Router) handleStart(ctx context.Context, ev Event) Reply {
	callID := ev.Data.CallID
	if callID == "" {
		r.log.Warn("webhook_event_missing_call_id", "type", ev.Type, "trace_id", TraceID(ctx))
		r.emit(ctx, metrics.EventMalformed, "", map[string]string{"type": ev.Type}, nil, 0)
		return Ack()
	}
	if err := r.store.Create(ctx, callID); err != nil {
		r.logStoreError(ctx, "create", callID, err)
	}
	r.log.Info("call_started", "call_id", callID, "trace_id", TraceID(ctx))
	r.emit(ctx, metrics.EventCallStart, callID, nil, nil, 0)
	return Ack()
}

func (r *Router) handleEnd(ctx context.Context, ev Event) Reply {
	callID := ev.Data.CallID
	if callID == "" {
		r.log.Warn("webhook_event_missing_call_id", "type", ev.Type, "trace_id", TraceID(ctx))
		r.emit(ctx, metrics.EventMalformed, "", map[string]string{"type": ev.Type}, nil, 0)
		return Ack()
	}
	if err := r.store.Remove(ctx, callID); err != nil {
		r.logStoreError(ctx, "remove", callID, err)
	}
	r.log.Info("call_ended", "call_id", callID, "trace_id", TraceID(ctx))
	r.emit(ctx, metrics.EventCallEnd, callID, nil, nil, 0)
	return Ack()
}

func (r *Router) handleUpdate(ctx context.Context, ev Event) Reply {
	callID := ev.Data.CallID
	text := ev.Utterance()
	if text == "" {
		r.emit(ctx, metrics.EventUtteranceEmpty, callID, nil, nil, 0)
		return Ack()
	}

	lang := r.detector.Detect(text)
	r.emit(ctx, metrics.EventLanguageDetected, callID, map[string]string{metrics.TagSource: string(lang)}, nil, 0)
	if err := r.store.Update(ctx, callID, lang); err != nil {
		r.logStoreError(ctx, "update", callID, err)
	}

	req := translate.Request{CallID: callID, Text: text, Source: lang}
	res, err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts: r.cfg.Retries + 1,
		BaseDelay:   r.cfg.RetryBackoff,
		IsRetryable: retryableTranslation,
	}, func(ctx context.Context) (translate.Result, error) {
		return r.translator.Translate(ctx, req)
	})
	tags := map[string]string{
		metrics.TagSource: string(lang),
		metrics.TagTarget: string(lang.Complement()),
	}
	if err != nil {
		reason := errorsx.Reason(err)
		tags[metrics.TagReasonCode] = string(reason)
		r.log.Error("translation_failed",
			"call_id", callID,
			"trace_id", TraceID(ctx),
			"source", string(lang),
			"reason_code", string(reason),
			"error", err.Error(),
		)
		r.emit(ctx, metrics.EventTranslationFailed, callID, tags, map[string]any{metrics.FieldInput: text}, 0)
		return r.Fallback()
	}

	if res.Provider != "" {
		tags[metrics.TagProvider] = res.Provider
	}
	attrs := []any{
		"call_id", callID,
		"trace_id", TraceID(ctx),
		"source", string(res.Source),
		"target", string(res.Target),
		"duration_ms", res.Duration.Milliseconds(),
	}
	if r.cfg.LogPreview > 0 {
		attrs = append(attrs, "text", redact.Preview(text, r.cfg.LogPreview))
	}
	r.log.Info("translation_done", attrs...)
	r.emit(ctx, metrics.EventTranslationDone, callID, tags, map[string]any{
		metrics.FieldInput:  res.Input,
		metrics.FieldOutput: res.Output,
	}, res.Duration.Seconds())
	return Speak(res.Output)
}

func (r *Router) logStoreError(ctx context.Context, op, callID string, err error) {
	r.log.Error("session_store_error",
		"op", op,
		"call_id", callID,
		"trace_id", TraceID(ctx),
		"reason_code", string(errorsx.ReasonSessionStore),
		"error", err.Error(),
	)
}

func (r *Router) emit(ctx context.Context, name, callID string, tags map[string]string, fields map[string]any, value float64) {
	all := map[string]string{metrics.TagComponent: "relay"}
	if callID != "" {
		all[metrics.TagCallID] = callID
	}
	if id := TraceID(ctx); id != "" {
		all[metrics.TagTraceID] = id
	}
	for k, v := range tags {
		all[k] = v
	}
	r.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   all,
		Fields: fields,
	})
}

func retryableTranslation(err error) bool {
	if errorsx.HasReason(err, errorsx.ReasonTranslationTimeout) || errorsx.HasReason(err, errorsx.ReasonTranslationCircuitOpen) {
		return false
	}
	return resilience.DefaultIsRetryable(err)
}
