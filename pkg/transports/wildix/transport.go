package wildix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/metrics"
	"github.com/harunnryd/stella/pkg/relay"
	"github.com/harunnryd/stella/pkg/signature"
)

const (
	DefaultWebhookPath  = "/wildix/webhook"
	DefaultMaxBodyBytes = 1 << 20
)

type Config struct {
	ServerAddr   string `mapstructure:"server_addr"`
	PublicURL    string `mapstructure:"public_url"`
	WebhookPath  string `mapstructure:"webhook_path"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":3000"
	}
	if c.WebhookPath == "" {
		c.WebhookPath = DefaultWebhookPath
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// Handler processes a decoded event; relay.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev relay.Event) relay.Reply
	Malformed(ctx context.Context, err error) relay.Reply
	Fallback() relay.Reply
}

// Transport serves the signed webhook endpoint and any extra routes mounted
// before Start.
type Transport struct {
	cfg      Config
	verifier signature.Verifier
	handler  Handler
	obs      metrics.Observer
	log      *slog.Logger

	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
	inflight sync.WaitGroup
	draining atomic.Bool
}

func New(cfg Config, verifier signature.Verifier, handler Handler) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg:      cfg,
		verifier: verifier,
		handler:  handler,
		obs:      metrics.NoopObserver{},
		log:      slog.Default(),
		mux:      http.NewServeMux(),
	}
	t.mux.HandleFunc(cfg.WebhookPath, t.handleWebhook)
	t.mux.HandleFunc("/health", t.handleHealth)
	return t
}

func (t *Transport) Name() string { return "wildix" }

func (t *Transport) SetObserver(obs metrics.Observer) {
	if obs != nil {
		t.obs = obs
	}
}

func (t *Transport) SetLogger(log *slog.Logger) {
	if log != nil {
		t.log = log
	}
}

// Handle mounts an extra route such as metrics or the live feed.
func (t *Transport) Handle(pattern string, handler http.Handler) {
	t.mux.Handle(pattern, handler)
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mux.ServeHTTP(w, r)
}

func (t *Transport) ReadyFields() map[string]any {
	fields := map[string]any{
		"addr":         t.Addr(),
		"webhook_path": t.cfg.WebhookPath,
	}
	if t.cfg.PublicURL != "" {
		fields["webhook_url"] = strings.TrimRight(t.cfg.PublicURL, "/") + t.cfg.WebhookPath
	}
	if t.verifier != nil {
		fields["signature_scheme"] = t.verifier.Name()
	}
	return fields
}

// Addr returns the bound listener address once started.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.cfg.ServerAddr
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", t.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("wildix transport listen %s: %w", t.cfg.ServerAddr, err)
	}
	srv := &http.Server{
		Handler:           t,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	t.mu.Lock()
	t.listener = ln
	t.server = srv
	t.mu.Unlock()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("wildix_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

// Stop refuses new deliveries and waits for in-flight ones until ctx is done.
func (t *Transport) Stop(ctx context.Context) error {
	t.draining.Store(true)
	t.mu.Lock()
	srv := t.server
	t.mu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return err
	}
	return nil
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if t.draining.Load() {
		status = "draining"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (t *Transport) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	t.inflight.Add(1)
	defer t.inflight.Done()

	traceID := r.Header.Get("X-Request-Id")
	if traceID == "" {
		traceID = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", traceID)
	ctx := relay.WithTraceID(r.Context(), traceID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			t.log.Warn("webhook_body_too_large", "trace_id", traceID, "limit", t.cfg.MaxBodyBytes)
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
			return
		}
		t.log.Warn("webhook_body_read_failed", "trace_id", traceID, "error", err.Error())
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	if t.verifier == nil || !t.verifier.Verify(r, body) {
		t.log.Warn("webhook_signature_invalid",
			"trace_id", traceID,
			"remote_addr", r.RemoteAddr,
			"reason_code", string(errorsx.ReasonSignatureInvalid),
		)
		t.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventSignatureRejected,
			Time: time.Now(),
			Tags: map[string]string{
				metrics.TagTraceID:    traceID,
				metrics.TagReasonCode: string(errorsx.ReasonSignatureInvalid),
				metrics.TagComponent:  "transport",
			},
		})
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad signature"})
		return
	}

	ev, err := relay.ParseEvent(body)
	if err != nil {
		writeJSON(w, http.StatusOK, t.handler.Malformed(ctx, err))
		return
	}
	writeJSON(w, http.StatusOK, t.dispatch(ctx, ev))
}

func (t *Transport) dispatch(ctx context.Context, ev relay.Event) (reply relay.Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("webhook_handler_panic",
				"type", ev.Type,
				"call_id", ev.Data.CallID,
				"trace_id", relay.TraceID(ctx),
				"reason_code", string(errorsx.ReasonTranslationPanic),
				"panic", fmt.Sprint(rec),
			)
			if ev.Type == relay.TypeCallUpdate {
				reply = t.handler.Fallback()
				return
			}
			reply = relay.Ack()
		}
	}()
	return t.handler.Handle(ctx, ev)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
