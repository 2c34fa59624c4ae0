package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/language"
	"github.com/harunnryd/stella/pkg/metrics"
	"github.com/harunnryd/stella/pkg/providers/mock"
	"github.com/harunnryd/stella/pkg/session"
	"github.com/harunnryd/stella/pkg/translate"
)

type recordingTranslator struct {
	reqs    []translate.Request
	errs    []error
	store   session.Store
	seenLng []language.Tag
}

func (r *recordingTranslator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	r.reqs = append(r.reqs, req)
	if r.store != nil {
		sess, _, _ := r.store.Get(ctx, req.CallID)
		r.seenLng = append(r.seenLng, sess.Language)
	}
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return translate.Result{}, err
		}
	}
	return translate.Result{Input: req.Text, Output: "ok:" + req.Text, Source: req.Source, Target: req.Source.Complement()}, nil
}

type failingStore struct{ session.Store }

func (failingStore) Create(context.Context, string) error { return errors.New("redis down") }
func (failingStore) Update(context.Context, string, language.Tag) error {
	return errors.New("redis down")
}

func newRouter(t *testing.T, tr Translator) (*Router, *session.MemoryStore, *metrics.MemoryObserver) {
	t.Helper()
	store := session.NewMemoryStore(0)
	obs := metrics.NewMemoryObserver(0)
	r := NewRouter(store, nil, tr, Config{})
	r.SetObserver(obs)
	return r, store, obs
}

func TestSpanishUtteranceRepliesInEnglish(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Responses: map[string]string{
		"Hola, mi hijo tiene dolor de cabeza": "Hello, my son has a headache.",
	}})
	r, store, obs := newRouter(t, translate.NewDispatcher(adapter, nil, translate.Config{}))
	ctx := context.Background()

	if got := r.Handle(ctx, Event{Type: TypeCallStart, Data: EventData{CallID: "c1"}}); !got.OK {
		t.Fatalf("expected ack on start, got %+v", got)
	}
	reply := r.Handle(ctx, Event{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "Hola, mio tiene dolor de cabeza"}})
	if !reply.IsSpeech() || reply.Reply.Type != "text" || reply.Reply.Text != "Hello, my son has a headache." {
		t.Fatalf("unexpected reply %+v", reply)
	}
	sess, ok, _ := store.Get(ctx, "c1")
	if !ok || sess.Language != language.Spanish {
		t.Fatalf("expected session language es, got %+v ok=%v", sess, ok)
	}
	if obs.Count(metrics.EventTranslationDone) != 1 || obs.Count(metrics.EventLanguageDetected) != 1 {
		t.Fatalf("expected detection and translation events")
	}
}

func TestEmptyUtteranceSkipsTranslator(t *testing.T) {
	tr := &recordingTranslator{}
	r, store, obs := newRouter(t, tr)
	ctx := context.Background()
	_ = store.Create(ctx, "c1")

	for _, ev := range []Event{
		{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: ""}},
		{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "   "}},
		{Type: TypeCallUpdate, Data: EventData{CallID: "c1", STT: &STTData{Text: "\n"}}},
	} {
		if got := r.Handle(ctx, ev); !got.OK || got.IsSpeech() {
			t.Fatalf("expected ack for empty utterance, got %+v", got)
		}
	}
	if len(tr.reqs) != 0 {
		t.Fatalf("translator must not be called, got %d calls", len(tr.reqs))
	}
	sess, _, _ := store.Get(ctx, "c1")
	if sess.Language != language.English {
		t.Fatalf("session language must not change, got %s", sess.Language)
	}
	if obs.Count(metrics.EventUtteranceEmpty) != 3 {
		t.Fatalf("expected utterance_empty events")
	}
}

func TestTranslatorTimeoutRepliesFallback(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Delay: time.Second})
	d := translate.NewDispatcher(adapter, nil, translate.Config{Timeout: 10 * time.Millisecond})
	r, store, obs := newRouter(t, d)
	ctx := context.Background()
	_ = store.Create(ctx, "c1")

	reply := r.Handle(ctx, Event{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "where is the pharmacy"}})
	if !reply.IsSpeech() || reply.Reply.Text != DefaultFallbackText {
		t.Fatalf("expected fallback reply, got %+v", reply)
	}
	if _, ok, _ := store.Get(ctx, "c1"); !ok {
		t.Fatalf("session must survive a translation failure")
	}
	evs := obs.Events()
	var failed *metrics.MetricsEvent
	for i := range evs {
		if evs[i].Name == metrics.EventTranslationFailed {
			failed = &evs[i]
		}
	}
	if failed == nil || failed.Tags[metrics.TagReasonCode] != string(errorsx.ReasonTranslationTimeout) {
		t.Fatalf("expected translation_failed with timeout reason, got %+v", failed)
	}
	if failed.Tags[metrics.TagCallID] != "c1" {
		t.Fatalf("expected call id on failure event")
	}
}

func TestSessionUpdatedBeforeTranslating(t *testing.T) {
	store := session.NewMemoryStore(0)
	tr := &recordingTranslator{store: store}
	r := NewRouter(store, nil, tr, Config{})
	ctx := context.Background()
	_ = store.Create(ctx, "c1")

	r.Handle(ctx, Event{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "¿Dónde está el baño?"}})
	if len(tr.seenLng) != 1 || tr.seenLng[0] != language.Spanish {
		t.Fatalf("expected translator to observe updated language, got %v", tr.seenLng)
	}
	if tr.reqs[0].Source != language.Spanish {
		t.Fatalf("expected es source, got %s", tr.reqs[0].Source)
	}
}

func TestDirectionRecomputedPerUtterance(t *testing.T) {
	tr := &recordingTranslator{}
	r, store, _ := newRouter(t, tr)
	ctx := context.Background()
	_ = store.Create(ctx, "c1")

	r.Handle(ctx, Event{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "gracias doctor"}})
	r.Handle(ctx, Event{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "take two pills daily"}})
	if tr.reqs[0].Source != language.Spanish || tr.reqs[1].Source != language.English {
		t.Fatalf("unexpected sources %s, %s", tr.reqs[0].Source, tr.reqs[1].Source)
	}
	sess, _, _ := store.Get(ctx, "c1")
	if sess.Language != language.English {
		t.Fatalf("expected most recent language en, got %s", sess.Language)
	}
}

func TestUpdateWithoutSessionStillTranslates(t *testing.T) {
	tr := &recordingTranslator{}
	r, store, _ := newRouter(t, tr)
	ctx := context.Background()

	reply := r.Handle(ctx, Event{Type: TypeCallUpdate, Data: EventData{CallID: "ghost", Text: "hello there"}})
	if !reply.IsSpeech() || reply.Reply.Text != "ok:hello there" {
		t.Fatalf("expected translation, got %+v", reply)
	}
	if _, ok, _ := store.Get(ctx, "ghost"); ok {
		t.Fatalf("update must not create a session")
	}
}

func TestSTTTextWins(t *testing.T) {
	tr := &recordingTranslator{}
	r, _, _ := newRouter(t, tr)
	r.Handle(context.Background(), Event{Type: TypeCallUpdate, Data: EventData{
		CallID: "c1",
		Text:   "ignored",
		STT:    &STTData{Text: "  from stt  "},
	}})
	if tr.reqs[0].Text != "from stt" {
		t.Fatalf("expected stt text, got %q", tr.reqs[0].Text)
	}
}

func TestEndRemovesSessionAndIsIdempotent(t *testing.T) {
	r, store, _ := newRouter(t, &recordingTranslator{})
	ctx := context.Background()
	r.Handle(ctx, Event{Type: TypeCallStart, Data: EventData{CallID: "c1"}})
	for i := 0; i < 2; i++ {
		if got := r.Handle(ctx, Event{Type: TypeCallEnd, Data: EventData{CallID: "c1"}}); !got.OK {
			t.Fatalf("expected ack on end, got %+v", got)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", store.Len())
	}
}

func TestUnknownTypeAcks(t *testing.T) {
	tr := &recordingTranslator{}
	r, store, obs := newRouter(t, tr)
	got := r.Handle(context.Background(), Event{Type: "call:ringing", Data: EventData{CallID: "c1", Text: "hola"}})
	if !got.OK {
		t.Fatalf("expected ack, got %+v", got)
	}
	if len(tr.reqs) != 0 || store.Len() != 0 {
		t.Fatalf("unknown events must not have side effects")
	}
	if obs.Count(metrics.EventUnknown) != 1 {
		t.Fatalf("expected event_unknown")
	}
}

func TestStartWithoutCallIDIsIgnored(t *testing.T) {
	r, store, obs := newRouter(t, &recordingTranslator{})
	if got := r.Handle(context.Background(), Event{Type: TypeCallStart}); !got.OK {
		t.Fatalf("expected ack")
	}
	if store.Len() != 0 || obs.Count(metrics.EventMalformed) != 1 {
		t.Fatalf("expected no session and a malformed event")
	}
}

func TestStoreErrorsDoNotChangeReply(t *testing.T) {
	tr := &recordingTranslator{}
	r := NewRouter(failingStore{Store: session.NewMemoryStore(0)}, nil, tr, Config{})
	ctx := context.Background()
	if got := r.Handle(ctx, Event{Type: TypeCallStart, Data: EventData{CallID: "c1"}}); !got.OK {
		t.Fatalf("expected ack despite store error")
	}
	got := r.Handle(ctx, Event{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "hello"}})
	if !got.IsSpeech() || got.Reply.Text != "ok:hello" {
		t.Fatalf("expected translation despite store error, got %+v", got)
	}
}

func TestRetriesTranslationFailures(t *testing.T) {
	failure := errorsx.Classify(errorsx.ErrTranslationFailure, errors.New("503"), errorsx.ReasonTranslationFailure)
	tr := &recordingTranslator{errs: []error{failure}}
	r := NewRouter(session.NewMemoryStore(0), nil, tr, Config{Retries: 1, RetryBackoff: time.Millisecond})
	got := r.Handle(context.Background(), Event{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "hello"}})
	if !got.IsSpeech() || got.Reply.Text != "ok:hello" {
		t.Fatalf("expected retry to succeed, got %+v", got)
	}
	if len(tr.reqs) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(tr.reqs))
	}
}

func TestTimeoutsAreNotRetried(t *testing.T) {
	timeout := errorsx.Classify(errorsx.ErrTranslationFailure, context.DeadlineExceeded, errorsx.ReasonTranslationTimeout)
	tr := &recordingTranslator{errs: []error{timeout, timeout}}
	r := NewRouter(session.NewMemoryStore(0), nil, tr, Config{Retries: 3, RetryBackoff: time.Millisecond, FallbackText: "Un momento."})
	got := r.Handle(context.Background(), Event{Type: TypeCallUpdate, Data: EventData{CallID: "c1", Text: "hello"}})
	if got.Reply == nil || got.Reply.Text != "Un momento." {
		t.Fatalf("expected configured fallback, got %+v", got)
	}
	if len(tr.reqs) != 1 {
		t.Fatalf("expected single attempt, got %d", len(tr.reqs))
	}
}

func TestMalformedAcks(t *testing.T) {
	r, _, obs := newRouter(t, &recordingTranslator{})
	_, err := ParseEvent([]byte("not json"))
	got := r.Malformed(WithTraceID(context.Background(), "t1"), err)
	if !got.OK {
		t.Fatalf("expected ack")
	}
	evs := obs.Events()
	if len(evs) != 1 || evs[0].Name != metrics.EventMalformed || evs[0].Tags[metrics.TagTraceID] != "t1" {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":" call:update ","data":{"callId":"c9","stt":{"text":"hola"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != TypeCallUpdate || ev.Data.CallID != "c9" || ev.Utterance() != "hola" {
		t.Fatalf("unexpected event %+v", ev)
	}
	for _, body := range []string{"", "[]", "\"x\"", "{bad", `{"type":1}`} {
		if _, err := ParseEvent([]byte(body)); !errors.Is(err, errorsx.ErrMalformedEvent) {
			t.Fatalf("expected malformed for %q, got %v", body, err)
		}
	}
}

func TestReplyEncoding(t *testing.T) {
	ack, _ := json.Marshal(Ack())
	if string(ack) != `{"ok":true}` {
		t.Fatalf("unexpected ack %s", ack)
	}
	speak, _ := json.Marshal(Speak("My son has a fever."))
	if string(speak) != `{"reply":{"type":"text","text":"My son has a fever."}}` {
		t.Fatalf("unexpected speech %s", speak)
	}
}
