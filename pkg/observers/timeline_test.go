package observers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/stella/pkg/metrics"
	"github.com/harunnryd/stella/pkg/redact"
)

func TestTimelineObserverWritesPerCallJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventCallStart,
		Time: time.Now(),
		Tags: map[string]string{metrics.TagCallID: "call/1", metrics.TagTraceID: "trace-1"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventTranslationDone,
		Time:   time.Now(),
		Tags:   map[string]string{metrics.TagCallID: "call/1", metrics.TagSource: "es"},
		Fields: map[string]any{metrics.FieldOutput: "my son has a fever"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventCallEnd,
		Time: time.Now(),
		Tags: map[string]string{metrics.TagCallID: "call/1"},
	})

	obs.mu.Lock()
	open := len(obs.files)
	obs.mu.Unlock()
	if open != 0 {
		t.Fatalf("expected file closed after call_end, %d open", open)
	}

	f, err := os.Open(filepath.Join(dir, "call_1.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var events []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry timelineEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if entry.CallID != "call/1" {
			t.Fatalf("unexpected call id %q", entry.CallID)
		}
		events = append(events, entry.Event)
	}
	want := []string{metrics.EventCallStart, metrics.EventTranslationDone, metrics.EventCallEnd}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestTimelineObserverSkipsEventsWithoutCall(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventBreakerOpen, Time: time.Now()})
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}

func TestPurgeTimelines(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jsonl")
	fresh := filepath.Join(dir, "fresh.jsonl")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	now := time.Now()
	past := now.Add(-48 * time.Hour)
	_ = os.Chtimes(old, past, past)
	_ = os.Chtimes(other, past, past)

	n, err := PurgeTimelines(dir, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old timeline removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("expected non-timeline file kept")
	}
}

func TestLoggerObserverRedactsFields(t *testing.T) {
	redact.SetEnabled(true)
	defer redact.SetEnabled(false)

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewLoggerObserver(log).RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventTranslationDone,
		Tags:   map[string]string{metrics.TagCallID: "call-1"},
		Fields: map[string]any{metrics.FieldInput: "call me at +1 555 123 4567"},
	})
	out := buf.String()
	if !strings.Contains(out, "relay_event") || !strings.Contains(out, "call-1") {
		t.Fatalf("unexpected log line %s", out)
	}
	if strings.Contains(out, "555 123 4567") {
		t.Fatalf("expected phone number redacted, got %s", out)
	}
}

func TestMultiObserverFansOut(t *testing.T) {
	a := metrics.NewMemoryObserver(0)
	b := metrics.NewMemoryObserver(0)
	m := NewMultiObserver(a, nil)
	m.Add(b)
	m.Add(nil)
	m.RecordEvent(metrics.MetricsEvent{Name: metrics.EventCallStart})
	if a.Count(metrics.EventCallStart) != 1 || b.Count(metrics.EventCallStart) != 1 {
		t.Fatalf("expected both observers to receive the event")
	}
}
