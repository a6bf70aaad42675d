package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

// recordingSink records event types and holds the worker on every event
// until release is closed. started closes when the first event arrives.
type recordingSink struct {
	mu      sync.Mutex
	types   []string
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *recordingSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	s.types = append(s.types, e.EventType)
	s.mu.Unlock()
	s.once.Do(func() { close(s.started) })
	<-s.release
}

func (s *recordingSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "gate_admitted"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherAlertsSurviveFullTrafficBuffer(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)

	d.Emit(context.Background(), Event{EventType: "gate_admitted"})
	<-sink.started

	d.Emit(context.Background(), Event{EventType: "gate_rejected_rate_limited"})
	d.Emit(context.Background(), Event{EventType: "gate_admitted"})
	if d.Dropped() != 1 {
		t.Fatalf("expected the third traffic event to be dropped, got %d drops", d.Dropped())
	}

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "store_unavailable", Alert: true})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("alert emit must not wait behind traffic events")
	}
	if d.Dropped() != 1 {
		t.Fatalf("alert must not be dropped, got %d drops", d.Dropped())
	}

	close(sink.release)
	d.Close()

	got := sink.Types()
	want := []string{"gate_admitted", "store_unavailable", "gate_rejected_rate_limited"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected alert delivered ahead of queued traffic: want %v, got %v", want, got)
		}
	}
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to return once ctx expires")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected 1 drop, got %d", d.Dropped())
	}
}

func TestDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "e2"})
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Timestamp:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EventType:    "gate_rejected_rate_limited",
		ClientName:   "acme",
		DigestPrefix: "9f86d081",
		RequestID:    "req-1",
		Path:         "/hello",
	})
	sink.Emit(context.Background(), Event{EventType: "gate_admitted", Success: true})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var got map[string]any
	if err := json.Unmarshal(lines[0], &got); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if got["event_type"] != "gate_rejected_rate_limited" || got["client_name"] != "acme" {
		t.Fatalf("unexpected event %v", got)
	}
	if got["digest_prefix"] != "9f86d081" || got["request_id"] != "req-1" {
		t.Fatalf("unexpected event %v", got)
	}
	if _, ok := got["alert"]; ok {
		t.Fatal("alert must be omitted when false")
	}
}

func TestJSONWriterSinkNilWriterIsNoop(t *testing.T) {
	NewJSONWriterSink(nil).Emit(context.Background(), Event{EventType: "e1"})
}

func TestLoggerSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLoggerSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "gate_admitted", Success: true})
	sink.Emit(context.Background(), Event{
		EventType: "gate_store_unavailable",
		Alert:     true,
		Error:     "store_unavailable",
		Metadata:  map[string]string{"stage": "quota"},
	})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "gate_admitted" {
		t.Fatalf("unexpected first entry %+v", entries[0].Entry)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("expected alert at error level, got %s", entries[1].Level)
	}
	fields := entries[1].ContextMap()
	if fields["alert"] != true || fields["meta.stage"] != "quota" {
		t.Fatalf("unexpected alert fields %v", fields)
	}
}
