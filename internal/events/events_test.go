package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*AccountEvent
	err    error
	done   chan struct{}
}

func (c *captureEmitter) Emit(ctx context.Context, e *AccountEvent) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	if c.done != nil {
		close(c.done)
	}
	return c.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &captureEmitter{}
	b := &captureEmitter{err: boom}
	var nilProducer *KafkaProducer
	m := Multi{a, nil, b, nilProducer}

	err := m.Emit(context.Background(), &AccountEvent{Type: TypeVerified})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out counts = %d, %d", len(a.events), len(b.events))
	}
}

func TestEmitAsync_SurvivesCallerCancel(t *testing.T) {
	c := &captureEmitter{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	EmitAsync(ctx, c, &AccountEvent{Type: TypeSignedUp}, nil)
	cancel()

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("async emit never ran")
	}
	if c.events[0].OccurredAt.IsZero() {
		t.Error("OccurredAt should be stamped")
	}
}

func TestEmitAsync_NilArgs(t *testing.T) {
	EmitAsync(context.Background(), nil, &AccountEvent{}, nil)
	EmitAsync(context.Background(), Nop{}, nil, nil)
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "account-events"}
	ev := &AccountEvent{Type: TypePasswordReset, UserID: "u1", Email: "abc@x.com", OccurredAt: time.Now().UTC()}
	if err := p.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "u1" {
		t.Errorf("Key = %q, want u1", msg.Key)
	}
	var got AccountEvent
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypePasswordReset || got.UserID != "u1" {
		t.Errorf("payload = %+v", got)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close = %v, closed = %v", err, w.closed)
	}
}

func TestNewKafkaProducer_DisabledWithoutConfig(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic"); p != nil {
		t.Error("expected nil producer without brokers")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("expected nil producer without topic")
	}
	var p *KafkaProducer
	if err := p.Emit(context.Background(), &AccountEvent{}); err != nil {
		t.Errorf("nil producer Emit = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil producer Close = %v", err)
	}
}

type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) { r.rec = rec }

func TestLogEmitter_AttributeMapping(t *testing.T) {
	cap := &recordCapture{}
	em := &LogEmitter{logger: cap}
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ev := &AccountEvent{
		Type: TypeVerified, UserID: "u1", OccurredAt: at,
		Attributes: map[string]string{"source": "verify"},
	}
	if err := em.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !cap.rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v", cap.rec.Timestamp())
	}
	attrs := make(map[string]string)
	cap.rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{"event_type": "account.verified", "user_id": "u1", "source": "verify"}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
	if _, ok := attrs["email"]; ok {
		t.Error("empty email should not be set")
	}
}

func TestNewLogEmitter_NilProvider(t *testing.T) {
	if _, ok := NewLogEmitter(nil).(Nop); !ok {
		t.Error("nil provider should yield Nop")
	}
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if err := NewLogEmitter(provider).Emit(context.Background(), &AccountEvent{Type: TypeSignedUp}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}
