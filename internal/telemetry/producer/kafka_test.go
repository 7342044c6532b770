package producer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"classroom-lock/client/internal/telemetry/domain"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	writeErr error
	closed   int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func TestNewKafkaProducer_Disabled(t *testing.T) {
	p, err := NewKafkaProducer(nil, "topic")
	if err != nil || p != nil {
		t.Errorf("NewKafkaProducer(nil brokers) = %v, %v; want nil, nil", p, err)
	}
	p, err = NewKafkaProducer([]string{"localhost:9092"}, "")
	if err != nil || p != nil {
		t.Errorf("NewKafkaProducer(empty topic) = %v, %v; want nil, nil", p, err)
	}
}

func TestKafkaProducer_NilSafe(t *testing.T) {
	var p *KafkaProducer
	if err := p.Emit(context.Background(), domain.NewEvent(domain.EventLogin, "", "", nil)); err != nil {
		t.Errorf("nil Emit = %v, want nil", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil Close = %v, want nil", err)
	}
}

func TestKafkaProducer_EmitEncodesEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "classlock-events"}
	event := domain.NewEvent(domain.EventLockApplied, "42", "udid-1", map[string]int{"count": 3})

	if err := p.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != "udid-1" {
		t.Errorf("key = %q, want %q", msg.Key, "udid-1")
	}
	var got domain.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.EventType != domain.EventLockApplied || got.UserID != "42" {
		t.Errorf("payload = %+v", got)
	}
	if string(got.Metadata) != `{"count":3}` {
		t.Errorf("metadata = %s", got.Metadata)
	}
}

func TestKafkaProducer_EmitWithoutDeviceHasNilKey(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "t"}
	if err := p.Emit(context.Background(), domain.NewEvent(domain.EventLogin, "42", "", nil)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if w.messages[0].Key != nil {
		t.Errorf("key = %q, want nil", w.messages[0].Key)
	}
}

func TestKafkaProducer_EmitError(t *testing.T) {
	w := &fakeWriter{writeErr: errors.New("broker unavailable")}
	p := &KafkaProducer{writer: w, topic: "t"}
	if err := p.Emit(context.Background(), domain.NewEvent(domain.EventLogin, "", "", nil)); err == nil {
		t.Fatal("Emit should return the writer error")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.closed != 1 {
		t.Errorf("closed = %d, want 1", w.closed)
	}
}
