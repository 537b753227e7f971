package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"regdesk/internal/dto"
)

type fakeSender struct {
	mu  sync.Mutex
	got []dto.NotificationMessage
	err error
}

func (s *fakeSender) SendRegistrationEmail(ctx context.Context, msg dto.NotificationMessage) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("send called without deadline")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
	return s.err
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

// chanConsumer feeds bodies from a channel the way the broker client does.
type chanConsumer struct {
	bodies  chan []byte
	results chan error
}

func (c *chanConsumer) Consume(handler func([]byte) error) error {
	go func() {
		for b := range c.bodies {
			c.results <- handler(b)
		}
	}()
	return nil
}

func body(t *testing.T, msg dto.NotificationMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandleSendsMail(t *testing.T) {
	log := zerolog.Nop()
	s := &fakeSender{}
	r := NewReader(nil, s, &log, time.Second)

	msg := dto.NotificationMessage{RegistrationID: 1, PaymentReference: "123456789012", Email: "a@example.com"}
	if err := r.handle(body(t, msg)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if s.count() != 1 || s.got[0].PaymentReference != "123456789012" {
		t.Fatalf("sent %+v", s.got)
	}
}

func TestHandleAcksOnSendFailure(t *testing.T) {
	log := zerolog.Nop()
	r := NewReader(nil, &fakeSender{err: errors.New("smtp down")}, &log, time.Second)

	if err := r.handle(body(t, dto.NotificationMessage{PaymentReference: "123456789012"})); err != nil {
		t.Fatalf("send failure must not fail the delivery: %v", err)
	}
}

func TestHandleRejectsGarbage(t *testing.T) {
	log := zerolog.Nop()
	s := &fakeSender{}
	r := NewReader(nil, s, &log, time.Second)

	if err := r.handle([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
	if s.count() != 0 {
		t.Fatal("garbage must not be mailed")
	}
}

func TestReaderStartStop(t *testing.T) {
	log := zerolog.Nop()
	s := &fakeSender{}
	c := &chanConsumer{bodies: make(chan []byte, 1), results: make(chan error, 1)}
	r := NewReader(c, s, &log, time.Second)

	r.Start(context.Background())
	c.bodies <- body(t, dto.NotificationMessage{PaymentReference: "123456789012"})

	select {
	case err := <-c.results:
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not consumed")
	}

	r.Stop()
	close(c.bodies)
	if s.count() != 1 {
		t.Fatalf("sent %d, want 1", s.count())
	}
}
