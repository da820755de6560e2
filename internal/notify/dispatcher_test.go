package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hive-services/backend/internal/models"
)

type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	done     chan Notification
}

func (s *flakySink) Notify(ctx context.Context, n Notification) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("sink unavailable")
	}
	s.done <- n
	return nil
}

func TestDispatcherRetriesUntilDelivered(t *testing.T) {
	sink := &flakySink{failures: 2, done: make(chan Notification, 1)}
	d := NewDispatcher(sink, DispatcherConfig{MaxAttempts: 5, BaseBackoff: time.Millisecond, Timeout: time.Second}, zerolog.Nop())
	d.Start(context.Background())
	defer d.Stop()

	d.Enqueue(Notification{RecipientRole: models.RoleAdmin, RecipientID: Broadcast, Message: "urgent", RequestID: "R1"})

	select {
	case n := <-sink.done:
		if n.RequestID != "R1" {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notification not delivered")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sink.calls)
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	sink := &flakySink{done: make(chan Notification, 10)}
	d := NewDispatcher(sink, DispatcherConfig{QueueSize: 1}, zerolog.Nop())
	// not started: the second enqueue must return immediately
	d.Enqueue(Notification{Message: "a"})
	d.Enqueue(Notification{Message: "b"})
	if len(d.queue) != 1 {
		t.Fatalf("expected one queued notification, got %d", len(d.queue))
	}
}

func TestWebhookSink(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second)
	err := sink.Notify(context.Background(), Notification{RecipientRole: models.RoleClient, RecipientID: "c1", Message: "approved"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.RecipientID != "c1" || got.Message != "approved" {
		t.Fatalf("unexpected payload %+v", got)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	if err := NewWebhookSink(failing.URL, time.Second).Notify(context.Background(), Notification{}); err == nil {
		t.Fatalf("expected error on 502")
	}
}
