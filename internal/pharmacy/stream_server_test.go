package pharmacy

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/appetiteclub/apt"
)

func TestViewStreamServerSubscribeQueuesInitialView(t *testing.T) {
	cache := NewWorklistStateCache(nil, nil, apt.NewNoopLogger())
	cache.Set(&Prescription{ID: 1, Name: "Alice", PharmacyState: "pending"})

	server := NewViewStreamServer(cache, apt.NewNoopLogger())

	ch := server.Subscribe("sub-1", "")

	select {
	case view := <-ch:
		if len(view.Prescriptions) != 1 {
			t.Errorf("initial view has %d rows, want 1", len(view.Prescriptions))
		}
	case <-time.After(time.Second):
		t.Fatal("no initial view queued on subscribe")
	}
}

func TestViewStreamServerBroadcastAppliesSubscriberTerm(t *testing.T) {
	cache := NewWorklistStateCache(nil, nil, apt.NewNoopLogger())
	server := NewViewStreamServer(cache, apt.NewNoopLogger())

	all := server.Subscribe("sub-all", "")
	filtered := server.Subscribe("sub-filtered", "ali")
	<-all
	<-filtered

	server.Broadcast([]Prescription{
		{ID: 1, Name: "Alice", PharmacyState: "pending"},
		{ID: 2, Name: "Bruno", PharmacyState: "prepared"},
	})

	select {
	case view := <-all:
		if len(view.Prescriptions) != 2 {
			t.Errorf("unfiltered view has %d rows, want 2", len(view.Prescriptions))
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast received on unfiltered subscription")
	}

	select {
	case view := <-filtered:
		if len(view.Prescriptions) != 1 {
			t.Fatalf("filtered view has %d rows, want 1", len(view.Prescriptions))
		}
		if view.Prescriptions[0].Name != "Alice" {
			t.Errorf("filtered row = %q, want Alice", view.Prescriptions[0].Name)
		}
		// Stats still cover the whole snapshot
		if view.Stats.Prepared != 1 {
			t.Errorf("filtered view Stats.Prepared = %d, want 1", view.Stats.Prepared)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast received on filtered subscription")
	}
}

func TestViewStreamServerSlowSubscriberNeverBlocks(t *testing.T) {
	server := NewViewStreamServer(nil, apt.NewNoopLogger())

	server.Subscribe("slow", "")

	// A subscriber that never drains must not stall the mutation path
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			server.Broadcast([]Prescription{{ID: i, Name: "Patient"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast() blocked on a slow subscriber")
	}
}

func TestViewStreamServerUnsubscribe(t *testing.T) {
	server := NewViewStreamServer(nil, apt.NewNoopLogger())

	ch := server.Subscribe("sub-1", "")
	server.Unsubscribe("sub-1")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received a view after unsubscribe, want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Unsubscribing twice is a no-op
	server.Unsubscribe("sub-1")

	// Broadcasts after unsubscribe must not panic on the closed channel
	server.Broadcast([]Prescription{{ID: 1, Name: "Alice"}})
}

func TestViewStreamServerServeHTTP(t *testing.T) {
	cache := NewWorklistStateCache(nil, nil, apt.NewNoopLogger())
	cache.Set(&Prescription{ID: 1, Name: "Alice Morgan", PharmacyState: "pending"})

	server := NewViewStreamServer(cache, apt.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/worklist/stream?search=alice", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.ServeHTTP(w, req)
		close(done)
	}()

	// Give the handler time to write the initial view, then disconnect
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeHTTP() did not return after client disconnect")
	}

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, ": connected") {
		t.Error("body missing connection comment")
	}
	if !strings.Contains(body, "event: worklist-update") {
		t.Error("body missing worklist-update event frame")
	}
	if !strings.Contains(body, "Alice Morgan") {
		t.Error("body missing projected prescription data")
	}
}
