package pharmacy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/appetiteclub/apt"

	"github.com/medqueue/pharmacy/pkg/event"
)

func TestDispatcherPrepare(t *testing.T) {
	cache := NewWorklistStateCache(nil, nil, apt.NewNoopLogger())
	cache.Set(&Prescription{ID: 101, Name: "Alice Morgan", PharmacyState: "pending", Status: StageStatus})

	publisher := NewMockPublisher()
	dispatcher := NewDispatcher(cache, publisher, apt.NewNoopLogger())

	if err := dispatcher.Prepare(context.Background(), 101); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	// The optimistic patch is visible immediately
	got := cache.Get(101)
	if got.PharmacyState != "prepared" {
		t.Errorf("PharmacyState = %q, want %q", got.PharmacyState, "prepared")
	}
	if got.Status != StageStatus {
		t.Errorf("Status = %q, want unchanged %q", got.Status, StageStatus)
	}

	if len(publisher.PublishedEvents) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.PublishedEvents))
	}
	published := publisher.PublishedEvents[0]
	if published.Topic != event.QueueMovesTopic {
		t.Errorf("published topic = %q, want %q", published.Topic, event.QueueMovesTopic)
	}

	var evt event.QueuePatientMovedEvent
	if err := json.Unmarshal(published.Data, &evt); err != nil {
		t.Fatalf("failed to unmarshal published event: %v", err)
	}
	if evt.EventType != event.EventQueuePatientMoved {
		t.Errorf("EventType = %q, want %q", evt.EventType, event.EventQueuePatientMoved)
	}
	if evt.PatientID != 101 {
		t.Errorf("PatientID = %d, want 101", evt.PatientID)
	}
	if evt.PharmacyState != "prepared" {
		t.Errorf("PharmacyState = %q, want %q", evt.PharmacyState, "prepared")
	}
	if evt.Status != "" {
		t.Errorf("Status = %q, want empty for prepare", evt.Status)
	}
}

func TestDispatcherDeliver(t *testing.T) {
	cache := NewWorklistStateCache(nil, nil, apt.NewNoopLogger())
	cache.Set(&Prescription{ID: 202, Name: "Bruno Silva", PharmacyState: "prepared", Status: StageStatus})

	publisher := NewMockPublisher()
	dispatcher := NewDispatcher(cache, publisher, apt.NewNoopLogger())

	if err := dispatcher.Deliver(context.Background(), 202); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	got := cache.Get(202)
	if got.PharmacyState != "delivered" {
		t.Errorf("PharmacyState = %q, want %q", got.PharmacyState, "delivered")
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
	}

	if len(publisher.PublishedEvents) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.PublishedEvents))
	}

	var evt event.QueuePatientMovedEvent
	if err := json.Unmarshal(publisher.PublishedEvents[0].Data, &evt); err != nil {
		t.Fatalf("failed to unmarshal published event: %v", err)
	}
	if evt.PharmacyState != "delivered" {
		t.Errorf("PharmacyState = %q, want %q", evt.PharmacyState, "delivered")
	}
	if evt.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", evt.Status, StatusCompleted)
	}
}

func TestDispatcherUnknownID(t *testing.T) {
	cache := NewWorklistStateCache(nil, nil, apt.NewNoopLogger())
	publisher := NewMockPublisher()
	dispatcher := NewDispatcher(cache, publisher, apt.NewNoopLogger())

	tests := []struct {
		name    string
		command func(ctx context.Context, id int) error
	}{
		{name: "prepare", command: dispatcher.Prepare},
		{name: "deliver", command: dispatcher.Deliver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.command(context.Background(), 999)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}

	if len(publisher.PublishedEvents) != 0 {
		t.Errorf("published %d events for unknown ids, want 0", len(publisher.PublishedEvents))
	}
	if cache.Count() != 0 {
		t.Errorf("Count() = %d, want 0: commands must never create entries", cache.Count())
	}
}

func TestDispatcherPublishFailureStillPatches(t *testing.T) {
	cache := NewWorklistStateCache(nil, nil, apt.NewNoopLogger())
	cache.Set(&Prescription{ID: 303, Name: "Carla Diaz", PharmacyState: "pending"})

	publisher := NewMockPublisher()
	publisher.PublishFunc = func(ctx context.Context, topic string, data []byte) error {
		return errors.New("broker unavailable")
	}

	dispatcher := NewDispatcher(cache, publisher, apt.NewNoopLogger())

	if err := dispatcher.Prepare(context.Background(), 303); err != nil {
		t.Fatalf("Prepare() error = %v, want nil: send failures are logged, not surfaced", err)
	}

	// No rollback: the optimistic patch stands even when the send failed
	got := cache.Get(303)
	if got.PharmacyState != "prepared" {
		t.Errorf("PharmacyState = %q, want %q", got.PharmacyState, "prepared")
	}
}
