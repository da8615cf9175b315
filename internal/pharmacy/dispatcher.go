package pharmacy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"

	"github.com/medqueue/pharmacy/pkg/enums/pharmacystate"
	"github.com/medqueue/pharmacy/pkg/event"
)

// ErrNotFound is returned when a command names an id the worklist does not
// hold. Commands never create entries.
var ErrNotFound = errors.New("prescription not found")

// Dispatcher turns user intents into an outbound move message plus an
// immediate optimistic patch, so the view updates without waiting for the
// backend to echo the change.
//
// The outbound publish is fire-and-forget: a failed send is logged, never
// retried and never rolled back. Until the next reconciling event the local
// state may diverge from the backend; that trade-off is deliberate.
type Dispatcher struct {
	cache     *WorklistStateCache
	publisher events.Publisher
	logger    apt.Logger
}

func NewDispatcher(cache *WorklistStateCache, publisher events.Publisher, logger apt.Logger) *Dispatcher {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Dispatcher{
		cache:     cache,
		publisher: publisher,
		logger:    logger,
	}
}

// Prepare requests pharmacyState=prepared for id and applies the matching
// local patch.
func (d *Dispatcher) Prepare(ctx context.Context, id int) error {
	if d.cache.Get(id) == nil {
		return ErrNotFound
	}

	prepared := pharmacystate.States.Prepared.Code()
	d.publishMove(ctx, id, prepared, "")
	d.cache.Patch(id, Patch{PharmacyState: &prepared})
	return nil
}

// Deliver requests pharmacyState=delivered and completes the patient's
// overall lifecycle, with the matching local patch.
func (d *Dispatcher) Deliver(ctx context.Context, id int) error {
	if d.cache.Get(id) == nil {
		return ErrNotFound
	}

	delivered := pharmacystate.States.Delivered.Code()
	completed := StatusCompleted
	d.publishMove(ctx, id, delivered, completed)
	d.cache.Patch(id, Patch{PharmacyState: &delivered, Status: &completed})
	return nil
}

func (d *Dispatcher) publishMove(ctx context.Context, id int, state, status string) {
	evt := event.QueuePatientMovedEvent{
		EventType:     event.EventQueuePatientMoved,
		OccurredAt:    time.Now().UTC(),
		PatientID:     id,
		PharmacyState: state,
		Status:        status,
	}

	eventBytes, _ := json.Marshal(evt)
	if err := d.publisher.Publish(ctx, event.QueueMovesTopic, eventBytes); err != nil {
		d.logger.Errorf("Failed to publish move intent for patient %d: %v", id, err)
	}
}
