package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"

	"github.com/medqueue/pharmacy/internal/pharmacy"
	"github.com/medqueue/pharmacy/pkg/event"
)

// QueueSubscriber reconciles push events from the shared queue into the
// worklist cache. Events arrive unordered and at-least-once; every handling
// path is an idempotent upsert or remove keyed by patient id, so redelivery
// is safe. There is no ordering token between an event and a concurrently
// applied optimistic patch: the last write observed wins.
type QueueSubscriber struct {
	subscriber events.Subscriber
	cache      *pharmacy.WorklistStateCache
	publisher  events.Publisher
	role       string
	hospitalID string
	logger     apt.Logger
}

func NewQueueSubscriber(
	subscriber events.Subscriber,
	cache *pharmacy.WorklistStateCache,
	publisher events.Publisher,
	role string,
	hospitalID string,
	logger apt.Logger,
) *QueueSubscriber {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if role == "" {
		role = "pharmacy"
	}
	return &QueueSubscriber{
		subscriber: subscriber,
		cache:      cache,
		publisher:  publisher,
		role:       role,
		hospitalID: hospitalID,
		logger:     logger,
	}
}

// Start subscribes to both inbound topics and announces this client's role
// and scope once.
func (s *QueueSubscriber) Start(ctx context.Context) error {
	s.logger.Info("Starting QueueSubscriber", "topics", []string{event.QueuePatientsTopic, event.PharmacyPrescriptionsTopic})

	if err := s.subscriber.Subscribe(ctx, event.QueuePatientsTopic, s.handleQueuePatient); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.QueuePatientsTopic, err)
	}

	if err := s.subscriber.Subscribe(ctx, event.PharmacyPrescriptionsTopic, s.handlePrescription); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.PharmacyPrescriptionsTopic, err)
	}

	s.announceJoin(ctx)

	s.logger.Info("QueueSubscriber started successfully")
	return nil
}

// handleQueuePatient processes the cross-stage patient-changed notification.
// Without a record the sender's state is unknown and the whole worklist is
// reloaded; with one, relevance decides between upsert, removal and no-op.
func (s *QueueSubscriber) handleQueuePatient(ctx context.Context, msg []byte) error {
	var evt event.QueuePatientUpdatedEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		s.logger.Errorf("Failed to unmarshal queue patient event: %v", err)
		return nil
	}

	if evt.Patient == nil {
		s.logger.Info("queue event without patient record, reloading worklist")
		if err := s.cache.Reload(ctx); err != nil {
			s.logger.Errorf("Failed to reload worklist: %v", err)
		}
		return nil
	}

	if evt.Patient.ID == 0 {
		s.logger.Info("dropping queue patient event without id")
		return nil
	}

	p := pharmacy.FromRecord(*evt.Patient)
	if p.Relevant() {
		s.cache.Set(&p)
		return nil
	}

	// Edited out of relevance (e.g. prescription cleared): evict.
	s.cache.Remove(p.ID)
	return nil
}

// handlePrescription processes this stage's own update notification. The
// event is already scoped to the pharmacy worklist, so no relevance re-check:
// unconditional upsert by id.
func (s *QueueSubscriber) handlePrescription(ctx context.Context, msg []byte) error {
	var evt event.PharmacyPrescriptionEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		s.logger.Errorf("Failed to unmarshal prescription event: %v", err)
		return nil
	}

	if evt.ID == 0 {
		s.logger.Info("dropping prescription event without id")
		return nil
	}

	p := pharmacy.FromRecord(evt.PatientRecord)
	s.cache.Set(&p)
	return nil
}

func (s *QueueSubscriber) announceJoin(ctx context.Context) {
	if s.publisher == nil {
		return
	}

	evt := event.QueueClientJoinedEvent{
		EventType:  event.EventQueueClientJoined,
		OccurredAt: time.Now().UTC(),
		Role:       s.role,
		HospitalID: s.hospitalID,
	}

	eventBytes, _ := json.Marshal(evt)
	if err := s.publisher.Publish(ctx, event.QueueJoinTopic, eventBytes); err != nil {
		s.logger.Errorf("Failed to publish join announcement: %v", err)
	}
}
