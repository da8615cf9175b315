package pharmacy

import (
	"context"
	"errors"

	"github.com/appetiteclub/apt/events"
)

// MockPrescriptionRepository is a test mock for PrescriptionRepository
type MockPrescriptionRepository struct {
	prescriptions map[int]*Prescription
	order         []int
	CreateFunc    func(ctx context.Context, p *Prescription) error
	UpdateFunc    func(ctx context.Context, p *Prescription) error
	FindByIDFunc  func(ctx context.Context, id int) (*Prescription, error)
	ListFunc      func(ctx context.Context, filter PrescriptionFilter) ([]Prescription, error)
}

func NewMockPrescriptionRepository() *MockPrescriptionRepository {
	return &MockPrescriptionRepository{
		prescriptions: make(map[int]*Prescription),
	}
}

func (m *MockPrescriptionRepository) Create(ctx context.Context, p *Prescription) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.AddPrescription(p)
	return nil
}

func (m *MockPrescriptionRepository) Update(ctx context.Context, p *Prescription) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	if _, exists := m.prescriptions[p.ID]; !exists {
		return errors.New("prescription not found")
	}
	m.prescriptions[p.ID] = p
	return nil
}

func (m *MockPrescriptionRepository) FindByID(ctx context.Context, id int) (*Prescription, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	p, exists := m.prescriptions[id]
	if !exists {
		return nil, errors.New("prescription not found")
	}
	return p, nil
}

func (m *MockPrescriptionRepository) List(ctx context.Context, filter PrescriptionFilter) ([]Prescription, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	result := make([]Prescription, 0, len(m.prescriptions))
	for _, id := range m.order {
		if p := m.prescriptions[id]; p != nil {
			result = append(result, *p)
		}
	}
	return result, nil
}

// AddPrescription is a helper to seed the mock repository
func (m *MockPrescriptionRepository) AddPrescription(p *Prescription) {
	if _, exists := m.prescriptions[p.ID]; !exists {
		m.order = append(m.order, p.ID)
	}
	m.prescriptions[p.ID] = p
}

// MockPublisher is a test mock for events.Publisher
type MockPublisher struct {
	PublishedEvents []PublishedEvent
	PublishFunc     func(ctx context.Context, topic string, data []byte) error
}

type PublishedEvent struct {
	Topic string
	Data  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		PublishedEvents: make([]PublishedEvent, 0),
	}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	m.PublishedEvents = append(m.PublishedEvents, PublishedEvent{Topic: topic, Data: data})
	return nil
}

// MockStreamConsumer is a test mock for events.StreamConsumer
type MockStreamConsumer struct {
	messages            []events.StreamMessage
	FetchFunc           func(ctx context.Context, maxMessages int) ([]events.StreamMessage, error)
	SubscribeStreamFunc func(ctx context.Context, handler events.HandlerFunc) error
}

func NewMockStreamConsumer() *MockStreamConsumer {
	return &MockStreamConsumer{
		messages: make([]events.StreamMessage, 0),
	}
}

func (m *MockStreamConsumer) Fetch(ctx context.Context, maxMessages int) ([]events.StreamMessage, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, maxMessages)
	}
	return m.messages, nil
}

func (m *MockStreamConsumer) SubscribeStream(ctx context.Context, handler events.HandlerFunc) error {
	if m.SubscribeStreamFunc != nil {
		return m.SubscribeStreamFunc(ctx, handler)
	}
	return nil
}

func (m *MockStreamConsumer) AddMessage(data []byte) {
	m.messages = append(m.messages, events.StreamMessage{Data: data})
}
