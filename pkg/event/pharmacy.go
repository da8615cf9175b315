package event

import "time"

const (
	QueuePatientsTopic         = "queue.patients"
	PharmacyPrescriptionsTopic = "pharmacy.prescriptions"
	QueueMovesTopic            = "queue.moves"
	QueueJoinTopic             = "queue.join"

	EventQueuePatientUpdated      = "queue.patient.updated"
	EventPharmacyPrescriptionSent = "pharmacy.prescription.updated"
	EventQueuePatientMoved        = "queue.patient.moved"
	EventQueueClientJoined        = "queue.client.joined"
)

// PatientRecord is the wire shape of one patient/order in the queue, shared
// by the backend, the push topics, and the bulk snapshot collection.
type PatientRecord struct {
	ID            int    `json:"id" bson:"id"`
	Token         int    `json:"token" bson:"token"`
	Name          string `json:"name" bson:"name"`
	Age           int    `json:"age" bson:"age"`
	Gender        string `json:"gender" bson:"gender"`
	Prescription  string `json:"prescription,omitempty" bson:"prescription,omitempty"`
	PharmacyState string `json:"pharmacyState,omitempty" bson:"pharmacyState,omitempty"`
	Status        string `json:"status,omitempty" bson:"status,omitempty"`
}

// QueuePatientUpdatedEvent is the cross-stage "something about this patient
// changed" notification. A nil Patient means the sender could not include
// the record; consumers fall back to a full reload.
type QueuePatientUpdatedEvent struct {
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Patient    *PatientRecord `json:"patient"`
}

// PharmacyPrescriptionEvent is scoped to the pharmacy stage itself: the
// payload is the record, already known to belong on this worklist.
type PharmacyPrescriptionEvent struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	PatientRecord
}

// QueuePatientMovedEvent is the outbound move intent. Status is only set
// when the move also completes the patient's overall lifecycle.
type QueuePatientMovedEvent struct {
	EventType     string    `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	PatientID     int       `json:"id"`
	PharmacyState string    `json:"pharmacyState"`
	Status        string    `json:"status,omitempty"`
}

// QueueClientJoinedEvent announces a client's role and scope on startup.
type QueueClientJoinedEvent struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Role       string    `json:"role"`
	HospitalID string    `json:"hospital_id,omitempty"`
}
