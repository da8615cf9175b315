package pharmacy

import (
	"github.com/medqueue/pharmacy/pkg/enums/pharmacystate"
	"github.com/medqueue/pharmacy/pkg/event"
)

const (
	// StageStatus is the overall-lifecycle value that routes a patient to
	// the pharmacy stage even before any prescription text is recorded.
	StageStatus = "pharmacy"

	// StatusCompleted is the overall-lifecycle value set when the pharmacy
	// delivers, closing the patient's visit.
	StatusCompleted = "completed"
)

// Prescription is one patient/order's record on the pharmacy worklist.
// ID is assigned by the backend and is the unique key of the worklist;
// it is never reassigned.
type Prescription struct {
	ID            int    `json:"id" bson:"id"`
	Token         int    `json:"token" bson:"token"`
	Name          string `json:"name" bson:"name"`
	Age           int    `json:"age" bson:"age"`
	Gender        string `json:"gender" bson:"gender"`
	Text          string `json:"prescription,omitempty" bson:"prescription,omitempty"`
	PharmacyState string `json:"pharmacyState,omitempty" bson:"pharmacyState,omitempty"`
	Status        string `json:"status,omitempty" bson:"status,omitempty"`
}

// State returns the pharmacy state with the absent value normalized to
// pending.
func (p *Prescription) State() string {
	return pharmacystate.Normalize(p.PharmacyState)
}

// Relevant reports whether this record belongs on the pharmacy worklist:
// it carries prescription text, or the patient is routed to this stage, or
// the pharmacy has already started working it.
func (p *Prescription) Relevant() bool {
	return p.Text != "" || p.Status == StageStatus || p.PharmacyState != ""
}

// Record converts to the wire shape shared with the backend and the push
// topics.
func (p *Prescription) Record() event.PatientRecord {
	return event.PatientRecord{
		ID:            p.ID,
		Token:         p.Token,
		Name:          p.Name,
		Age:           p.Age,
		Gender:        p.Gender,
		Prescription:  p.Text,
		PharmacyState: p.PharmacyState,
		Status:        p.Status,
	}
}

// FromRecord converts a wire record into a worklist entry.
func FromRecord(rec event.PatientRecord) Prescription {
	return Prescription{
		ID:            rec.ID,
		Token:         rec.Token,
		Name:          rec.Name,
		Age:           rec.Age,
		Gender:        rec.Gender,
		Text:          rec.Prescription,
		PharmacyState: rec.PharmacyState,
		Status:        rec.Status,
	}
}

// Patch names the fields an optimistic local mutation may change. Nil
// fields are left untouched.
type Patch struct {
	PharmacyState *string
	Status        *string
}
