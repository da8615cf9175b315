package pharmacy

import "context"

type PrescriptionFilter struct {
	Status        *string
	PharmacyState *string
	Limit         int
	Offset        int
}

// PrescriptionRepository is the bulk-snapshot source for this worklist.
// List returns only records the server side deems relevant to the pharmacy
// stage; its result is the worklist's complete truth after a reload.
type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	Update(ctx context.Context, p *Prescription) error
	FindByID(ctx context.Context, id int) (*Prescription, error)
	List(ctx context.Context, filter PrescriptionFilter) ([]Prescription, error)
}
