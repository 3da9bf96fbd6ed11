package pharmacy

import (
	"context"
)

// MedicationRepository reads the central pharmacy inventory.
type MedicationRepository interface {
	Search(ctx context.Context, f MedicationFilter) ([]*Medication, error)
}

// RequestRepository stores prescription requests in the department store.
type RequestRepository interface {
	List(ctx context.Context, f RequestFilter, skip, limit int) ([]*PrescriptionRequest, int, error)
	GetByID(ctx context.Context, id int64) (*PrescriptionRequest, error)
	// Create writes the request and all of its items atomically.
	Create(ctx context.Context, r *PrescriptionRequest) error
	ItemsFor(ctx context.Context, requestIDs []int64) (map[int64][]LineItem, error)
	AppointmentExists(ctx context.Context, id int64) (bool, error)
}
