package patient

import (
	"context"

	"github.com/hospital/hospital/internal/platform/federation"
)

// Repository is the central store. It doubles as the patient source of the
// federation engine.
type Repository interface {
	List(ctx context.Context, f Filter, skip, limit int) ([]*Patient, int, error)
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	SetState(ctx context.Context, id int64, state State) error

	ListRecords(ctx context.Context, patientID int64) ([]*ClinicalRecord, error)

	Departments(ctx context.Context) ([]DirectoryDepartment, error)
	BloodTypes(ctx context.Context) ([]BloodType, error)

	federation.PatientSource
}
