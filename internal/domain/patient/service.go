package patient

import (
	"context"
	"strings"
	"time"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/pkg/civil"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) validate(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Cedula = strings.TrimSpace(p.Cedula)

	if p.FirstName == "" || p.LastName == "" {
		return apperr.Validation("first_name and last_name are required")
	}
	if p.Cedula == "" {
		return apperr.Validation("cedula is required")
	}
	if p.BirthDate.IsZero() {
		return apperr.Validation("birth_date is required")
	}
	if civil.DateOf(s.now()).Before(p.BirthDate) {
		return apperr.Validation("birth_date cannot be in the future")
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return apperr.Validationf("invalid gender: %s", *p.Gender)
	}
	if !p.State.Valid() {
		return apperr.Validationf("invalid patient state: %s", p.State)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.State == "" {
		p.State = StateActive
	}
	if err := s.validate(p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id int64) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, skip, limit int) ([]*Patient, int, error) {
	if f.State != "" && !f.State.Valid() {
		return nil, 0, apperr.Validationf("invalid patient state: %s", f.State)
	}
	return s.repo.List(ctx, f, skip, limit)
}

// Update applies a partial update. Cedula is immutable once registered.
func (s *Service) Update(ctx context.Context, id int64, u Update) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.apply(p)
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Deactivate marks the patient Inactive; patient rows are never deleted
// because department-store rows may still reference them.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetState(ctx, id, StateInactive)
}

func (s *Service) Records(ctx context.Context, patientID int64) ([]*ClinicalRecord, error) {
	if _, err := s.repo.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListRecords(ctx, patientID)
}

func (s *Service) Departments(ctx context.Context) ([]DirectoryDepartment, error) {
	return s.repo.Departments(ctx)
}

func (s *Service) BloodTypes(ctx context.Context) ([]BloodType, error) {
	return s.repo.BloodTypes(ctx)
}
