package staff

import (
	"context"
	"strings"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) validate(ctx context.Context, m *Member) error {
	m.FirstName = strings.TrimSpace(m.FirstName)
	m.LastName = strings.TrimSpace(m.LastName)
	m.Cedula = strings.TrimSpace(m.Cedula)

	if m.FirstName == "" || m.LastName == "" {
		return apperr.Validation("first_name and last_name are required")
	}
	if m.Cedula == "" {
		return apperr.Validation("cedula is required")
	}
	if m.BirthDate.IsZero() {
		return apperr.Validation("birth_date is required")
	}
	if !m.State.Valid() {
		return apperr.Validationf("invalid staff state: %s", m.State)
	}
	if m.DepartmentID <= 0 || m.RoleID <= 0 {
		return apperr.Validation("department_id and role_id are required")
	}
	if _, err := s.repo.DepartmentByID(ctx, m.DepartmentID); err != nil {
		return notFoundAsValidation(err)
	}
	if _, err := s.repo.RoleByID(ctx, m.RoleID); err != nil {
		return notFoundAsValidation(err)
	}
	return nil
}

// notFoundAsValidation reports a dangling reference in a request body as a
// validation failure rather than a missing resource.
func notFoundAsValidation(err error) error {
	if apperr.IsKind(err, apperr.KindNotFound) {
		return apperr.Validation(apperr.From(err).Message)
	}
	return err
}

func (s *Service) Create(ctx context.Context, m *Member) error {
	if m.State == "" {
		m.State = StateActive
	}
	if err := s.validate(ctx, m); err != nil {
		return err
	}
	return s.repo.Create(ctx, m)
}

func (s *Service) Get(ctx context.Context, id int64) (*Member, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCedula(ctx context.Context, cedula string) (*Member, error) {
	return s.repo.GetByCedula(ctx, cedula)
}

func (s *Service) List(ctx context.Context, f Filter, skip, limit int) ([]*Member, int, error) {
	if f.State != "" && !f.State.Valid() {
		return nil, 0, apperr.Validationf("invalid staff state: %s", f.State)
	}
	return s.repo.List(ctx, f, skip, limit)
}

func (s *Service) Update(ctx context.Context, id int64, u Update) (*Member, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.apply(m)
	if err := s.validate(ctx, m); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetState(ctx, id, StateInactive)
}

func (s *Service) Roles(ctx context.Context) ([]Role, error) {
	return s.repo.Roles(ctx)
}

func (s *Service) Departments(ctx context.Context) ([]Department, error) {
	return s.repo.Departments(ctx)
}

// SeedRoles writes every grant into the role catalog and returns how many
// rows were written.
func (s *Service) SeedRoles(ctx context.Context, grants []auth.RoleGrant) (int, error) {
	for i, g := range grants {
		if _, err := s.repo.UpsertRole(ctx, g); err != nil {
			return i, err
		}
	}
	return len(grants), nil
}
