package staff

import (
	"context"

	"github.com/hospital/hospital/internal/platform/auth"
)

type Repository interface {
	List(ctx context.Context, f Filter, skip, limit int) ([]*Member, int, error)
	GetByID(ctx context.Context, id int64) (*Member, error)
	GetByCedula(ctx context.Context, cedula string) (*Member, error)
	Create(ctx context.Context, m *Member) error
	Update(ctx context.Context, m *Member) error
	SetState(ctx context.Context, id int64, state State) error
	// NamesByIDs returns full names keyed by staff id; unknown ids are absent.
	NamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)

	Roles(ctx context.Context) ([]Role, error)
	RoleByID(ctx context.Context, id int) (*Role, error)
	UpsertRole(ctx context.Context, g auth.RoleGrant) (int, error)

	Departments(ctx context.Context) ([]Department, error)
	DepartmentByID(ctx context.Context, id int) (*Department, error)
}
