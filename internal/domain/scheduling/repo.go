package scheduling

import (
	"context"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/pkg/civil"
)

// Errors a Repository reports for rejected writes.
var (
	errSlotTaken    = apperr.New(apperr.KindScheduleConflict, "slot is already taken")
	errStateChanged = apperr.New(apperr.KindInvalidTransition, "appointment state changed concurrently")
)

type Repository interface {
	List(ctx context.Context, f Filter, skip, limit int) ([]*Appointment, int, error)
	GetByID(ctx context.Context, id int64) (*Appointment, error)

	// FindActiveInSlot returns the active appointment occupying slot other
	// than excludeID, or nil.
	FindActiveInSlot(ctx context.Context, slot Slot, excludeID int64) (*Appointment, error)
	// LockSlot serializes writers of one slot until the surrounding
	// transaction ends.
	LockSlot(ctx context.Context, slot Slot) error

	Create(ctx context.Context, a *Appointment) error
	// Update writes every mutable field provided the stored state is still
	// prev.
	Update(ctx context.Context, a *Appointment, prev State) error

	Types(ctx context.Context) ([]AppointmentType, error)
	TypeByID(ctx context.Context, id int) (*AppointmentType, error)
	CountByState(ctx context.Context, from, to civil.Date, departmentID int) (map[State]int, error)

	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
