package interconsult

import (
	"context"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/pkg/civil"
)

var errNotPending = apperr.New(apperr.KindInvalidTransition, "interconsultation is no longer pending")

type Repository interface {
	List(ctx context.Context, f Filter, skip, limit int) ([]*Interconsultation, int, error)
	GetByID(ctx context.Context, id int64) (*Interconsultation, error)
	Create(ctx context.Context, ic *Interconsultation) error
	// Respond records the answer only while the row is still PENDING and
	// reports errNotPending otherwise.
	Respond(ctx context.Context, ic *Interconsultation) error
	Stats(ctx context.Context, from, to civil.Date) (*Stats, error)
	AppointmentExists(ctx context.Context, id int64) (bool, error)
}
