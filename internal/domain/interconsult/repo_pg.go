package interconsult

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/db"
	"github.com/hospital/hospital/pkg/civil"
)

type repoPG struct{ store *db.Store }

func NewRepoPG(store *db.Store) Repository { return &repoPG{store: store} }

const icCols = `id, patient_id, origin_appointment_id, requesting_staff_id, requesting_department_id,
	destination_department, reason, relevant_findings, specific_question, urgent, requested_on,
	expected_response_on, state, response, responder_name, responded_on, created_at, updated_at`

func scanInterconsultation(row pgx.Row) (*Interconsultation, error) {
	var ic Interconsultation
	err := row.Scan(&ic.ID, &ic.PatientID, &ic.OriginAppointmentID, &ic.RequestingStaffID, &ic.RequestingDepartmentID,
		&ic.DestinationDepartment, &ic.Reason, &ic.RelevantFindings, &ic.SpecificQuestion, &ic.Urgent, &ic.RequestedOn,
		&ic.ExpectedResponseOn, &ic.State, &ic.Response, &ic.ResponderName, &ic.RespondedOn, &ic.CreatedAt, &ic.UpdatedAt)
	return &ic, err
}

func (r *repoPG) List(ctx context.Context, f Filter, skip, limit int) ([]*Interconsultation, int, error) {
	q := db.NewListQuery("interconsultation", icCols).OrderBy("urgent DESC, requested_on DESC, id DESC")
	if f.State != "" {
		q.Eq("state", f.State)
	}
	if f.Urgent != nil {
		q.Eq("urgent", *f.Urgent)
	}
	if f.StaffID > 0 {
		q.Eq("requesting_staff_id", f.StaffID)
	}
	if !f.DateFrom.IsZero() {
		q.Where("requested_on >= $?", f.DateFrom)
	}

	var (
		items []*Interconsultation
		total int
	)
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		if err := c.QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
			return err
		}
		rows, err := c.Query(ctx, q.PageSQL(), q.PageArgs(skip, limit)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			ic, err := scanInterconsultation(rows)
			if err != nil {
				return err
			}
			items = append(items, ic)
		}
		return rows.Err()
	})
	return items, total, err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Interconsultation, error) {
	var ic *Interconsultation
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		ic, err = scanInterconsultation(c.QueryRow(ctx, `SELECT `+icCols+` FROM interconsultation WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("interconsultation", id)
	}
	return ic, err
}

func (r *repoPG) AppointmentExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointment WHERE id = $1)`, id).Scan(&ok)
	})
	return ok, err
}

func (r *repoPG) Create(ctx context.Context, ic *Interconsultation) error {
	return r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			INSERT INTO interconsultation (patient_id, origin_appointment_id, requesting_staff_id,
				requesting_department_id, destination_department, reason, relevant_findings,
				specific_question, urgent, requested_on, expected_response_on, state)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING id, created_at, updated_at`,
			ic.PatientID, ic.OriginAppointmentID, ic.RequestingStaffID,
			ic.RequestingDepartmentID, ic.DestinationDepartment, ic.Reason, ic.RelevantFindings,
			ic.SpecificQuestion, ic.Urgent, ic.RequestedOn, ic.ExpectedResponseOn, ic.State,
		).Scan(&ic.ID, &ic.CreatedAt, &ic.UpdatedAt)
	})
}

func (r *repoPG) Respond(ctx context.Context, ic *Interconsultation) error {
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			UPDATE interconsultation
			SET state = $2, response = $3, responder_name = $4, responded_on = $5, updated_at = NOW()
			WHERE id = $1 AND state = $6
			RETURNING updated_at`,
			ic.ID, ic.State, ic.Response, ic.ResponderName, ic.RespondedOn, StatePending,
		).Scan(&ic.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return errNotPending
	}
	return err
}

func (r *repoPG) Stats(ctx context.Context, from, to civil.Date) (*Stats, error) {
	st := &Stats{From: from, To: to}
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			SELECT COUNT(*),
				COUNT(*) FILTER (WHERE urgent),
				COUNT(*) FILTER (WHERE state = $3),
				COUNT(*) FILTER (WHERE state = $4)
			FROM interconsultation
			WHERE requested_on BETWEEN $1 AND $2`,
			from, to, StatePending, StateResponded,
		).Scan(&st.Total, &st.Urgent, &st.Pending, &st.Responded)
	})
	return st, err
}
