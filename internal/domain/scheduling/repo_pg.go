package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/db"
	"github.com/hospital/hospital/pkg/civil"
)

const activeSlotIndex = "appointment_active_slot_key"

type repoPG struct{ store *db.Store }

func NewRepoPG(store *db.Store) Repository { return &repoPG{store: store} }

const apptCols = `id, patient_id, staff_id, type_id, department_id, appointment_date, start_time,
	end_time, actual_duration_min, reason, symptoms, preliminary_diagnosis, final_diagnosis,
	notes, recommendations, requires_follow_up, follow_up_on, priority, state, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.StaffID, &a.TypeID, &a.DepartmentID, &a.Date, &a.StartTime,
		&a.EndTime, &a.ActualDurationMin, &a.Reason, &a.Symptoms, &a.PreliminaryDiagnosis, &a.FinalDiagnosis,
		&a.Notes, &a.Recommendations, &a.RequiresFollowUp, &a.FollowUpOn, &a.Priority, &a.State,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.WithinTx(ctx, fn)
}

func (r *repoPG) List(ctx context.Context, f Filter, skip, limit int) ([]*Appointment, int, error) {
	q := db.NewListQuery("appointment", apptCols).OrderBy("appointment_date DESC, start_time DESC, id DESC")
	if f.DepartmentID > 0 {
		q.Eq("department_id", f.DepartmentID)
	}
	if !f.Date.IsZero() {
		q.Eq("appointment_date", f.Date)
	}
	if !f.DateFrom.IsZero() {
		q.Where("appointment_date >= $?", f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		q.Where("appointment_date <= $?", f.DateTo)
	}
	if f.State != "" {
		q.Eq("state", f.State)
	}
	if f.PatientID > 0 {
		q.Eq("patient_id", f.PatientID)
	}
	if f.StaffID > 0 {
		q.Eq("staff_id", f.StaffID)
	}
	if f.Priority != "" {
		q.Eq("priority", f.Priority)
	}

	var (
		items []*Appointment
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
			a, err := scanAppointment(rows)
			if err != nil {
				return err
			}
			items = append(items, a)
		}
		return rows.Err()
	})
	return items, total, err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	var a *Appointment
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		a, err = scanAppointment(c.QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment", id)
	}
	return a, err
}

func (r *repoPG) FindActiveInSlot(ctx context.Context, slot Slot, excludeID int64) (*Appointment, error) {
	var a *Appointment
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		a, err = scanAppointment(c.QueryRow(ctx, `
			SELECT `+apptCols+` FROM appointment
			WHERE staff_id = $1 AND appointment_date = $2 AND start_time = $3
				AND state = ANY($4) AND id <> $5
			ORDER BY id
			LIMIT 1`,
			slot.StaffID, slot.Date, slot.StartTime, activeStateNames(), excludeID))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// LockSlot takes a transaction-scoped advisory lock keyed on the slot.
func (r *repoPG) LockSlot(ctx context.Context, slot Slot) error {
	return r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		_, err := c.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"appointment-slot:"+slotKey(slot))
		return err
	})
}

func slotKey(s Slot) string {
	return fmt.Sprintf("%d/%s/%s", s.StaffID, s.Date, s.StartTime)
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			INSERT INTO appointment (patient_id, staff_id, type_id, department_id, appointment_date,
				start_time, end_time, reason, symptoms, priority, state)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING id, created_at, updated_at`,
			a.PatientID, a.StaffID, a.TypeID, a.DepartmentID, a.Date,
			a.StartTime, a.EndTime, a.Reason, a.Symptoms, a.Priority, a.State,
		).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	})
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return errSlotTaken
	}
	return err
}

func (r *repoPG) Update(ctx context.Context, a *Appointment, prev State) error {
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			UPDATE appointment SET staff_id=$3, type_id=$4, appointment_date=$5, start_time=$6,
				end_time=$7, actual_duration_min=$8, reason=$9, symptoms=$10,
				preliminary_diagnosis=$11, final_diagnosis=$12, notes=$13, recommendations=$14,
				requires_follow_up=$15, follow_up_on=$16, priority=$17, state=$18, updated_at=NOW()
			WHERE id = $1 AND state = $2
			RETURNING updated_at`,
			a.ID, prev, a.StaffID, a.TypeID, a.Date, a.StartTime,
			a.EndTime, a.ActualDurationMin, a.Reason, a.Symptoms,
			a.PreliminaryDiagnosis, a.FinalDiagnosis, a.Notes, a.Recommendations,
			a.RequiresFollowUp, a.FollowUpOn, a.Priority, a.State,
		).Scan(&a.UpdatedAt)
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errStateChanged
	case db.IsUniqueViolation(err, activeSlotIndex):
		return errSlotTaken
	}
	return err
}

const typeCols = `id, name, default_duration_min, base_cost, description, requires_preparation,
	allows_urgent, requires_interconsultation`

func scanType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	err := row.Scan(&t.ID, &t.Name, &t.DefaultDurationMin, &t.BaseCost, &t.Description,
		&t.RequiresPreparation, &t.AllowsUrgent, &t.RequiresInterconsultation)
	return &t, err
}

func (r *repoPG) Types(ctx context.Context) ([]AppointmentType, error) {
	var out []AppointmentType
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `SELECT `+typeCols+` FROM appointment_type ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanType(rows)
			if err != nil {
				return err
			}
			out = append(out, *t)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repoPG) TypeByID(ctx context.Context, id int) (*AppointmentType, error) {
	var t *AppointmentType
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		t, err = scanType(c.QueryRow(ctx, `SELECT `+typeCols+` FROM appointment_type WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment type", id)
	}
	return t, err
}

func (r *repoPG) CountByState(ctx context.Context, from, to civil.Date, departmentID int) (map[State]int, error) {
	counts := make(map[State]int)
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `
			SELECT state, COUNT(*) FROM appointment
			WHERE appointment_date BETWEEN $1 AND $2 AND ($3 = 0 OR department_id = $3)
			GROUP BY state`, from, to, departmentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				s State
				n int
			)
			if err := rows.Scan(&s, &n); err != nil {
				return err
			}
			counts[s] = n
		}
		return rows.Err()
	})
	return counts, err
}

func activeStateNames() []string {
	names := make([]string, len(activeStates))
	for i, s := range activeStates {
		names[i] = string(s)
	}
	return names
}
