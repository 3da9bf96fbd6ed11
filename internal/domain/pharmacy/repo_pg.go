package pharmacy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/db"
)

// -- Central inventory --

type medicationRepoPG struct{ store *db.Store }

func NewMedicationRepoPG(central *db.Store) MedicationRepository {
	return &medicationRepoPG{store: central}
}

const medicationFrom = `medication m
	LEFT JOIN laboratory l ON l.id = m.laboratory_id
	LEFT JOIN medication_category c ON c.id = m.category_id`

const medicationCols = `m.id, m.name, m.active_ingredient, m.description, m.strength, m.dosage_form,
	m.stock_current, m.stock_min, m.unit_price, m.expires_on, m.state,
	l.id, l.name, c.id, c.name`

func scanMedication(row pgx.Row) (*Medication, error) {
	var (
		m                Medication
		labID, catID     *int
		labName, catName *string
	)
	err := row.Scan(&m.ID, &m.Name, &m.ActiveIngredient, &m.Description, &m.Strength, &m.DosageForm,
		&m.StockCurrent, &m.StockMin, &m.UnitPrice, &m.ExpiresOn, &m.State,
		&labID, &labName, &catID, &catName)
	if err != nil {
		return nil, err
	}
	if labID != nil && labName != nil {
		m.Laboratory = &Ref{ID: *labID, Name: *labName}
	}
	if catID != nil && catName != nil {
		m.Category = &Ref{ID: *catID, Name: *catName}
	}
	return &m, nil
}

func (r *medicationRepoPG) Search(ctx context.Context, f MedicationFilter) ([]*Medication, error) {
	q := db.NewListQuery(medicationFrom, medicationCols).OrderBy("m.name, m.id")
	if f.Name != "" {
		q.Contains(f.Name, "m.name")
	}
	if f.ActiveIngredient != "" {
		q.Contains(f.ActiveIngredient, "m.active_ingredient")
	}
	if f.Category != "" {
		q.Contains(f.Category, "c.name")
	}
	if f.OnlyAvailable {
		q.Eq("m.state", MedicationAvailable).Raw("m.stock_current > 0")
	}

	var out []*Medication
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, q.PageSQL(), q.PageArgs(0, f.Limit)...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMedication(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// -- Department requests --

type requestRepoPG struct{ store *db.Store }

func NewRequestRepoPG(department *db.Store) RequestRepository {
	return &requestRepoPG{store: department}
}

const requestCols = `id, patient_id, clinical_record_id, appointment_id, prescriber_id, diagnosis,
	medical_notes, urgent, requested_at, state, created_at, updated_at`

func scanRequest(row pgx.Row) (*PrescriptionRequest, error) {
	var r PrescriptionRequest
	err := row.Scan(&r.ID, &r.PatientID, &r.ClinicalRecordID, &r.AppointmentID, &r.PrescriberID, &r.Diagnosis,
		&r.MedicalNotes, &r.Urgent, &r.RequestedAt, &r.State, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (r *requestRepoPG) List(ctx context.Context, f RequestFilter, skip, limit int) ([]*PrescriptionRequest, int, error) {
	q := db.NewListQuery("prescription_request", requestCols).OrderBy("urgent DESC, requested_at DESC, id DESC")
	if f.State != "" {
		q.Eq("state", f.State)
	}
	if f.Urgent != nil {
		q.Eq("urgent", *f.Urgent)
	}
	if f.PrescriberID > 0 {
		q.Eq("prescriber_id", f.PrescriberID)
	}
	if !f.DateFrom.IsZero() {
		q.Where("requested_at::date >= $?", f.DateFrom)
	}

	var (
		items []*PrescriptionRequest
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
			pr, err := scanRequest(rows)
			if err != nil {
				return err
			}
			items = append(items, pr)
		}
		return rows.Err()
	})
	return items, total, err
}

func (r *requestRepoPG) GetByID(ctx context.Context, id int64) (*PrescriptionRequest, error) {
	var pr *PrescriptionRequest
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		pr, err = scanRequest(c.QueryRow(ctx, `SELECT `+requestCols+` FROM prescription_request WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription request", id)
	}
	return pr, err
}

func (r *requestRepoPG) AppointmentExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointment WHERE id = $1)`, id).Scan(&ok)
	})
	return ok, err
}

func (r *requestRepoPG) Create(ctx context.Context, pr *PrescriptionRequest) error {
	return r.store.WithinTx(ctx, func(ctx context.Context) error {
		return r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
			err := c.QueryRow(ctx, `
				INSERT INTO prescription_request (patient_id, clinical_record_id, appointment_id,
					prescriber_id, diagnosis, medical_notes, urgent, state)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				RETURNING id, requested_at, created_at, updated_at`,
				pr.PatientID, pr.ClinicalRecordID, pr.AppointmentID,
				pr.PrescriberID, pr.Diagnosis, pr.MedicalNotes, pr.Urgent, pr.State,
			).Scan(&pr.ID, &pr.RequestedAt, &pr.CreatedAt, &pr.UpdatedAt)
			if err != nil {
				return err
			}
			for i := range pr.Items {
				it := &pr.Items[i]
				it.RequestID = pr.ID
				err := c.QueryRow(ctx, `
					INSERT INTO prescription_line_item (request_id, medication_name, active_ingredient,
						strength, dosage_form, dose, frequency, duration_days, quantity, route, instructions)
					VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
					RETURNING id`,
					it.RequestID, it.MedicationName, it.ActiveIngredient,
					it.Strength, it.DosageForm, it.Dose, it.Frequency, it.DurationDays, it.Quantity, it.Route, it.Instructions,
				).Scan(&it.ID)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

const itemCols = `id, request_id, medication_name, active_ingredient, strength, dosage_form, dose,
	frequency, duration_days, quantity, route, instructions`

func (r *requestRepoPG) ItemsFor(ctx context.Context, requestIDs []int64) (map[int64][]LineItem, error) {
	out := make(map[int64][]LineItem, len(requestIDs))
	if len(requestIDs) == 0 {
		return out, nil
	}
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `SELECT `+itemCols+` FROM prescription_line_item
			WHERE request_id = ANY($1) ORDER BY request_id, id`, requestIDs)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var it LineItem
			if err := rows.Scan(&it.ID, &it.RequestID, &it.MedicationName, &it.ActiveIngredient, &it.Strength,
				&it.DosageForm, &it.Dose, &it.Frequency, &it.DurationDays, &it.Quantity, &it.Route,
				&it.Instructions); err != nil {
				return err
			}
			out[it.RequestID] = append(out[it.RequestID], it)
		}
		return rows.Err()
	})
	return out, err
}
