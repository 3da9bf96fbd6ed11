package patient

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/db"
	"github.com/hospital/hospital/internal/platform/federation"
)

type repoPG struct{ store *db.Store }

func NewRepoPG(store *db.Store) Repository { return &repoPG{store: store} }

const patientCols = `p.id, p.first_name, p.last_name, p.address, p.phone, p.email, p.birth_date,
	p.gender, p.cedula, p.insurance_number, p.blood_type_id, bt.code, p.state,
	p.primary_department_id, p.last_visit_on, p.created_at, p.updated_at`

const patientFrom = `patient p LEFT JOIN blood_type bt ON bt.id = p.blood_type_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Address, &p.Phone, &p.Email, &p.BirthDate,
		&p.Gender, &p.Cedula, &p.InsuranceNumber, &p.BloodTypeID, &p.BloodType, &p.State,
		&p.PrimaryDepartmentID, &p.LastVisitOn, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) List(ctx context.Context, f Filter, skip, limit int) ([]*Patient, int, error) {
	q := db.NewListQuery(patientFrom, patientCols).OrderBy("p.last_name, p.first_name, p.id")
	if f.Query != "" {
		q.Contains(f.Query, "p.first_name", "p.last_name", "p.cedula")
	}
	if f.State != "" {
		q.Eq("p.state", f.State)
	}

	var (
		items []*Patient
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
			p, err := scanPatient(rows)
			if err != nil {
				return err
			}
			items = append(items, p)
		}
		return rows.Err()
	})
	return items, total, err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	var p *Patient
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		p, err = scanPatient(c.QueryRow(ctx, `SELECT `+patientCols+` FROM `+patientFrom+` WHERE p.id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", id)
	}
	return p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			INSERT INTO patient (first_name, last_name, address, phone, email, birth_date, gender,
				cedula, insurance_number, blood_type_id, state, primary_department_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING id, created_at, updated_at`,
			p.FirstName, p.LastName, p.Address, p.Phone, p.Email, p.BirthDate, p.Gender,
			p.Cedula, p.InsuranceNumber, p.BloodTypeID, p.State, p.PrimaryDepartmentID,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	})
	if db.IsUniqueViolation(err, "patient_cedula_key") {
		return apperr.Validationf("cedula %s is already registered", p.Cedula)
	}
	return err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			UPDATE patient SET first_name=$2, last_name=$3, address=$4, phone=$5, email=$6,
				birth_date=$7, gender=$8, insurance_number=$9, blood_type_id=$10, state=$11,
				primary_department_id=$12, updated_at=NOW()
			WHERE id = $1
			RETURNING updated_at`,
			p.ID, p.FirstName, p.LastName, p.Address, p.Phone, p.Email,
			p.BirthDate, p.Gender, p.InsuranceNumber, p.BloodTypeID, p.State, p.PrimaryDepartmentID,
		).Scan(&p.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("patient", p.ID)
	}
	return err
}

func (r *repoPG) SetState(ctx context.Context, id int64, state State) error {
	return r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		tag, err := c.Exec(ctx, `UPDATE patient SET state=$2, updated_at=NOW() WHERE id = $1`, id, state)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("patient", id)
		}
		return nil
	})
}

// PatientsByIDs is the batched read used by the federation engine.
func (r *repoPG) PatientsByIDs(ctx context.Context, ids []int64) ([]federation.PatientSummary, error) {
	var out []federation.PatientSummary
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `
			SELECT id, cedula, first_name, last_name, COALESCE(phone, ''), COALESCE(email, ''), state
			FROM patient WHERE id = ANY($1)`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var s federation.PatientSummary
			if err := rows.Scan(&s.ID, &s.Cedula, &s.FirstName, &s.LastName, &s.Phone, &s.Email, &s.State); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repoPG) RecordOwner(ctx context.Context, recordID int64) (int64, error) {
	var owner int64
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `SELECT patient_id FROM clinical_record WHERE id = $1`, recordID).Scan(&owner)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("clinical record", recordID)
	}
	return owner, err
}

const recordCols = `id, patient_id, opened_on, general_notes, weight_kg, height_cm, known_allergies,
	family_history, personal_history, origin_department_id, access_departments, confidential,
	state, created_at, updated_at`

func (r *repoPG) ListRecords(ctx context.Context, patientID int64) ([]*ClinicalRecord, error) {
	var out []*ClinicalRecord
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `SELECT `+recordCols+` FROM clinical_record
			WHERE patient_id = $1 ORDER BY opened_on DESC, id DESC`, patientID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var cr ClinicalRecord
			if err := rows.Scan(&cr.ID, &cr.PatientID, &cr.OpenedOn, &cr.GeneralNotes, &cr.WeightKg,
				&cr.HeightCm, &cr.KnownAllergies, &cr.FamilyHistory, &cr.PersonalHistory,
				&cr.OriginDepartmentID, &cr.AccessDepartments, &cr.Confidential, &cr.State,
				&cr.CreatedAt, &cr.UpdatedAt); err != nil {
				return err
			}
			out = append(out, &cr)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repoPG) Departments(ctx context.Context) ([]DirectoryDepartment, error) {
	var out []DirectoryDepartment
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `SELECT id, name, specialty, location, phone, email, state
			FROM department_directory ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d DirectoryDepartment
			if err := rows.Scan(&d.ID, &d.Name, &d.Specialty, &d.Location, &d.Phone, &d.Email, &d.State); err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repoPG) BloodTypes(ctx context.Context) ([]BloodType, error) {
	var out []BloodType
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `SELECT id, code, description FROM blood_type ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var b BloodType
			if err := rows.Scan(&b.ID, &b.Code, &b.Description); err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	return out, err
}
