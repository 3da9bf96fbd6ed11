package staff

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/auth"
	"github.com/hospital/hospital/internal/platform/db"
)

type repoPG struct{ store *db.Store }

func NewRepoPG(store *db.Store) Repository { return &repoPG{store: store} }

const memberCols = `s.id, s.first_name, s.last_name, s.address, s.phone, s.email, s.hired_on,
	s.birth_date, s.cedula, s.state, s.department_id, d.name, s.role_id, r.name,
	s.license_number, s.specialty, s.university, s.graduation_year, s.preferred_shift,
	s.created_at, s.updated_at`

const memberFrom = `staff_member s
	JOIN department d ON d.id = s.department_id
	JOIN role r ON r.id = s.role_id`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Address, &m.Phone, &m.Email, &m.HiredOn,
		&m.BirthDate, &m.Cedula, &m.State, &m.DepartmentID, &m.DepartmentName, &m.RoleID, &m.RoleName,
		&m.LicenseNumber, &m.Specialty, &m.University, &m.GraduationYear, &m.PreferredShift,
		&m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

// uniqueErr maps the staff uniqueness constraints onto validation errors.
func uniqueErr(err error, m *Member) error {
	switch {
	case db.IsUniqueViolation(err, "staff_member_cedula_key"):
		return apperr.Validationf("cedula %s is already registered", m.Cedula)
	case db.IsUniqueViolation(err, "staff_member_email_key"):
		return apperr.Validation("email is already registered")
	}
	return err
}

func (r *repoPG) List(ctx context.Context, f Filter, skip, limit int) ([]*Member, int, error) {
	q := db.NewListQuery(memberFrom, memberCols).OrderBy("s.last_name, s.first_name, s.id")
	if f.DepartmentID > 0 {
		q.Eq("s.department_id", f.DepartmentID)
	}
	if f.RoleID > 0 {
		q.Eq("s.role_id", f.RoleID)
	}
	if f.State != "" {
		q.Eq("s.state", f.State)
	}
	if f.Specialty != "" {
		q.Contains(f.Specialty, "s.specialty")
	}

	var (
		items []*Member
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
			m, err := scanMember(rows)
			if err != nil {
				return err
			}
			items = append(items, m)
		}
		return rows.Err()
	})
	return items, total, err
}

func (r *repoPG) getOne(ctx context.Context, where string, arg interface{}) (*Member, error) {
	var m *Member
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		m, err = scanMember(c.QueryRow(ctx, `SELECT `+memberCols+` FROM `+memberFrom+` WHERE `+where, arg))
		return err
	})
	return m, err
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Member, error) {
	m, err := r.getOne(ctx, "s.id = $1", id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("staff member", id)
	}
	return m, err
}

func (r *repoPG) GetByCedula(ctx context.Context, cedula string) (*Member, error) {
	m, err := r.getOne(ctx, "s.cedula = $1", cedula)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("staff member", cedula)
	}
	return m, err
}

func (r *repoPG) Create(ctx context.Context, m *Member) error {
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			INSERT INTO staff_member (first_name, last_name, address, phone, email, hired_on, birth_date,
				cedula, state, department_id, role_id, license_number, specialty, university,
				graduation_year, preferred_shift)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			RETURNING id, created_at, updated_at`,
			m.FirstName, m.LastName, m.Address, m.Phone, m.Email, m.HiredOn, m.BirthDate,
			m.Cedula, m.State, m.DepartmentID, m.RoleID, m.LicenseNumber, m.Specialty, m.University,
			m.GraduationYear, m.PreferredShift,
		).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	})
	return uniqueErr(err, m)
}

func (r *repoPG) Update(ctx context.Context, m *Member) error {
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			UPDATE staff_member SET first_name=$2, last_name=$3, address=$4, phone=$5, email=$6,
				hired_on=$7, birth_date=$8, state=$9, department_id=$10, role_id=$11,
				license_number=$12, specialty=$13, university=$14, graduation_year=$15,
				preferred_shift=$16, updated_at=NOW()
			WHERE id = $1
			RETURNING updated_at`,
			m.ID, m.FirstName, m.LastName, m.Address, m.Phone, m.Email,
			m.HiredOn, m.BirthDate, m.State, m.DepartmentID, m.RoleID,
			m.LicenseNumber, m.Specialty, m.University, m.GraduationYear, m.PreferredShift,
		).Scan(&m.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("staff member", m.ID)
	}
	return uniqueErr(err, m)
}

func (r *repoPG) SetState(ctx context.Context, id int64, state State) error {
	return r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		tag, err := c.Exec(ctx, `UPDATE staff_member SET state=$2, updated_at=NOW() WHERE id = $1`, id, state)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("staff member", id)
		}
		return nil
	})
}

func (r *repoPG) NamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `SELECT id, first_name || ' ' || last_name FROM staff_member WHERE id = ANY($1)`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id   int64
				name string
			)
			if err := rows.Scan(&id, &name); err != nil {
				return err
			}
			names[id] = name
		}
		return rows.Err()
	})
	return names, err
}

const roleCols = `id, name, description, access_level, can_prescribe, can_view_records,
	can_modify_records, can_schedule, can_report, is_admin, can_manage_staff, can_view_finance`

func scanRole(row pgx.Row) (*Role, error) {
	var r Role
	caps := &r.Capabilities
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.AccessLevel, &caps.CanPrescribe, &caps.CanViewRecords,
		&caps.CanModifyRecords, &caps.CanSchedule, &caps.CanReport, &caps.IsAdmin, &caps.CanManageStaff,
		&caps.CanViewFinance)
	return &r, err
}

func (r *repoPG) Roles(ctx context.Context) ([]Role, error) {
	var out []Role
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `SELECT `+roleCols+` FROM role ORDER BY access_level DESC, name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			role, err := scanRole(rows)
			if err != nil {
				return err
			}
			out = append(out, *role)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repoPG) RoleByID(ctx context.Context, id int) (*Role, error) {
	var role *Role
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		role, err = scanRole(c.QueryRow(ctx, `SELECT `+roleCols+` FROM role WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("role", id)
	}
	return role, err
}

// UpsertRole writes a role grant by name, overwriting its capability flags.
func (r *repoPG) UpsertRole(ctx context.Context, g auth.RoleGrant) (int, error) {
	var id int
	caps := g.Capabilities
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		return c.QueryRow(ctx, `
			INSERT INTO role (name, description, access_level, can_prescribe, can_view_records,
				can_modify_records, can_schedule, can_report, is_admin, can_manage_staff, can_view_finance)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT ON CONSTRAINT role_name_key DO UPDATE SET
				description = EXCLUDED.description,
				access_level = EXCLUDED.access_level,
				can_prescribe = EXCLUDED.can_prescribe,
				can_view_records = EXCLUDED.can_view_records,
				can_modify_records = EXCLUDED.can_modify_records,
				can_schedule = EXCLUDED.can_schedule,
				can_report = EXCLUDED.can_report,
				is_admin = EXCLUDED.is_admin,
				can_manage_staff = EXCLUDED.can_manage_staff,
				can_view_finance = EXCLUDED.can_view_finance,
				updated_at = NOW()
			RETURNING id`,
			g.Name, g.Description, g.AccessLevel, caps.CanPrescribe, caps.CanViewRecords,
			caps.CanModifyRecords, caps.CanSchedule, caps.CanReport, caps.IsAdmin, caps.CanManageStaff,
			caps.CanViewFinance,
		).Scan(&id)
	})
	return id, err
}

const departmentCols = `id, name, location, specialty, phone, email, head_name, capacity`

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.Location, &d.Specialty, &d.Phone, &d.Email, &d.HeadName, &d.Capacity)
	return &d, err
}

func (r *repoPG) Departments(ctx context.Context) ([]Department, error) {
	var out []Department
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		rows, err := c.Query(ctx, `SELECT `+departmentCols+` FROM department ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDepartment(rows)
			if err != nil {
				return err
			}
			out = append(out, *d)
		}
		return rows.Err()
	})
	return out, err
}

func (r *repoPG) DepartmentByID(ctx context.Context, id int) (*Department, error) {
	var d *Department
	err := r.store.Do(ctx, func(ctx context.Context, c db.Queryable) error {
		var err error
		d, err = scanDepartment(c.QueryRow(ctx, `SELECT `+departmentCols+` FROM department WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("department", id)
	}
	return d, err
}
