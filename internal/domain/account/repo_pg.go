package account

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/db"
)

type repoPG struct{ store *db.Store }

func NewRepoPG(store *db.Store) Repository { return &repoPG{store: store} }

const accountCols = `id, staff_id, username, password_hash, failed_attempts, active, last_access,
	created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.StaffID, &a.Username, &a.PasswordHash, &a.FailedAttempts, &a.Active,
		&a.LastAccess, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	var c Credential
	caps := &c.Capabilities
	err := r.store.Do(ctx, func(ctx context.Context, q db.Queryable) error {
		return q.QueryRow(ctx, `
			SELECT a.id, a.staff_id, a.username, a.password_hash, a.failed_attempts, a.active,
				a.last_access, a.created_at, a.updated_at,
				s.state, r.name, s.department_id,
				r.can_prescribe, r.can_view_records, r.can_modify_records, r.can_schedule,
				r.can_report, r.is_admin, r.can_manage_staff, r.can_view_finance
			FROM session_account a
			JOIN staff_member s ON s.id = a.staff_id
			JOIN role r ON r.id = s.role_id
			WHERE a.username = $1`, username,
		).Scan(&c.ID, &c.StaffID, &c.Username, &c.PasswordHash, &c.FailedAttempts, &c.Active,
			&c.LastAccess, &c.CreatedAt, &c.UpdatedAt,
			&c.StaffState, &c.RoleName, &c.DepartmentID,
			&caps.CanPrescribe, &caps.CanViewRecords, &caps.CanModifyRecords, &caps.CanSchedule,
			&caps.CanReport, &caps.IsAdmin, &caps.CanManageStaff, &caps.CanViewFinance)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("account", username)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Account, error) {
	var a *Account
	err := r.store.Do(ctx, func(ctx context.Context, q db.Queryable) error {
		var err error
		a, err = scanAccount(q.QueryRow(ctx, `SELECT `+accountCols+` FROM session_account WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("account", id)
	}
	return a, err
}

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	err := r.store.Do(ctx, func(ctx context.Context, q db.Queryable) error {
		return q.QueryRow(ctx, `
			INSERT INTO session_account (staff_id, username, password_hash)
			VALUES ($1, $2, $3)
			RETURNING id, failed_attempts, active, created_at, updated_at`,
			a.StaffID, a.Username, a.PasswordHash,
		).Scan(&a.ID, &a.FailedAttempts, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	})
	switch {
	case db.IsUniqueViolation(err, "session_account_username_key"):
		return apperr.Validationf("username %s is already taken", a.Username)
	case db.IsUniqueViolation(err, "session_account_staff_key"):
		return apperr.Validationf("staff member %d already has an account", a.StaffID)
	}
	return err
}

func (r *repoPG) RecordFailure(ctx context.Context, id int64, max int) (int, bool, error) {
	var (
		attempts int
		active   bool
	)
	err := r.store.Do(ctx, func(ctx context.Context, q db.Queryable) error {
		return q.QueryRow(ctx, `
			UPDATE session_account
			SET failed_attempts = failed_attempts + 1,
				active = (failed_attempts + 1 < $2),
				updated_at = NOW()
			WHERE id = $1 AND active
			RETURNING failed_attempts, active`, id, max,
		).Scan(&attempts, &active)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, apperr.NotFound("active account", id)
	}
	return attempts, active, err
}

func (r *repoPG) RecordSuccess(ctx context.Context, id int64) error {
	return r.store.Do(ctx, func(ctx context.Context, q db.Queryable) error {
		tag, err := q.Exec(ctx, `
			UPDATE session_account
			SET failed_attempts = 0, last_access = NOW(), updated_at = NOW()
			WHERE id = $1 AND active`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("active account", id)
		}
		return nil
	})
}

func (r *repoPG) Unlock(ctx context.Context, id int64) (*Account, error) {
	var a *Account
	err := r.store.Do(ctx, func(ctx context.Context, q db.Queryable) error {
		var err error
		a, err = scanAccount(q.QueryRow(ctx, `
			UPDATE session_account
			SET active = TRUE, failed_attempts = 0, updated_at = NOW()
			WHERE id = $1
			RETURNING `+accountCols, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("account", id)
	}
	return a, err
}
