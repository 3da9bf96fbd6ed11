package account

import "context"

type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	GetByID(ctx context.Context, id int64) (*Account, error)
	Create(ctx context.Context, a *Account) error

	// RecordFailure atomically increments the failure counter of an active
	// account, deactivating it once the counter reaches max. It returns the
	// new counter and active flag, or NotFound when the account is no longer
	// active.
	RecordFailure(ctx context.Context, id int64, max int) (attempts int, active bool, err error)
	// RecordSuccess zeroes the counter and stamps last_access on an active
	// account; NotFound when the account is no longer active.
	RecordSuccess(ctx context.Context, id int64) error
	Unlock(ctx context.Context, id int64) (*Account, error)
}
