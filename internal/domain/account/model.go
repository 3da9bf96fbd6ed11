package account

import (
	"time"

	"github.com/hospital/hospital/internal/platform/auth"
)

// Account maps to session_account, one per staff member.
type Account struct {
	ID             int64      `json:"id"`
	StaffID        int64      `json:"staff_id"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	FailedAttempts int        `json:"failed_attempts"`
	Active         bool       `json:"active"`
	LastAccess     *time.Time `json:"last_access,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Credential is an account joined with the staff member and role it
// authenticates as.
type Credential struct {
	Account
	StaffState   string
	RoleName     string
	DepartmentID int64
	Capabilities auth.Capabilities
}

func (c *Credential) Identity() auth.Identity {
	return auth.Identity{
		StaffID:      c.StaffID,
		Username:     c.Username,
		Role:         c.RoleName,
		DepartmentID: c.DepartmentID,
		Capabilities: c.Capabilities,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateRequest struct {
	StaffID  int64  `json:"staff_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshResponse is a session plus whether a new token was minted.
type RefreshResponse struct {
	*auth.Session
	Refreshed bool `json:"refreshed"`
}
