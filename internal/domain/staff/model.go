package staff

import (
	"time"

	"github.com/hospital/hospital/internal/platform/auth"
	"github.com/hospital/hospital/pkg/civil"
)

type State string

const (
	StateActive    State = "ACTIVE"
	StateInactive  State = "INACTIVE"
	StateOnLeave   State = "ON_LEAVE"
	StateSuspended State = "SUSPENDED"
)

func (s State) Valid() bool {
	switch s {
	case StateActive, StateInactive, StateOnLeave, StateSuspended:
		return true
	}
	return false
}

// Member maps to staff_member. DepartmentName and RoleName are filled on reads.
type Member struct {
	ID             int64      `json:"id"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Address        *string    `json:"address,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Email          *string    `json:"email,omitempty"`
	HiredOn        civil.Date `json:"hired_on"`
	BirthDate      civil.Date `json:"birth_date"`
	Cedula         string     `json:"cedula"`
	State          State      `json:"state"`
	DepartmentID   int        `json:"department_id"`
	DepartmentName string     `json:"department_name,omitempty"`
	RoleID         int        `json:"role_id"`
	RoleName       string     `json:"role_name,omitempty"`
	LicenseNumber  *string    `json:"license_number,omitempty"`
	Specialty      *string    `json:"specialty,omitempty"`
	University     *string    `json:"university,omitempty"`
	GraduationYear *int       `json:"graduation_year,omitempty"`
	PreferredShift *string    `json:"preferred_shift,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (m *Member) FullName() string { return m.FirstName + " " + m.LastName }

type Update struct {
	FirstName      *string     `json:"first_name"`
	LastName       *string     `json:"last_name"`
	Address        *string     `json:"address"`
	Phone          *string     `json:"phone"`
	Email          *string     `json:"email"`
	HiredOn        *civil.Date `json:"hired_on"`
	BirthDate      *civil.Date `json:"birth_date"`
	State          *State      `json:"state"`
	DepartmentID   *int        `json:"department_id"`
	RoleID         *int        `json:"role_id"`
	LicenseNumber  *string     `json:"license_number"`
	Specialty      *string     `json:"specialty"`
	University     *string     `json:"university"`
	GraduationYear *int        `json:"graduation_year"`
	PreferredShift *string     `json:"preferred_shift"`
}

func (u Update) apply(m *Member) {
	if u.FirstName != nil {
		m.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		m.LastName = *u.LastName
	}
	if u.Address != nil {
		m.Address = u.Address
	}
	if u.Phone != nil {
		m.Phone = u.Phone
	}
	if u.Email != nil {
		m.Email = u.Email
	}
	if u.HiredOn != nil {
		m.HiredOn = *u.HiredOn
	}
	if u.BirthDate != nil {
		m.BirthDate = *u.BirthDate
	}
	if u.State != nil {
		m.State = *u.State
	}
	if u.DepartmentID != nil {
		m.DepartmentID = *u.DepartmentID
	}
	if u.RoleID != nil {
		m.RoleID = *u.RoleID
	}
	if u.LicenseNumber != nil {
		m.LicenseNumber = u.LicenseNumber
	}
	if u.Specialty != nil {
		m.Specialty = u.Specialty
	}
	if u.University != nil {
		m.University = u.University
	}
	if u.GraduationYear != nil {
		m.GraduationYear = u.GraduationYear
	}
	if u.PreferredShift != nil {
		m.PreferredShift = u.PreferredShift
	}
}

// Role is a row of the role catalog with its fixed capability set.
type Role struct {
	ID           int               `json:"id"`
	Name         string            `json:"name"`
	Description  *string           `json:"description,omitempty"`
	AccessLevel  int               `json:"access_level"`
	Capabilities auth.Capabilities `json:"capabilities"`
}

type Department struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Location  *string `json:"location,omitempty"`
	Specialty *string `json:"specialty,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
	HeadName  *string `json:"head_name,omitempty"`
	Capacity  *int    `json:"capacity,omitempty"`
}

type Filter struct {
	DepartmentID int
	RoleID       int
	State        State
	Specialty    string
}
