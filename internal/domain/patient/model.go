package patient

import (
	"time"

	"github.com/hospital/hospital/internal/platform/federation"
	"github.com/hospital/hospital/pkg/civil"
)

type State string

const (
	StateActive      State = "ACTIVE"
	StateInactive    State = "INACTIVE"
	StateDeceased    State = "DECEASED"
	StateTransferred State = "TRANSFERRED"
)

func (s State) Valid() bool {
	switch s {
	case StateActive, StateInactive, StateDeceased, StateTransferred:
		return true
	}
	return false
}

var validGenders = map[string]bool{"M": true, "F": true, "OTHER": true}

// Patient maps to the patient table of the central store.
type Patient struct {
	ID                  int64      `json:"id"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Address             *string    `json:"address,omitempty"`
	Phone               *string    `json:"phone,omitempty"`
	Email               *string    `json:"email,omitempty"`
	BirthDate           civil.Date `json:"birth_date"`
	Gender              *string    `json:"gender,omitempty"`
	Cedula              string     `json:"cedula"`
	InsuranceNumber     *string    `json:"insurance_number,omitempty"`
	BloodTypeID         *int       `json:"blood_type_id,omitempty"`
	BloodType           *string    `json:"blood_type,omitempty"`
	State               State      `json:"state"`
	PrimaryDepartmentID *int       `json:"primary_department_id,omitempty"`
	LastVisitOn         civil.Date `json:"last_visit_on"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (p *Patient) Summary() federation.PatientSummary {
	return federation.PatientSummary{
		ID:        p.ID,
		Cedula:    p.Cedula,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     strVal(p.Phone),
		Email:     strVal(p.Email),
		State:     string(p.State),
	}
}

// Update carries the fields of a partial update; nil means unchanged.
type Update struct {
	FirstName           *string     `json:"first_name"`
	LastName            *string     `json:"last_name"`
	Address             *string     `json:"address"`
	Phone               *string     `json:"phone"`
	Email               *string     `json:"email"`
	BirthDate           *civil.Date `json:"birth_date"`
	Gender              *string     `json:"gender"`
	InsuranceNumber     *string     `json:"insurance_number"`
	BloodTypeID         *int        `json:"blood_type_id"`
	State               *State      `json:"state"`
	PrimaryDepartmentID *int        `json:"primary_department_id"`
}

func (u Update) apply(p *Patient) {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Address != nil {
		p.Address = u.Address
	}
	if u.Phone != nil {
		p.Phone = u.Phone
	}
	if u.Email != nil {
		p.Email = u.Email
	}
	if u.BirthDate != nil {
		p.BirthDate = *u.BirthDate
	}
	if u.Gender != nil {
		p.Gender = u.Gender
	}
	if u.InsuranceNumber != nil {
		p.InsuranceNumber = u.InsuranceNumber
	}
	if u.BloodTypeID != nil {
		p.BloodTypeID = u.BloodTypeID
	}
	if u.State != nil {
		p.State = *u.State
	}
	if u.PrimaryDepartmentID != nil {
		p.PrimaryDepartmentID = u.PrimaryDepartmentID
	}
}

// ClinicalRecord maps to clinical_record. AccessDepartments lists the
// directory departments allowed to read a confidential record.
type ClinicalRecord struct {
	ID                 int64      `json:"id"`
	PatientID          int64      `json:"patient_id"`
	OpenedOn           civil.Date `json:"opened_on"`
	GeneralNotes       *string    `json:"general_notes,omitempty"`
	WeightKg           *float64   `json:"weight_kg,omitempty"`
	HeightCm           *float64   `json:"height_cm,omitempty"`
	KnownAllergies     *string    `json:"known_allergies,omitempty"`
	FamilyHistory      *string    `json:"family_history,omitempty"`
	PersonalHistory    *string    `json:"personal_history,omitempty"`
	OriginDepartmentID *int       `json:"origin_department_id,omitempty"`
	AccessDepartments  []int32    `json:"access_departments"`
	Confidential       bool       `json:"confidential"`
	State              string     `json:"state"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DirectoryDepartment is the central catalog entry for a department.
type DirectoryDepartment struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Specialty *string `json:"specialty,omitempty"`
	Location  *string `json:"location,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
	State     string  `json:"state"`
}

type BloodType struct {
	ID          int     `json:"id"`
	Code        string  `json:"code"`
	Description *string `json:"description,omitempty"`
}

// Filter narrows a patient listing.
type Filter struct {
	Query string
	State State
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
