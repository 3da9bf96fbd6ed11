package interconsult

import (
	"time"

	"github.com/hospital/hospital/internal/platform/statemachine"
	"github.com/hospital/hospital/pkg/civil"
)

type State string

const (
	StatePending   State = "PENDING"
	StateResponded State = "RESPONDED"
)

// Lifecycle has a single forward edge and no cancellation path.
var Lifecycle = statemachine.New("interconsultation", StatePending, map[State][]State{
	StatePending: {StateResponded},
})

// Interconsultation is a request from one department to another for a
// specialist opinion on a patient. The patient lives in the central store
// and is referenced by id only.
type Interconsultation struct {
	ID                     int64      `json:"id"`
	PatientID              int64      `json:"patient_id"`
	OriginAppointmentID    *int64     `json:"origin_appointment_id,omitempty"`
	RequestingStaffID      int64      `json:"requesting_staff_id"`
	RequestingStaffName    string     `json:"requesting_staff_name,omitempty"`
	RequestingDepartmentID int        `json:"requesting_department_id"`
	DestinationDepartment  string     `json:"destination_department"`
	Reason                 string     `json:"reason"`
	RelevantFindings       *string    `json:"relevant_findings,omitempty"`
	SpecificQuestion       *string    `json:"specific_question,omitempty"`
	Urgent                 bool       `json:"urgent"`
	RequestedOn            civil.Date `json:"requested_on"`
	ExpectedResponseOn     civil.Date `json:"expected_response_on"`
	State                  State      `json:"state"`
	Response               *string    `json:"response,omitempty"`
	ResponderName          *string    `json:"responder_name,omitempty"`
	RespondedOn            civil.Date `json:"responded_on"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type CreateRequest struct {
	PatientID             int64      `json:"patient_id"`
	OriginAppointmentID   *int64     `json:"origin_appointment_id"`
	RequestingStaffID     int64      `json:"requesting_staff_id"`
	DestinationDepartment string     `json:"destination_department"`
	Reason                string     `json:"reason"`
	RelevantFindings      *string    `json:"relevant_findings"`
	SpecificQuestion      *string    `json:"specific_question"`
	Urgent                bool       `json:"urgent"`
	ExpectedResponseOn    civil.Date `json:"expected_response_on"`
}

type RespondRequest struct {
	Response      string `json:"response"`
	ResponderName string `json:"responder_name"`
}

type Filter struct {
	State    State
	Urgent   *bool
	StaffID  int64
	DateFrom civil.Date
}

type Stats struct {
	From      civil.Date `json:"from"`
	To        civil.Date `json:"to"`
	Total     int        `json:"total"`
	Urgent    int        `json:"urgent"`
	Pending   int        `json:"pending"`
	Responded int        `json:"responded"`
}
