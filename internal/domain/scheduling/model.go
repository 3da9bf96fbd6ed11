package scheduling

import (
	"time"

	"github.com/hospital/hospital/internal/platform/statemachine"
	"github.com/hospital/hospital/pkg/civil"
)

type State string

const (
	StateScheduled  State = "SCHEDULED"
	StateConfirmed  State = "CONFIRMED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateCancelled  State = "CANCELLED"
	StateNoShow     State = "NO_SHOW"
)

// Lifecycle is the appointment state machine. COMPLETED, CANCELLED and
// NO_SHOW are final.
var Lifecycle = statemachine.New("appointment", StateScheduled, map[State][]State{
	StateScheduled:  {StateConfirmed, StateInProgress, StateCompleted, StateCancelled, StateNoShow},
	StateConfirmed:  {StateInProgress, StateCompleted, StateCancelled, StateNoShow},
	StateInProgress: {StateCompleted, StateCancelled},
})

// Active reports whether s occupies its slot.
func (s State) Active() bool {
	return s == StateScheduled || s == StateConfirmed || s == StateInProgress
}

var activeStates = []State{StateScheduled, StateConfirmed, StateInProgress}

var validPriorities = map[string]bool{"NORMAL": true, "HIGH": true, "URGENT": true}

// Appointment maps to the appointment table. StaffName and TypeName are
// filled on reads.
type Appointment struct {
	ID                   int64        `json:"id"`
	PatientID            int64        `json:"patient_id"`
	StaffID              int64        `json:"staff_id"`
	StaffName            string       `json:"staff_name,omitempty"`
	TypeID               int          `json:"type_id"`
	TypeName             string       `json:"type_name,omitempty"`
	DepartmentID         int          `json:"department_id"`
	Date                 civil.Date   `json:"appointment_date"`
	StartTime            civil.Clock  `json:"start_time"`
	EndTime              *civil.Clock `json:"end_time,omitempty"`
	ActualDurationMin    *int         `json:"actual_duration_min,omitempty"`
	Reason               *string      `json:"reason,omitempty"`
	Symptoms             *string      `json:"symptoms,omitempty"`
	PreliminaryDiagnosis *string      `json:"preliminary_diagnosis,omitempty"`
	FinalDiagnosis       *string      `json:"final_diagnosis,omitempty"`
	Notes                *string      `json:"notes,omitempty"`
	Recommendations      *string      `json:"recommendations,omitempty"`
	RequiresFollowUp     bool         `json:"requires_follow_up"`
	FollowUpOn           civil.Date   `json:"follow_up_on"`
	Priority             string       `json:"priority"`
	State                State        `json:"state"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// Slot is the key of the one-active-appointment rule.
type Slot struct {
	StaffID   int64
	Date      civil.Date
	StartTime civil.Clock
}

func (a *Appointment) Slot() Slot {
	return Slot{StaffID: a.StaffID, Date: a.Date, StartTime: a.StartTime}
}

type AppointmentType struct {
	ID                        int      `json:"id"`
	Name                      string   `json:"name"`
	DefaultDurationMin        *int     `json:"default_duration_min,omitempty"`
	BaseCost                  *float64 `json:"base_cost,omitempty"`
	Description               *string  `json:"description,omitempty"`
	RequiresPreparation       bool     `json:"requires_preparation"`
	AllowsUrgent              bool     `json:"allows_urgent"`
	RequiresInterconsultation bool     `json:"requires_interconsultation"`
}

// CreateRequest is the body of POST /appointments. DepartmentID defaults to
// the staff member's department.
type CreateRequest struct {
	PatientID    int64        `json:"patient_id"`
	StaffID      int64        `json:"staff_id"`
	TypeID       int          `json:"type_id"`
	DepartmentID int          `json:"department_id"`
	Date         civil.Date   `json:"appointment_date"`
	StartTime    *civil.Clock `json:"start_time"`
	EndTime      *civil.Clock `json:"end_time"`
	Reason       *string      `json:"reason"`
	Symptoms     *string      `json:"symptoms"`
	Priority     string       `json:"priority"`
}

// UpdateRequest is a partial update; nil fields are unchanged. Changing the
// staff member, date or start time re-runs the conflict check.
type UpdateRequest struct {
	StaffID              *int64       `json:"staff_id"`
	TypeID               *int         `json:"type_id"`
	Date                 *civil.Date  `json:"appointment_date"`
	StartTime            *civil.Clock `json:"start_time"`
	EndTime              *civil.Clock `json:"end_time"`
	ActualDurationMin    *int         `json:"actual_duration_min"`
	Reason               *string      `json:"reason"`
	Symptoms             *string      `json:"symptoms"`
	PreliminaryDiagnosis *string      `json:"preliminary_diagnosis"`
	FinalDiagnosis       *string      `json:"final_diagnosis"`
	Notes                *string      `json:"notes"`
	Recommendations      *string      `json:"recommendations"`
	RequiresFollowUp     *bool        `json:"requires_follow_up"`
	FollowUpOn           *civil.Date  `json:"follow_up_on"`
	Priority             *string      `json:"priority"`
	State                *State       `json:"state"`
}

func (u UpdateRequest) movesSlot() bool {
	return u.StaffID != nil || u.Date != nil || u.StartTime != nil
}

func (u UpdateRequest) apply(a *Appointment) {
	if u.StaffID != nil {
		a.StaffID = *u.StaffID
	}
	if u.TypeID != nil {
		a.TypeID = *u.TypeID
	}
	if u.Date != nil {
		a.Date = *u.Date
	}
	if u.StartTime != nil {
		a.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		a.EndTime = u.EndTime
	}
	if u.ActualDurationMin != nil {
		a.ActualDurationMin = u.ActualDurationMin
	}
	if u.Reason != nil {
		a.Reason = u.Reason
	}
	if u.Symptoms != nil {
		a.Symptoms = u.Symptoms
	}
	if u.PreliminaryDiagnosis != nil {
		a.PreliminaryDiagnosis = u.PreliminaryDiagnosis
	}
	if u.FinalDiagnosis != nil {
		a.FinalDiagnosis = u.FinalDiagnosis
	}
	if u.Notes != nil {
		a.Notes = u.Notes
	}
	if u.Recommendations != nil {
		a.Recommendations = u.Recommendations
	}
	if u.RequiresFollowUp != nil {
		a.RequiresFollowUp = *u.RequiresFollowUp
	}
	if u.FollowUpOn != nil {
		a.FollowUpOn = *u.FollowUpOn
	}
	if u.Priority != nil {
		a.Priority = *u.Priority
	}
	if u.State != nil {
		a.State = *u.State
	}
}

type Filter struct {
	DepartmentID int
	Date         civil.Date
	DateFrom     civil.Date
	DateTo       civil.Date
	State        State
	PatientID    int64
	StaffID      int64
	Priority     string
}

// Stats counts appointments per state over [From, To].
type Stats struct {
	From         civil.Date    `json:"from"`
	To           civil.Date    `json:"to"`
	DepartmentID int           `json:"department_id,omitempty"`
	Total        int           `json:"total"`
	ByState      map[State]int `json:"by_state"`
}

// Availability answers a slot probe.
type Availability struct {
	Available   bool         `json:"available"`
	Conflicting *Appointment `json:"conflicting_appointment,omitempty"`
}
