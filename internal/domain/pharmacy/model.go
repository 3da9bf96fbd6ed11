package pharmacy

import (
	"time"

	"github.com/hospital/hospital/internal/platform/statemachine"
	"github.com/hospital/hospital/pkg/civil"
)

type MedicationState string

const (
	MedicationAvailable  MedicationState = "AVAILABLE"
	MedicationOutOfStock MedicationState = "OUT_OF_STOCK"
	MedicationExpired    MedicationState = "EXPIRED"
	MedicationWithdrawn  MedicationState = "WITHDRAWN"
)

// Ref is a catalog entry embedded by id and name.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Medication is a central-store inventory row. DaysToExpiry is computed
// against the current date when the row is served.
type Medication struct {
	ID               int             `json:"id"`
	Name             string          `json:"name"`
	ActiveIngredient string          `json:"active_ingredient"`
	Description      *string         `json:"description,omitempty"`
	Strength         *string         `json:"strength,omitempty"`
	DosageForm       *string         `json:"dosage_form,omitempty"`
	StockCurrent     int             `json:"stock_current"`
	StockMin         int             `json:"stock_min"`
	UnitPrice        *float64        `json:"unit_price,omitempty"`
	ExpiresOn        civil.Date      `json:"expires_on"`
	State            MedicationState `json:"state"`
	Laboratory       *Ref            `json:"laboratory"`
	Category         *Ref            `json:"category"`
	DaysToExpiry     *int            `json:"days_to_expiry"`
}

type MedicationFilter struct {
	Name             string
	ActiveIngredient string
	Category         string
	OnlyAvailable    bool
	Limit            int
}

type RequestState string

const StateSubmitted RequestState = "SUBMITTED"

// Lifecycle has no transitions yet: a request is submitted once and then
// handled by the central pharmacy outside this system.
var Lifecycle = statemachine.New[RequestState]("prescription_request", StateSubmitted, nil)

// PrescriptionRequest lives in the department store and references the
// patient and clinical record of the central store by id only.
type PrescriptionRequest struct {
	ID               int64        `json:"id"`
	PatientID        int64        `json:"patient_id"`
	ClinicalRecordID int64        `json:"clinical_record_id"`
	AppointmentID    *int64       `json:"appointment_id,omitempty"`
	PrescriberID     int64        `json:"prescriber_id"`
	PrescriberName   string       `json:"prescriber_name,omitempty"`
	Diagnosis        string       `json:"diagnosis"`
	MedicalNotes     *string      `json:"medical_notes,omitempty"`
	Urgent           bool         `json:"urgent"`
	RequestedAt      time.Time    `json:"requested_at"`
	State            RequestState `json:"state"`
	Items            []LineItem   `json:"items"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

type LineItem struct {
	ID               int64   `json:"id"`
	RequestID        int64   `json:"request_id"`
	MedicationName   string  `json:"medication_name"`
	ActiveIngredient *string `json:"active_ingredient,omitempty"`
	Strength         *string `json:"strength,omitempty"`
	DosageForm       *string `json:"dosage_form,omitempty"`
	Dose             string  `json:"dose"`
	Frequency        string  `json:"frequency"`
	DurationDays     *int    `json:"duration_days,omitempty"`
	Quantity         int     `json:"quantity"`
	Route            *string `json:"route,omitempty"`
	Instructions     *string `json:"instructions,omitempty"`
}

type CreateRequest struct {
	PatientID        int64      `json:"patient_id"`
	ClinicalRecordID int64      `json:"clinical_record_id"`
	AppointmentID    *int64     `json:"appointment_id"`
	PrescriberID     int64      `json:"prescriber_id"`
	Diagnosis        string     `json:"diagnosis"`
	MedicalNotes     *string    `json:"medical_notes"`
	Urgent           bool       `json:"urgent"`
	Items            []LineItem `json:"items"`
}

type RequestFilter struct {
	State        RequestState
	Urgent       *bool
	PrescriberID int64
	DateFrom     civil.Date
}
