package pharmacy

import (
	"context"
	"strings"
	"time"

	"github.com/hospital/hospital/internal/domain/staff"
	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/federation"
	"github.com/hospital/hospital/pkg/civil"
)

const (
	joinSource         = "prescription_requests"
	defaultSearchLimit = 50
	maxSearchLimit     = 100
	maxMedicationName  = 100
)

type StaffDirectory interface {
	GetByID(ctx context.Context, id int64) (*staff.Member, error)
	NamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
}

type View = federation.Composite[*PrescriptionRequest]

type Service struct {
	medications MedicationRepository
	requests    RequestRepository
	staff       StaffDirectory
	patients    *federation.Engine
	now         func() time.Time
}

func NewService(medications MedicationRepository, requests RequestRepository, staffDir StaffDirectory, patients *federation.Engine) *Service {
	return &Service{medications: medications, requests: requests, staff: staffDir, patients: patients, now: time.Now}
}

// SearchMedications queries the central inventory. A zero limit means the
// default; larger limits are clamped.
func (s *Service) SearchMedications(ctx context.Context, f MedicationFilter) ([]*Medication, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultSearchLimit
	case f.Limit > maxSearchLimit:
		f.Limit = maxSearchLimit
	}
	f.Name = strings.TrimSpace(f.Name)
	f.ActiveIngredient = strings.TrimSpace(f.ActiveIngredient)
	f.Category = strings.TrimSpace(f.Category)

	meds, err := s.medications.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	today := civil.DateOf(s.now())
	for _, m := range meds {
		if !m.ExpiresOn.IsZero() {
			days := today.DaysUntil(m.ExpiresOn)
			m.DaysToExpiry = &days
		}
	}
	return meds, nil
}

func validateItems(items []LineItem) error {
	if len(items) == 0 {
		return apperr.Validation("at least one line item is required")
	}
	for i := range items {
		it := &items[i]
		it.MedicationName = strings.TrimSpace(it.MedicationName)
		it.Dose = strings.TrimSpace(it.Dose)
		it.Frequency = strings.TrimSpace(it.Frequency)
		switch {
		case it.MedicationName == "":
			return apperr.Validationf("items[%d]: medication_name is required", i)
		case len(it.MedicationName) > maxMedicationName:
			return apperr.Validationf("items[%d]: medication_name is too long", i)
		case it.Dose == "":
			return apperr.Validationf("items[%d]: dose is required", i)
		case it.Frequency == "":
			return apperr.Validationf("items[%d]: frequency is required", i)
		case it.Quantity <= 0:
			return apperr.Validationf("items[%d]: quantity must be positive", i)
		case it.DurationDays != nil && *it.DurationDays <= 0:
			return apperr.Validationf("items[%d]: duration_days must be positive", i)
		}
	}
	return nil
}

// Create verifies the central references before writing anything, then
// stores the request and its items in one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*PrescriptionRequest, error) {
	req.Diagnosis = strings.TrimSpace(req.Diagnosis)
	switch {
	case req.PatientID <= 0:
		return nil, apperr.Validation("patient_id is required")
	case req.ClinicalRecordID <= 0:
		return nil, apperr.Validation("clinical_record_id is required")
	case req.PrescriberID <= 0:
		return nil, apperr.Validation("prescriber_id is required")
	case req.Diagnosis == "":
		return nil, apperr.Validation("diagnosis is required")
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	prescriber, err := s.staff.GetByID(ctx, req.PrescriberID)
	if err != nil {
		return nil, err
	}
	if _, err := s.patients.RequirePatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	if err := s.patients.RequireClinicalRecord(ctx, req.PatientID, req.ClinicalRecordID); err != nil {
		return nil, err
	}
	if req.AppointmentID != nil {
		ok, err := s.requests.AppointmentExists(ctx, *req.AppointmentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Validationf("appointment %d not found", *req.AppointmentID)
		}
	}

	pr := &PrescriptionRequest{
		PatientID:        req.PatientID,
		ClinicalRecordID: req.ClinicalRecordID,
		AppointmentID:    req.AppointmentID,
		PrescriberID:     prescriber.ID,
		PrescriberName:   prescriber.FullName(),
		Diagnosis:        req.Diagnosis,
		MedicalNotes:     req.MedicalNotes,
		Urgent:           req.Urgent,
		State:            Lifecycle.Initial(),
		Items:            req.Items,
	}
	if err := s.requests.Create(ctx, pr); err != nil {
		return nil, err
	}
	return pr, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	pr, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rows := []*PrescriptionRequest{pr}
	if err := s.loadItems(ctx, rows); err != nil {
		return nil, err
	}
	if err := s.fillNames(ctx, rows); err != nil {
		return nil, err
	}
	link, err := s.patients.Lookup(ctx, joinSource, pr.PatientID)
	if err != nil {
		return nil, err
	}
	return &View{Record: pr, Patient: link}, nil
}

// List loads line items and prescriber names concurrently with the patient
// batch.
func (s *Service) List(ctx context.Context, f RequestFilter, skip, limit int) ([]View, int, error) {
	if f.State != "" && !Lifecycle.Known(f.State) {
		return nil, 0, apperr.Validationf("invalid prescription request state: %s", f.State)
	}
	rows, total, err := s.requests.List(ctx, f, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	views, err := federation.Join(ctx, s.patients, joinSource, rows,
		func(pr *PrescriptionRequest) int64 { return pr.PatientID },
		func(ctx context.Context) error { return s.loadItems(ctx, rows) },
		func(ctx context.Context) error { return s.fillNames(ctx, rows) },
	)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func (s *Service) loadItems(ctx context.Context, rows []*PrescriptionRequest) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	for i, pr := range rows {
		ids[i] = pr.ID
	}
	items, err := s.requests.ItemsFor(ctx, ids)
	if err != nil {
		return err
	}
	for _, pr := range rows {
		pr.Items = items[pr.ID]
		if pr.Items == nil {
			pr.Items = []LineItem{}
		}
	}
	return nil
}

func (s *Service) fillNames(ctx context.Context, rows []*PrescriptionRequest) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	for i, pr := range rows {
		ids[i] = pr.PrescriberID
	}
	names, err := s.staff.NamesByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, pr := range rows {
		pr.PrescriberName = names[pr.PrescriberID]
	}
	return nil
}
