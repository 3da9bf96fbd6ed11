package interconsult

import (
	"context"
	"strings"
	"time"

	"github.com/hospital/hospital/internal/domain/staff"
	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/federation"
	"github.com/hospital/hospital/internal/platform/telemetry"
	"github.com/hospital/hospital/pkg/civil"
)

const (
	joinSource        = "interconsultations"
	defaultStatsRange = 30
)

type StaffDirectory interface {
	GetByID(ctx context.Context, id int64) (*staff.Member, error)
	NamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
}

type View = federation.Composite[*Interconsultation]

type Service struct {
	repo     Repository
	staff    StaffDirectory
	patients *federation.Engine
	metrics  *telemetry.Metrics
	now      func() time.Time
}

func NewService(repo Repository, staffDir StaffDirectory, patients *federation.Engine, metrics *telemetry.Metrics) *Service {
	return &Service{repo: repo, staff: staffDir, patients: patients, metrics: metrics, now: time.Now}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Interconsultation, error) {
	req.DestinationDepartment = strings.TrimSpace(req.DestinationDepartment)
	req.Reason = strings.TrimSpace(req.Reason)
	switch {
	case req.PatientID <= 0:
		return nil, apperr.Validation("patient_id is required")
	case req.RequestingStaffID <= 0:
		return nil, apperr.Validation("requesting_staff_id is required")
	case req.DestinationDepartment == "":
		return nil, apperr.Validation("destination_department is required")
	case len(req.DestinationDepartment) > 100:
		return nil, apperr.Validation("destination_department must be at most 100 characters")
	case req.Reason == "":
		return nil, apperr.Validation("reason is required")
	}
	today := civil.DateOf(s.now())
	if !req.ExpectedResponseOn.IsZero() && req.ExpectedResponseOn.Before(today) {
		return nil, apperr.Validation("expected_response_on must not be in the past")
	}

	requester, err := s.staff.GetByID(ctx, req.RequestingStaffID)
	if err != nil {
		return nil, err
	}
	if _, err := s.patients.RequirePatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	if req.OriginAppointmentID != nil {
		ok, err := s.repo.AppointmentExists(ctx, *req.OriginAppointmentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Validationf("origin appointment %d not found", *req.OriginAppointmentID)
		}
	}

	ic := &Interconsultation{
		PatientID:              req.PatientID,
		OriginAppointmentID:    req.OriginAppointmentID,
		RequestingStaffID:      requester.ID,
		RequestingStaffName:    requester.FullName(),
		RequestingDepartmentID: requester.DepartmentID,
		DestinationDepartment:  req.DestinationDepartment,
		Reason:                 req.Reason,
		RelevantFindings:       req.RelevantFindings,
		SpecificQuestion:       req.SpecificQuestion,
		Urgent:                 req.Urgent,
		RequestedOn:            today,
		ExpectedResponseOn:     req.ExpectedResponseOn,
		State:                  Lifecycle.Initial(),
	}
	if err := s.repo.Create(ctx, ic); err != nil {
		return nil, err
	}
	return ic, nil
}

// Respond answers a pending interconsultation, stamping the responder and
// today's date. A second answer is rejected and leaves the first intact.
func (s *Service) Respond(ctx context.Context, id int64, req RespondRequest) (*Interconsultation, error) {
	ic, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := ic.State
	if err := Lifecycle.Check(prev, StateResponded); err != nil {
		return nil, err
	}

	req.Response = strings.TrimSpace(req.Response)
	req.ResponderName = strings.TrimSpace(req.ResponderName)
	if req.Response == "" {
		return nil, apperr.Validation("response is required")
	}
	if req.ResponderName == "" {
		return nil, apperr.Validation("responder_name is required")
	}
	ic.State = StateResponded
	ic.Response = &req.Response
	ic.ResponderName = &req.ResponderName
	ic.RespondedOn = civil.DateOf(s.now())
	if err := s.repo.Respond(ctx, ic); err != nil {
		return nil, err
	}
	s.metrics.Transition(Lifecycle.Name(), string(prev), string(ic.State))
	return ic, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	ic, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.fillNames(ctx, []*Interconsultation{ic}); err != nil {
		return nil, err
	}
	link, err := s.patients.Lookup(ctx, joinSource, ic.PatientID)
	if err != nil {
		return nil, err
	}
	return &View{Record: ic, Patient: link}, nil
}

// List orders urgent requests first, then the newest.
func (s *Service) List(ctx context.Context, f Filter, skip, limit int) ([]View, int, error) {
	if f.State != "" && !Lifecycle.Known(f.State) {
		return nil, 0, apperr.Validationf("invalid interconsultation state: %s", f.State)
	}
	rows, total, err := s.repo.List(ctx, f, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	views, err := federation.Join(ctx, s.patients, joinSource, rows,
		func(ic *Interconsultation) int64 { return ic.PatientID },
		func(ctx context.Context) error { return s.fillNames(ctx, rows) },
	)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func (s *Service) fillNames(ctx context.Context, rows []*Interconsultation) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	for i, ic := range rows {
		ids[i] = ic.RequestingStaffID
	}
	names, err := s.staff.NamesByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, ic := range rows {
		ic.RequestingStaffName = names[ic.RequestingStaffID]
	}
	return nil
}

func (s *Service) Stats(ctx context.Context, from, to civil.Date) (*Stats, error) {
	if to.IsZero() {
		to = civil.DateOf(s.now())
	}
	if from.IsZero() {
		from = to.AddDays(-defaultStatsRange)
	}
	if to.Before(from) {
		return nil, apperr.Validation("date_from must not be after date_to")
	}
	return s.repo.Stats(ctx, from, to)
}
