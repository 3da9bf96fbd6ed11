package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hospital/hospital/internal/domain/staff"
	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/federation"
	"github.com/hospital/hospital/internal/platform/telemetry"
	"github.com/hospital/hospital/pkg/civil"
)

const (
	joinSource        = "appointments"
	defaultStatsRange = 30
)

// StaffDirectory is the part of the staff repository scheduling reads.
type StaffDirectory interface {
	GetByID(ctx context.Context, id int64) (*staff.Member, error)
	NamesByIDs(ctx context.Context, ids []int64) (map[int64]string, error)
	DepartmentByID(ctx context.Context, id int) (*staff.Department, error)
}

type View = federation.Composite[*Appointment]

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

// CheckConflict returns the active appointment occupying the slot, ignoring
// excludeID, or nil when the slot is free. Slots match on exact start time.
func (s *Service) CheckConflict(ctx context.Context, slot Slot, excludeID int64) (*Appointment, error) {
	return s.repo.FindActiveInSlot(ctx, slot, excludeID)
}

func conflictError(c *Appointment) error {
	return apperr.Newf(apperr.KindScheduleConflict,
		"staff member %d already has appointment %d on %s at %s", c.StaffID, c.ID, c.Date, c.StartTime).
		WithDetail("conflicting_appointment_id", c.ID).
		WithDetail("conflicting_state", string(c.State))
}

// claimSlot runs write inside a transaction holding the slot lock, after
// verifying nothing else occupies the slot. A unique-index violation raised
// by a writer that bypassed the lock is reported like any other conflict.
func (s *Service) claimSlot(ctx context.Context, slot Slot, excludeID int64, write func(ctx context.Context) error) error {
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockSlot(ctx, slot); err != nil {
			return err
		}
		existing, err := s.repo.FindActiveInSlot(ctx, slot, excludeID)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflictError(existing)
		}
		return write(ctx)
	})
	if errors.Is(err, errSlotTaken) {
		existing, ferr := s.repo.FindActiveInSlot(ctx, slot, excludeID)
		if ferr != nil {
			return ferr
		}
		if existing != nil {
			err = conflictError(existing)
		}
	}
	if apperr.IsKind(err, apperr.KindScheduleConflict) {
		s.metrics.Conflict()
	}
	return err
}

func validateTimes(start civil.Clock, end *civil.Clock) error {
	if end != nil && !start.Before(*end) {
		return apperr.Validation("end_time must be after start_time")
	}
	return nil
}

func (s *Service) activeStaff(ctx context.Context, id int64) (*staff.Member, error) {
	m, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.State != staff.StateActive {
		return nil, apperr.Validationf("staff member %d is %s", id, m.State)
	}
	return m, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	switch {
	case req.PatientID <= 0:
		return nil, apperr.Validation("patient_id is required")
	case req.StaffID <= 0:
		return nil, apperr.Validation("staff_id is required")
	case req.TypeID <= 0:
		return nil, apperr.Validation("type_id is required")
	case req.Date.IsZero():
		return nil, apperr.Validation("appointment_date is required")
	case req.StartTime == nil:
		return nil, apperr.Validation("start_time is required")
	}
	if err := validateTimes(*req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	priority := strings.ToUpper(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = "NORMAL"
	}
	if !validPriorities[priority] {
		return nil, apperr.Validationf("invalid priority: %s", req.Priority)
	}

	member, err := s.activeStaff(ctx, req.StaffID)
	if err != nil {
		return nil, err
	}
	apptType, err := s.repo.TypeByID(ctx, req.TypeID)
	if err != nil {
		return nil, err
	}
	if priority == "URGENT" && !apptType.AllowsUrgent {
		return nil, apperr.Validationf("appointment type %s does not allow urgent priority", apptType.Name)
	}
	if _, err := s.patients.RequirePatient(ctx, req.PatientID); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:    req.PatientID,
		StaffID:      req.StaffID,
		StaffName:    member.FullName(),
		TypeID:       req.TypeID,
		TypeName:     apptType.Name,
		DepartmentID: req.DepartmentID,
		Date:         req.Date,
		StartTime:    *req.StartTime,
		EndTime:      req.EndTime,
		Reason:       req.Reason,
		Symptoms:     req.Symptoms,
		Priority:     priority,
		State:        Lifecycle.Initial(),
	}
	if a.DepartmentID == 0 {
		a.DepartmentID = member.DepartmentID
	} else if _, err := s.staff.DepartmentByID(ctx, a.DepartmentID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation(apperr.From(err).Message)
		}
		return nil, err
	}

	if err := s.claimSlot(ctx, a.Slot(), 0, func(ctx context.Context) error {
		return s.repo.Create(ctx, a)
	}); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.fillNames(ctx, []*Appointment{a}); err != nil {
		return nil, err
	}
	link, err := s.patients.Lookup(ctx, joinSource, a.PatientID)
	if err != nil {
		return nil, err
	}
	return &View{Record: a, Patient: link}, nil
}

// List returns composite rows. Staff and type names are read from the
// department store while the patients are fetched from the central store.
func (s *Service) List(ctx context.Context, f Filter, skip, limit int) ([]View, int, error) {
	if f.State != "" && !Lifecycle.Known(f.State) {
		return nil, 0, apperr.Validationf("invalid appointment state: %s", f.State)
	}
	rows, total, err := s.repo.List(ctx, f, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	views, err := federation.Join(ctx, s.patients, joinSource, rows,
		func(a *Appointment) int64 { return a.PatientID },
		func(ctx context.Context) error { return s.fillNames(ctx, rows) },
	)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func (s *Service) Today(ctx context.Context, departmentID int, skip, limit int) ([]View, int, error) {
	return s.List(ctx, Filter{Date: civil.DateOf(s.now()), DepartmentID: departmentID}, skip, limit)
}

func (s *Service) fillNames(ctx context.Context, rows []*Appointment) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.StaffID)
	}
	names, err := s.staff.NamesByIDs(ctx, ids)
	if err != nil {
		return err
	}
	types, err := s.repo.Types(ctx)
	if err != nil {
		return err
	}
	typeNames := make(map[int]string, len(types))
	for _, t := range types {
		typeNames[t.ID] = t.Name
	}
	for _, a := range rows {
		a.StaffName = names[a.StaffID]
		a.TypeName = typeNames[a.TypeID]
	}
	return nil
}

// Update applies a partial update. A state change must be an edge of
// Lifecycle; moving the slot of an active appointment re-runs the conflict
// check excluding the appointment itself.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := a.State

	if req.State != nil && *req.State != prev {
		if err := Lifecycle.Check(prev, *req.State); err != nil {
			return nil, err
		}
	}
	if req.movesSlot() && !prev.Active() {
		return nil, apperr.InvalidTransition("appointment", string(prev), string(prev)).
			WithDetail("reason", "a closed appointment cannot be rescheduled")
	}
	if req.Priority != nil {
		p := strings.ToUpper(*req.Priority)
		if !validPriorities[p] {
			return nil, apperr.Validationf("invalid priority: %s", *req.Priority)
		}
		req.Priority = &p
	}

	oldSlot := a.Slot()
	req.apply(a)
	if err := validateTimes(a.StartTime, a.EndTime); err != nil {
		return nil, err
	}
	if req.StaffID != nil && *req.StaffID != oldSlot.StaffID {
		if _, err := s.activeStaff(ctx, a.StaffID); err != nil {
			return nil, err
		}
	}
	if req.TypeID != nil {
		if _, err := s.repo.TypeByID(ctx, a.TypeID); err != nil {
			return nil, err
		}
	}

	write := func(ctx context.Context) error { return s.repo.Update(ctx, a, prev) }
	if a.State.Active() && a.Slot() != oldSlot {
		err = s.claimSlot(ctx, a.Slot(), a.ID, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}
	if a.State != prev {
		s.metrics.Transition(Lifecycle.Name(), string(prev), string(a.State))
	}
	return a, nil
}

// Cancel moves a non-final appointment to CANCELLED, appending reason to
// its notes.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := a.State
	if err := Lifecycle.Check(prev, StateCancelled); err != nil {
		return nil, err
	}
	a.State = StateCancelled
	if reason = strings.TrimSpace(reason); reason != "" {
		note := "Cancelled: " + reason
		if a.Notes != nil && *a.Notes != "" {
			note = *a.Notes + "\n" + note
		}
		a.Notes = &note
	}
	if err := s.repo.Update(ctx, a, prev); err != nil {
		return nil, err
	}
	s.metrics.Transition(Lifecycle.Name(), string(prev), string(a.State))
	return a, nil
}

func (s *Service) Availability(ctx context.Context, slot Slot, excludeID int64) (*Availability, error) {
	if slot.StaffID <= 0 || slot.Date.IsZero() {
		return nil, apperr.Validation("staff_id and date are required")
	}
	c, err := s.CheckConflict(ctx, slot, excludeID)
	if err != nil {
		return nil, err
	}
	return &Availability{Available: c == nil, Conflicting: c}, nil
}

func (s *Service) Types(ctx context.Context) ([]AppointmentType, error) {
	return s.repo.Types(ctx)
}

// Stats counts appointments per state. The range defaults to the last 30
// days ending today.
func (s *Service) Stats(ctx context.Context, from, to civil.Date, departmentID int) (*Stats, error) {
	if to.IsZero() {
		to = civil.DateOf(s.now())
	}
	if from.IsZero() {
		from = to.AddDays(-defaultStatsRange)
	}
	if to.Before(from) {
		return nil, apperr.Validation("date_from must not be after date_to")
	}
	counts, err := s.repo.CountByState(ctx, from, to, departmentID)
	if err != nil {
		return nil, err
	}
	st := &Stats{From: from, To: to, DepartmentID: departmentID, ByState: make(map[State]int)}
	for _, state := range []State{StateScheduled, StateConfirmed, StateInProgress, StateCompleted, StateCancelled, StateNoShow} {
		st.ByState[state] = counts[state]
		st.Total += counts[state]
	}
	return st, nil
}
