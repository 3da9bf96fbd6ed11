package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/hospital/hospital/internal/domain/interconsult"
	"github.com/hospital/hospital/internal/platform/apperr"
)

func TestInterconsultationRespondOnce(t *testing.T) {
	ctx := context.Background()
	svc := interconsult.NewService(interconsult.NewRepoPG(env.Department), env.StaffRepo, env.Engine, env.Metrics)
	requester := createTestStaff(t, ctx, "Elena", "Cruz", "MEDICO_ESPECIALISTA")
	p := createTestPatient(t, ctx, "Tomas", "Leon")

	ic, err := svc.Create(ctx, interconsult.CreateRequest{
		PatientID:             p.ID,
		RequestingStaffID:     requester.ID,
		DestinationDepartment: "Cardiologia",
		Reason:                "Chest pain on exertion",
		Urgent:                true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ic.State != interconsult.StatePending {
		t.Fatalf("expected PENDING, got %s", ic.State)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"Dr. Uno", "Dr. Dos"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = svc.Respond(ctx, ic.ID, interconsult.RespondRequest{Response: "Seen by " + name, ResponderName: name})
		}(i, name)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.IsKind(err, apperr.KindInvalidTransition):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("expected one answer and one rejection, got %d and %d", ok, rejected)
	}

	view, err := svc.Get(ctx, ic.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Record.State != interconsult.StateResponded || view.Record.ResponderName == nil {
		t.Fatalf("unexpected record %+v", view.Record)
	}
	if *view.Record.Response != "Seen by "+*view.Record.ResponderName {
		t.Errorf("response and responder come from different attempts: %q by %q", *view.Record.Response, *view.Record.ResponderName)
	}
	if !view.Patient.IsResolved() {
		t.Errorf("expected resolved patient link, got %+v", view.Patient)
	}
}

func TestInterconsultationUnknownOriginAppointment(t *testing.T) {
	ctx := context.Background()
	svc := interconsult.NewService(interconsult.NewRepoPG(env.Department), env.StaffRepo, env.Engine, env.Metrics)
	requester := createTestStaff(t, ctx, "Rosa", "Paz", "MEDICO_ESPECIALISTA")
	p := createTestPatient(t, ctx, "Ivan", "Sola")

	missing := int64(987654)
	_, err := svc.Create(ctx, interconsult.CreateRequest{
		PatientID:             p.ID,
		OriginAppointmentID:   &missing,
		RequestingStaffID:     requester.ID,
		DestinationDepartment: "Neurologia",
		Reason:                "Recurrent headaches",
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
