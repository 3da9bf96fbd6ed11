package pharmacy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/auth"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func TestHandler_SearchMedications_DefaultsToAvailable(t *testing.T) {
	h, f, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?name=amox", nil), rec)

	if err := h.SearchMedications(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.meds.lastSeen.OnlyAvailable || f.meds.lastSeen.Name != "amox" {
		t.Errorf("unexpected filter: %+v", f.meds.lastSeen)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", rec.Body.String())
	}
}

func TestHandler_SearchMedications_BadParams(t *testing.T) {
	h, _, e := newTestHandler()
	for _, q := range []string{"?only_available=perhaps", "?limit=0", "?limit=ten"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+q, nil), httptest.NewRecorder())
		if err := h.SearchMedications(c); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("%s: expected validation error, got %v", q, err)
		}
	}
}

func TestHandler_CreateRequest_PrescriberFromSession(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":100,"clinical_record_id":500,"diagnosis":"otitis",
		"items":[{"medication_name":"Amoxicilina","dose":"500 mg","frequency":"every 8h","quantity":21}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{StaffID: 4}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateRequest(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if f.requests.requests[1].PrescriberID != 4 {
		t.Errorf("expected prescriber 4, got %d", f.requests.requests[1].PrescriberID)
	}
}

func TestHandler_CreateRequest_MissingPatient(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":404,"clinical_record_id":500,"prescriber_id":4,"diagnosis":"otitis",
		"items":[{"medication_name":"Amoxicilina","dose":"500 mg","frequency":"every 8h","quantity":21}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := h.CreateRequest(c); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(f.requests.requests) != 0 {
		t.Error("no request may be stored")
	}
}

func TestHandler_GetRequest_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("-3")
	if err := h.GetRequest(c); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
