package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hospital/hospital/internal/platform/apperr"
)

func TestCapabilities_Has(t *testing.T) {
	caps := Capabilities{CanPrescribe: true, CanSchedule: true}
	tests := []struct {
		cap  Capability
		want bool
	}{
		{CanPrescribe, true},
		{CanSchedule, true},
		{CanViewRecords, false},
		{IsAdmin, false},
		{Capability("unknown"), false},
	}
	for _, tt := range tests {
		if got := caps.Has(tt.cap); got != tt.want {
			t.Errorf("Has(%q) = %v, want %v", tt.cap, got, tt.want)
		}
	}
}

func TestCapabilities_AdminOverride(t *testing.T) {
	admin := Capabilities{IsAdmin: true}
	if admin.Has(CanViewFinance) {
		t.Error("raw flag should be false")
	}
	if !admin.Allows(CanViewFinance) {
		t.Error("admin should be allowed every capability")
	}
}

func TestDefaultRoles(t *testing.T) {
	byName := map[string]RoleGrant{}
	for _, r := range DefaultRoles {
		byName[r.Name] = r
	}
	if len(byName) != 5 {
		t.Fatalf("expected 5 roles, got %d", len(byName))
	}
	if !byName["DIRECTOR"].Capabilities.IsAdmin {
		t.Error("DIRECTOR should be admin")
	}
	if byName["ENFERMERO"].Capabilities.CanPrescribe {
		t.Error("ENFERMERO should not prescribe")
	}
	if !byName["ADMINISTRATIVO"].Capabilities.CanSchedule {
		t.Error("ADMINISTRATIVO should schedule")
	}
}

func runCapability(t *testing.T, claims *Claims, caps ...Capability) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if claims != nil {
		req = req.WithContext(WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireCapability(caps...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return rec, h(c)
}

func TestRequireCapability_Allowed(t *testing.T) {
	claims := &Claims{StaffID: 1, Role: "MEDICO_GENERAL", Capabilities: Capabilities{CanPrescribe: true}}
	rec, err := runCapability(t, claims, CanPrescribe)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireCapability_AnyOf(t *testing.T) {
	claims := &Claims{StaffID: 1, Capabilities: Capabilities{CanSchedule: true}}
	if _, err := runCapability(t, claims, CanViewRecords, CanSchedule); err != nil {
		t.Fatalf("expected any-of match, got %v", err)
	}
}

func TestRequireCapability_Forbidden(t *testing.T) {
	claims := &Claims{StaffID: 3, Role: "ENFERMERO", Capabilities: Capabilities{CanViewRecords: true}}
	_, err := runCapability(t, claims, CanPrescribe)
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if apperr.From(err).Details["role"] != "ENFERMERO" {
		t.Errorf("expected role detail, got %v", apperr.From(err).Details)
	}
}

func TestRequireCapability_AdminPasses(t *testing.T) {
	claims := &Claims{StaffID: 1, Role: "DIRECTOR", Capabilities: Capabilities{IsAdmin: true}}
	if _, err := runCapability(t, claims, CanViewFinance); err != nil {
		t.Fatalf("admin should pass, got %v", err)
	}
}

func TestRequireCapability_NoClaims(t *testing.T) {
	_, err := runCapability(t, nil, CanSchedule)
	if !apperr.IsKind(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
