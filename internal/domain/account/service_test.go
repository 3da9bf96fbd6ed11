package account

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/hospital/hospital/internal/domain/staff"
	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/auth"
	"github.com/hospital/hospital/internal/platform/telemetry"
)

// mockRepo mirrors the conditional updates of the postgres repository.
type mockRepo struct {
	creds  map[string]*Credential
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{creds: make(map[string]*Credential)}
}

func (m *mockRepo) byID(id int64) *Credential {
	for _, c := range m.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *mockRepo) FindByUsername(_ context.Context, username string) (*Credential, error) {
	c, ok := m.creds[username]
	if !ok {
		return nil, apperr.NotFound("account", username)
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Account, error) {
	c := m.byID(id)
	if c == nil {
		return nil, apperr.NotFound("account", id)
	}
	a := c.Account
	return &a, nil
}

func (m *mockRepo) Create(_ context.Context, a *Account) error {
	if _, ok := m.creds[a.Username]; ok {
		return apperr.Validationf("username %s is already taken", a.Username)
	}
	m.nextID++
	a.ID = m.nextID
	a.Active = true
	m.creds[a.Username] = &Credential{Account: *a, StaffState: "ACTIVE", RoleName: "ENFERMERO"}
	return nil
}

func (m *mockRepo) RecordFailure(_ context.Context, id int64, max int) (int, bool, error) {
	c := m.byID(id)
	if c == nil || !c.Active {
		return 0, false, apperr.NotFound("active account", id)
	}
	c.FailedAttempts++
	c.Active = c.FailedAttempts < max
	return c.FailedAttempts, c.Active, nil
}

func (m *mockRepo) RecordSuccess(_ context.Context, id int64) error {
	c := m.byID(id)
	if c == nil || !c.Active {
		return apperr.NotFound("active account", id)
	}
	now := time.Now()
	c.FailedAttempts = 0
	c.LastAccess = &now
	return nil
}

func (m *mockRepo) Unlock(_ context.Context, id int64) (*Account, error) {
	c := m.byID(id)
	if c == nil {
		return nil, apperr.NotFound("account", id)
	}
	c.Active = true
	c.FailedAttempts = 0
	a := c.Account
	return &a, nil
}

type mockStaff map[int64]*staff.Member

func (m mockStaff) GetByID(_ context.Context, id int64) (*staff.Member, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, apperr.NotFound("staff member", id)
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	sessions *auth.SessionManager
	revs     *auth.MemoryRevocationStore
	metrics  *telemetry.Metrics
}

const secret = "correct horse battery"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMockRepo()
	hasher := auth.NewBcryptHasher(4)
	digest, err := hasher.Hash(secret)
	if err != nil {
		t.Fatal(err)
	}
	repo.creds["nurse1"] = &Credential{
		Account:      Account{ID: 1, StaffID: 3, Username: "nurse1", PasswordHash: digest, Active: true},
		StaffState:   "ACTIVE",
		RoleName:     "ENFERMERO",
		DepartmentID: 2,
		Capabilities: auth.Capabilities{CanViewRecords: true, CanSchedule: true},
	}
	repo.nextID = 1

	sessions := auth.NewSessionManager(auth.SessionConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "hospital-test",
	})
	revs := auth.NewMemoryRevocationStore()
	t.Cleanup(revs.Close)
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	staffLookup := mockStaff{3: {ID: 3, FirstName: "Rosa", LastName: "Diaz"}, 9: {ID: 9}}

	svc := NewService(repo, staffLookup, sessions, revs, hasher, Config{MaxFailedAttempts: 5}, metrics, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, sessions: sessions, revs: revs, metrics: metrics}
}

func TestAuthenticate_Success(t *testing.T) {
	f := newFixture(t)
	f.repo.creds["nurse1"].FailedAttempts = 3

	sess, err := f.svc.Authenticate(context.Background(), "nurse1", secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Claims.StaffID != 3 || sess.Claims.Role != "ENFERMERO" || sess.Claims.DepartmentID != 2 {
		t.Errorf("unexpected claims: %+v", sess.Claims)
	}
	if !sess.Claims.Capabilities.CanSchedule || sess.Claims.Capabilities.CanPrescribe {
		t.Errorf("capabilities not embedded: %+v", sess.Claims.Capabilities)
	}
	c := f.repo.creds["nurse1"]
	if c.FailedAttempts != 0 || c.LastAccess == nil {
		t.Errorf("success must reset the counter and stamp last_access: %+v", c.Account)
	}
	if got := testutil.ToFloat64(f.metrics.AuthAttempts.WithLabelValues("success")); got != 1 {
		t.Errorf("expected one success attempt recorded, got %v", got)
	}
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Authenticate(context.Background(), "ghost", secret)
	if !apperr.IsKind(err, apperr.KindInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAuthenticate_WrongSecretIncrements(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Authenticate(context.Background(), "nurse1", "nope")
	if !apperr.IsKind(err, apperr.KindInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if f.repo.creds["nurse1"].FailedAttempts != 1 {
		t.Errorf("expected 1 failed attempt, got %d", f.repo.creds["nurse1"].FailedAttempts)
	}
}

func TestAuthenticate_LockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := f.svc.Authenticate(ctx, "nurse1", "wrong"); !apperr.IsKind(err, apperr.KindInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	if _, err := f.svc.Authenticate(ctx, "nurse1", "wrong"); !apperr.IsKind(err, apperr.KindAccountLocked) {
		t.Fatalf("attempt 5: expected account locked, got %v", err)
	}

	c := f.repo.creds["nurse1"]
	if c.Active || c.FailedAttempts != 5 {
		t.Fatalf("expected inactive account with 5 failures, got active=%v attempts=%d", c.Active, c.FailedAttempts)
	}

	if _, err := f.svc.Authenticate(ctx, "nurse1", secret); !apperr.IsKind(err, apperr.KindAccountLocked) {
		t.Fatalf("attempt 6 with correct secret: expected account locked, got %v", err)
	}
	if c.FailedAttempts != 5 {
		t.Errorf("locked account counter must not move, got %d", c.FailedAttempts)
	}
	if got := testutil.ToFloat64(f.metrics.AccountLockouts); got != 1 {
		t.Errorf("expected one lockout recorded, got %v", got)
	}
}

func TestAuthenticate_AdminDisabledAccount(t *testing.T) {
	f := newFixture(t)
	f.repo.creds["nurse1"].Active = false

	if _, err := f.svc.Authenticate(context.Background(), "nurse1", secret); !apperr.IsKind(err, apperr.KindInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAuthenticate_InactiveStaff(t *testing.T) {
	f := newFixture(t)
	f.repo.creds["nurse1"].StaffState = "SUSPENDED"

	if _, err := f.svc.Authenticate(context.Background(), "nurse1", secret); !apperr.IsKind(err, apperr.KindInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAuthenticate_MissingFields(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Authenticate(context.Background(), " ", ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnlock_RestoresLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.svc.Authenticate(ctx, "nurse1", "wrong")
	}

	a, err := f.svc.Unlock(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Active || a.FailedAttempts != 0 {
		t.Errorf("unexpected account after unlock: %+v", a)
	}
	if _, err := f.svc.Authenticate(ctx, "nurse1", secret); err != nil {
		t.Errorf("expected login after unlock, got %v", err)
	}
}

func TestLogout_RevokesJTI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.svc.Authenticate(ctx, "nurse1", secret)

	if err := f.svc.Logout(ctx, sess.Claims); err != nil {
		t.Fatal(err)
	}
	if revoked, _ := f.revs.IsRevoked(ctx, sess.Claims.ID); !revoked {
		t.Error("expected JTI to be revoked")
	}
	if err := f.svc.Logout(ctx, nil); !apperr.IsKind(err, apperr.KindUnauthenticated) {
		t.Errorf("expected unauthenticated without claims, got %v", err)
	}
}

func TestRefresh_NotNearExpiryKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.svc.Authenticate(ctx, "nurse1", secret)

	resp, err := f.svc.Refresh(ctx, sess.Token)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Refreshed || resp.Token != sess.Token {
		t.Error("expected the same token back")
	}
	if revoked, _ := f.revs.IsRevoked(ctx, sess.Claims.ID); revoked {
		t.Error("unrefreshed token must stay valid")
	}
}

func TestRefresh_NearExpiryRevokesOld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shortLived := auth.NewSessionManager(auth.SessionConfig{
		Secret:        []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "hospital-test",
		TTL:           time.Hour,
		RefreshWindow: 2 * time.Hour,
	})
	f.svc.sessions = shortLived

	sess, err := f.svc.Authenticate(ctx, "nurse1", secret)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := f.svc.Refresh(ctx, sess.Token)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Refreshed || resp.Claims.ID == sess.Claims.ID {
		t.Fatal("expected a new session")
	}
	if revoked, _ := f.revs.IsRevoked(ctx, sess.Claims.ID); !revoked {
		t.Error("expected the previous JTI to be revoked")
	}
	if resp.Claims.Identity() != sess.Claims.Identity() {
		t.Error("identity must carry over on refresh")
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, CreateRequest{StaffID: 9, Username: "doc9", Password: "longenough"})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == 0 || a.PasswordHash == "longenough" || a.PasswordHash == "" {
		t.Errorf("unexpected account: %+v", a)
	}

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"short password", CreateRequest{StaffID: 9, Username: "x", Password: "short"}},
		{"missing username", CreateRequest{StaffID: 9, Password: "longenough"}},
		{"unknown staff", CreateRequest{StaffID: 77, Username: "y", Password: "longenough"}},
		{"duplicate username", CreateRequest{StaffID: 9, Username: "doc9", Password: "longenough"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, tt.req); !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}
