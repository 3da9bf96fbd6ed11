package account

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hospital/hospital/internal/domain/staff"
	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/auth"
	"github.com/hospital/hospital/internal/platform/telemetry"
)

const minPasswordLength = 8

// Hasher is satisfied by auth.BcryptHasher.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

// StaffLookup is the part of the staff repository account creation needs.
type StaffLookup interface {
	GetByID(ctx context.Context, id int64) (*staff.Member, error)
}

type Config struct {
	MaxFailedAttempts int
}

type Service struct {
	repo        Repository
	staff       StaffLookup
	sessions    *auth.SessionManager
	revocations auth.RevocationStore
	hasher      Hasher
	maxAttempts int
	metrics     *telemetry.Metrics
	logger      zerolog.Logger

	dummyOnce   sync.Once
	dummyDigest string
}

func NewService(
	repo Repository,
	staffLookup StaffLookup,
	sessions *auth.SessionManager,
	revocations auth.RevocationStore,
	hasher Hasher,
	cfg Config,
	metrics *telemetry.Metrics,
	logger zerolog.Logger,
) *Service {
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	return &Service{
		repo:        repo,
		staff:       staffLookup,
		sessions:    sessions,
		revocations: revocations,
		hasher:      hasher,
		maxAttempts: cfg.MaxFailedAttempts,
		metrics:     metrics,
		logger:      logger.With().Str("component", "account").Logger(),
	}
}

var errBadCredentials = apperr.New(apperr.KindInvalidCredentials, "invalid username or password")

func (s *Service) locked(c *Credential) error {
	s.metrics.AuthAttempt("locked")
	return apperr.New(apperr.KindAccountLocked, "account is locked").WithDetail("username", c.Username)
}

// burnCompare runs a verification against a throwaway digest so unknown
// usernames cost the same as known ones.
func (s *Service) burnCompare(secret string) {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.Hash("not-a-real-account-secret")
	})
	s.hasher.Verify(secret, s.dummyDigest)
}

// Authenticate applies the lockout policy and issues a session on success.
//
// An account deactivated by reaching the failure limit answers AccountLocked
// even when the secret is correct. An account deactivated for any other
// reason, a missing account and a non-active staff member all answer
// InvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, secret string) (*auth.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return nil, apperr.Validation("username and password are required")
	}

	cred, err := s.repo.FindByUsername(ctx, username)
	if apperr.IsKind(err, apperr.KindNotFound) {
		s.burnCompare(secret)
		s.metrics.AuthAttempt("unknown")
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if !cred.Active {
		if cred.FailedAttempts >= s.maxAttempts {
			return nil, s.locked(cred)
		}
		s.metrics.AuthAttempt("inactive")
		return nil, errBadCredentials
	}

	if !s.hasher.Verify(secret, cred.PasswordHash) {
		attempts, active, err := s.repo.RecordFailure(ctx, cred.ID, s.maxAttempts)
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, s.locked(cred)
		}
		if err != nil {
			return nil, err
		}
		if !active {
			s.metrics.Lockout()
			s.logger.Warn().Str("username", cred.Username).Int64("staff_id", cred.StaffID).
				Int("failed_attempts", attempts).Msg("account locked after repeated failures")
			return nil, s.locked(cred)
		}
		s.metrics.AuthAttempt("failure")
		s.logger.Info().Str("username", cred.Username).Int("failed_attempts", attempts).Msg("failed login")
		return nil, errBadCredentials
	}

	if cred.StaffState != string(staff.StateActive) {
		s.metrics.AuthAttempt("inactive")
		return nil, errBadCredentials
	}

	if err := s.repo.RecordSuccess(ctx, cred.ID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, s.locked(cred)
		}
		return nil, err
	}

	sess, err := s.sessions.Issue(cred.Identity())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.metrics.AuthAttempt("success")
	return sess, nil
}

// Refresh swaps a near-expiry token for a new one and revokes the old JTI.
func (s *Service) Refresh(ctx context.Context, token string) (*RefreshResponse, error) {
	old, err := s.sessions.Validate(token)
	if err != nil {
		return nil, err
	}
	sess, refreshed, err := s.sessions.Refresh(token)
	if err != nil {
		return nil, err
	}
	if refreshed {
		if err := s.revoke(ctx, old); err != nil {
			return nil, err
		}
	}
	return &RefreshResponse{Session: sess, Refreshed: refreshed}, nil
}

// Logout revokes the session until its natural expiry.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	return s.revoke(ctx, claims)
}

func (s *Service) revoke(ctx context.Context, claims *auth.Claims) error {
	if s.revocations == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperr.Unavailable("revocation", err)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Account, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.StaffID <= 0 || req.Username == "" {
		return nil, apperr.Validation("staff_id and username are required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperr.Validationf("password must be at least %d characters", minPasswordLength)
	}
	if _, err := s.staff.GetByID(ctx, req.StaffID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validationf("staff member %d does not exist", req.StaffID)
		}
		return nil, err
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	a := &Account{StaffID: req.StaffID, Username: req.Username, PasswordHash: digest}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Unlock(ctx context.Context, id int64) (*Account, error) {
	a, err := s.repo.Unlock(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("account_id", id).Str("username", a.Username).Msg("account unlocked")
	return a, nil
}
