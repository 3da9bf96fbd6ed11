package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hospital/hospital/internal/platform/apperr"
)

// Identity is everything embedded in a session claim.
type Identity struct {
	StaffID      int64
	Username     string
	Role         string
	DepartmentID int64
	Capabilities Capabilities
}

type Claims struct {
	jwt.RegisteredClaims
	StaffID      int64        `json:"staff_id"`
	Username     string       `json:"username"`
	Role         string       `json:"role"`
	DepartmentID int64        `json:"department_id"`
	Capabilities Capabilities `json:"capabilities"`
}

func (c *Claims) Identity() Identity {
	return Identity{
		StaffID:      c.StaffID,
		Username:     c.Username,
		Role:         c.Role,
		DepartmentID: c.DepartmentID,
		Capabilities: c.Capabilities,
	}
}

// Session is an issued token together with its decoded claims.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Claims    *Claims   `json:"claims"`
}

type SessionConfig struct {
	Secret        []byte
	Issuer        string
	TTL           time.Duration
	RefreshWindow time.Duration
}

// SessionManager issues and validates HS256 session tokens.
type SessionManager struct {
	cfg SessionConfig
	now func() time.Time
}

func NewSessionManager(cfg SessionConfig) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = 2 * time.Hour
	}
	return &SessionManager{cfg: cfg, now: time.Now}
}

func (m *SessionManager) Issue(id Identity) (*Session, error) {
	now := m.now().UTC().Truncate(time.Second)
	exp := now.Add(m.cfg.TTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(id.StaffID, 10),
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		StaffID:      id.StaffID,
		Username:     id.Username,
		Role:         id.Role,
		DepartmentID: id.DepartmentID,
		Capabilities: id.Capabilities,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Session{Token: signed, TokenType: "Bearer", ExpiresAt: exp, Claims: claims}, nil
}

// Validate returns the claims of a well-formed, correctly signed and
// unexpired token. Every failure is apperr.KindUnauthenticated.
func (m *SessionManager) Validate(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.Secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "session expired", err)
	case err != nil || !parsed.Valid:
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid session token", err)
	}
	if claims.StaffID == 0 || claims.ID == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, "session token is missing identity claims")
	}
	return claims, nil
}

// NearExpiry reports whether less than the refresh window remains.
func (m *SessionManager) NearExpiry(c *Claims) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return c.ExpiresAt.Time.Sub(m.now()) < m.cfg.RefreshWindow
}

// Refresh exchanges a valid token that is near expiry for a new one with the
// same identity fields. Tokens with more time left are returned unchanged
// and refreshed is false.
func (m *SessionManager) Refresh(token string) (sess *Session, refreshed bool, err error) {
	claims, err := m.Validate(token)
	if err != nil {
		return nil, false, err
	}
	if !m.NearExpiry(claims) {
		return &Session{Token: token, TokenType: "Bearer", ExpiresAt: claims.ExpiresAt.Time, Claims: claims}, false, nil
	}
	sess, err = m.Issue(claims.Identity())
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}
