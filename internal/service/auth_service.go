package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/quizdesk/internal/backend"
	"github.com/stemsi/quizdesk/internal/config"
	"github.com/stemsi/quizdesk/internal/repository"
)

// Common auth errors.
var (
	ErrNoToken      = errors.New("no access token stored")
	ErrTokenExpired = errors.New("access token expired")
	ErrInvalidRole  = errors.New("role must be student or admin")
)

// Role is the stored role of the signed-in user.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// AuthStatus describes the stored credentials.
type AuthStatus struct {
	Authenticated bool       `json:"authenticated"`
	Role          Role       `json:"role,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// AuthService keeps the bearer token and role issued by the backend. Sign-in
// itself happens elsewhere; this service only stores and checks what it got.
type AuthService struct {
	store repository.KeyValueStore
	now   func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(store repository.KeyValueStore) *AuthService {
	return &AuthService{store: store, now: time.Now}
}

// Token returns the stored bearer token. A missing token, or a JWT whose exp
// has passed, is reported as backend.ErrUnauthorized without calling out.
func (s *AuthService) Token(ctx context.Context) (string, error) {
	token, err := s.store.GetItem(ctx, config.StorageKey.AccessToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: %w", backend.ErrUnauthorized, ErrNoToken)
		}
		return "", fmt.Errorf("read token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: %w", backend.ErrUnauthorized, ErrNoToken)
	}

	if exp, ok := tokenExpiry(token); ok && !s.now().Before(exp) {
		return "", fmt.Errorf("%w: %w", backend.ErrUnauthorized, ErrTokenExpired)
	}
	return token, nil
}

// Role returns the stored role, defaulting to student.
func (s *AuthService) Role(ctx context.Context) (Role, error) {
	role, err := s.store.GetItem(ctx, config.StorageKey.Role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RoleStudent, nil
		}
		return "", fmt.Errorf("read role: %w", err)
	}
	if Role(role) == RoleAdmin {
		return RoleAdmin, nil
	}
	return RoleStudent, nil
}

// SetCredentials stores a token and role, replacing any previous ones.
func (s *AuthService) SetCredentials(ctx context.Context, token string, role Role) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	if role != RoleStudent && role != RoleAdmin {
		return ErrInvalidRole
	}
	if exp, ok := tokenExpiry(token); ok && !s.now().Before(exp) {
		return ErrTokenExpired
	}

	if err := s.store.SetItem(ctx, config.StorageKey.AccessToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.store.SetItem(ctx, config.StorageKey.Role, string(role)); err != nil {
		return fmt.Errorf("store role: %w", err)
	}
	return nil
}

// Logout removes the token and role. Quiz snapshots are left alone.
func (s *AuthService) Logout(ctx context.Context) error {
	return repository.MultiRemove(ctx, s.store, config.StorageKey.AccessToken, config.StorageKey.Role)
}

// Status reports whether usable credentials are stored.
func (s *AuthService) Status(ctx context.Context) (AuthStatus, error) {
	token, err := s.Token(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return AuthStatus{}, nil
		}
		return AuthStatus{}, err
	}
	role, err := s.Role(ctx)
	if err != nil {
		return AuthStatus{}, err
	}

	st := AuthStatus{Authenticated: true, Role: role}
	if exp, ok := tokenExpiry(token); ok {
		st.ExpiresAt = &exp
	}
	return st, nil
}

// tokenExpiry reads exp from a JWT without checking its signature; the
// backend does that. Opaque tokens report ok=false.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
