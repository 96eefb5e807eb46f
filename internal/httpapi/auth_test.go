package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"posreports/backend/internal/domain"
	"posreports/backend/internal/store"
	"posreports/backend/internal/store/memory"
)

// expiredUserStore fails the way a backend with an expired session does.
type expiredUserStore struct{}

func (expiredUserStore) GetUsersByIDs(context.Context, []string) (map[string]domain.User, error) {
	return nil, store.ErrSessionExpired
}

func (expiredUserStore) GetUserByUsername(context.Context, string) (*domain.UserAccount, error) {
	return nil, store.ErrSessionExpired
}

func newAuthFixture(t *testing.T) *AuthManager {
	t.Helper()
	repo := memory.New()
	repo.AddUsers(domain.UserAccount{
		User:         domain.User{ID: "user-admin", Name: "Store Admin", Username: "admin", Role: domain.RoleAdmin},
		PasswordHash: mustHashPassword(t, "admin123"),
		Active:       true,
	})
	return NewAuthManager("test-secret-key-test-secret-key!", time.Hour, repo)
}

func TestLoginIssuesTokenWithActor(t *testing.T) {
	auth := newAuthFixture(t)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.UserID != "user-admin" || actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	auth := newAuthFixture(t)
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := auth.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	other := NewAuthManager("another-secret-another-secret-xx", time.Hour, expiredUserStore{})
	if _, err := other.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token signed with another secret to be rejected, got %v", err)
	}
}

func TestLoginUnknownUserIsInvalidCredentials(t *testing.T) {
	auth := newAuthFixture(t)

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "x"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginSurfacesSessionExpiry(t *testing.T) {
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, expiredUserStore{})

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if !errors.Is(err, store.ErrSessionExpired) {
		t.Fatalf("expected session expiry, got %v", err)
	}
}

func TestVerifyPasswordRequiresHash(t *testing.T) {
	if verifyPassword("admin123", "admin123") {
		t.Fatalf("plain-text stored passwords must not verify")
	}
	if !verifyPassword(mustHashPassword(t, "admin123"), "admin123") {
		t.Fatalf("expected bcrypt hash to verify")
	}
}
