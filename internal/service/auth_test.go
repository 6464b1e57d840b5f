package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tok, err := env.auth.IssueJWT(ctx, "owner-1", "owner@example.com")
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if tok == "" {
		t.Fatal("expected non-empty token")
	}

	principal, err := env.auth.ValidateJWT(ctx, tok)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.OwnerID != "owner-1" {
		t.Errorf("OwnerID: got %q, want %q", principal.OwnerID, "owner-1")
	}
	if principal.Email != "owner@example.com" {
		t.Errorf("Email: got %q, want %q", principal.Email, "owner@example.com")
	}
}

func TestJWTExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tok, err := env.auth.IssueJWT(ctx, "owner-1", "owner@example.com")
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	env.clock.Advance(time.Hour + time.Second)
	if _, err := env.auth.ValidateJWT(ctx, tok); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other := NewAuthService(env.store, "a-different-secret", time.Hour, env.clock)
	tok, err := other.IssueJWT(ctx, "owner-1", "owner@example.com")
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if _, err := env.auth.ValidateJWT(ctx, tok); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestJWTRejectsNoneAlgorithm(t *testing.T) {
	env := newTestEnv(t)

	claims := jwtClaims{
		OwnerID: "owner-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(env.clock.Now().Add(time.Hour)),
			Issuer:    jwtIssuer,
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := env.auth.ValidateJWT(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner, err := env.auth.CreateOwner(ctx, "login@example.com", "Login", "hunter22")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	sess, err := env.auth.Login(ctx, "login@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.OwnerID != owner.ID || sess.TokenType != "Bearer" || sess.ExpiresIn != 3600 {
		t.Errorf("session: %+v", sess)
	}

	principal, err := env.auth.ValidateJWT(ctx, sess.SessionToken)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.OwnerID != owner.ID {
		t.Errorf("OwnerID: got %q, want %q", principal.OwnerID, owner.ID)
	}

	stored, _ := env.store.GetOwner(ctx, owner.ID)
	if stored.LastLoginAt == nil {
		t.Error("expected last login to be recorded")
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.auth.CreateOwner(ctx, "login@example.com", "", "hunter22"); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	if _, err := env.auth.Login(ctx, "login@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong password: got %v, want ErrUnauthorized", err)
	}
	if _, err := env.auth.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("unknown email: got %v, want ErrUnauthorized", err)
	}
}

func TestCreateOwnerValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.auth.CreateOwner(context.Background(), " ", "", "pw"); !errors.Is(err, ErrBadRequest) {
		t.Errorf("got %v, want ErrBadRequest", err)
	}
	if _, err := env.auth.CreateOwner(context.Background(), "a@b.c", "", ""); !errors.Is(err, ErrBadRequest) {
		t.Errorf("got %v, want ErrBadRequest", err)
	}
}
