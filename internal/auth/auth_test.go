package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-dispatch/internal/apperrors"
	"github.com/example/ride-dispatch/internal/storage"
)

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), "test-secret")
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "+6281234", "hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected assigned user id")
	}
	if u.Password != "" {
		t.Fatal("password hash must not leak")
	}

	got, token, err := svc.Login(ctx, "+6281234", "hunter2", "rider")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected user %s, got %s", u.ID, got.ID)
	}
	if token == "" {
		t.Fatal("expected a token with a secret configured")
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != "rider" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), "test-secret")
	ctx := context.Background()
	if _, err := svc.Register(ctx, "Ada", "+6281234", "hunter2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "+6281234", "wrong", ""); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "+6200000", "hunter2", ""); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("unknown phone must read as unauthorized, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), "")
	if _, err := svc.Register(context.Background(), "", "+62", "pw"); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateRejectsForeignToken(t *testing.T) {
	issuer := NewService(storage.NewMemoryStore(), "secret-a")
	verifier := NewService(storage.NewMemoryStore(), "secret-b")
	token, err := issuer.generate("u1", "rider")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := verifier.Validate(token); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoginWithoutSecretSkipsToken(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), "")
	ctx := context.Background()
	if _, err := svc.Register(ctx, "Ada", "+62", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, token, err := svc.Login(ctx, "+62", "pw", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token != "" {
		t.Fatal("no token should be issued without a secret")
	}
}
