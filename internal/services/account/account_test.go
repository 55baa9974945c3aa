package account

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/storage/sqlite"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	service, err := New(store, []byte("test-secret"), opts...)
	if err != nil {
		t.Fatalf("new account service: %v", err)
	}
	return service
}

func TestRegisterAndLogin(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "Fox", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Username != "fox" {
		t.Fatalf("username = %q, want fox", user.Username)
	}

	got, token, err := service.Login(ctx, "fox", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("login user id = %v, want %v", got.ID, user.ID)
	}
	if token == "" {
		t.Fatal("login returned empty token")
	}

	authed, err := service.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("authenticated user id = %v, want %v", authed.ID, user.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "", "correct horse")
	if apperrors.CodeOf(err) != apperrors.CodeUsernameEmpty {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeUsernameEmpty)
	}

	_, err = service.Register(ctx, "no spaces", "correct horse")
	if apperrors.CodeOf(err) != apperrors.CodeUsernameEmpty {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeUsernameEmpty)
	}

	_, err = service.Register(ctx, "fox", "short")
	if apperrors.CodeOf(err) != apperrors.CodePasswordTooShort {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodePasswordTooShort)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "fox", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := service.Register(ctx, "fox", "another pass")
	if apperrors.CodeOf(err) != apperrors.CodeUsernameTaken {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeUsernameTaken)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "fox", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, err := service.Login(ctx, "fox", "wrong horse")
	if apperrors.CodeOf(err) != apperrors.CodeCredentialsInvalid {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeCredentialsInvalid)
	}

	// Unknown usernames look the same as wrong passwords.
	_, _, err = service.Login(ctx, "nobody", "correct horse")
	if apperrors.CodeOf(err) != apperrors.CodeCredentialsInvalid {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeCredentialsInvalid)
	}
}

func TestAuthenticate_RejectsTamperedToken(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "fox", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, token, err := service.Login(ctx, "fox", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err = service.Authenticate(ctx, token+"x")
	if apperrors.CodeOf(err) != apperrors.CodeTokenInvalid {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeTokenInvalid)
	}

	_, err = service.Authenticate(ctx, "not-a-token")
	if apperrors.CodeOf(err) != apperrors.CodeTokenInvalid {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeTokenInvalid)
	}
}

func TestAuthenticate_RejectsExpiredToken(t *testing.T) {
	service := newTestService(t, WithTokenTTL(-time.Minute))
	ctx := context.Background()

	if _, err := service.Register(ctx, "fox", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, token, err := service.Login(ctx, "fox", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err = service.Authenticate(ctx, token)
	if apperrors.CodeOf(err) != apperrors.CodeTokenInvalid {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeTokenInvalid)
	}
}
