package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/teamspace/pkg/domain"
	"github.com/tendant/teamspace/pkg/repository/memory"
)

func newTestPasswordService(t *testing.T, opts PasswordOptions) (*PasswordService, *memory.Accounts) {
	t.Helper()
	store, err := memory.New(nil)
	require.NoError(t, err)
	accounts := store.Accounts()
	return NewPasswordService(accounts, &PasswordPolicy{MinLength: 6}, opts), accounts
}

func TestPasswordService_Register(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestPasswordService(t, PasswordOptions{AutoConfirm: true})

	account, err := svc.Register(ctx, Registration{Email: "  Ada@Example.com ", Password: "secret1", Name: "Ada Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", account.Email)
	assert.Equal(t, "Ada Lovelace", account.Metadata.FullName)
	assert.True(t, account.IsConfirmed())

	_, err = svc.Register(ctx, Registration{Email: "ada@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
}

func TestPasswordService_RegisterRejectsInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestPasswordService(t, PasswordOptions{})

	tests := []struct {
		name string
		reg  Registration
		want error
	}{
		{name: "bad email", reg: Registration{Email: "not-an-email", Password: "secret1"}, want: domain.ErrInvalidEmail},
		{name: "empty password", reg: Registration{Email: "a@example.com"}, want: domain.ErrWeakPassword},
		{name: "short password", reg: Registration{Email: "a@example.com", Password: "abc"}, want: domain.ErrWeakPassword},
		{name: "bad avatar", reg: Registration{Email: "a@example.com", Password: "secret1", AvatarURL: "nope"}, want: domain.ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.reg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPasswordService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestPasswordService(t, PasswordOptions{AutoConfirm: true})
	_, err := svc.Register(ctx, Registration{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	account, err := svc.Authenticate(ctx, "ADA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", account.Email)

	_, err = svc.Authenticate(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestPasswordService_AuthenticateUnconfirmed(t *testing.T) {
	ctx := context.Background()
	svc, accounts := newTestPasswordService(t, PasswordOptions{})
	account, err := svc.Register(ctx, Registration{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "ada@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrEmailNotConfirmed)

	require.NoError(t, accounts.ConfirmEmail(ctx, account.ID))
	_, err = svc.Authenticate(ctx, "ada@example.com", "secret1")
	assert.NoError(t, err)
}

func TestPasswordService_Lockout(t *testing.T) {
	ctx := context.Background()
	svc, accounts := newTestPasswordService(t, PasswordOptions{AutoConfirm: true})
	account, err := svc.Register(ctx, Registration{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	for i := 0; i < maxFailedAttempts; i++ {
		_, err = svc.Authenticate(ctx, "ada@example.com", "wrong")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}

	_, err = svc.Authenticate(ctx, "ada@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrAccountLocked)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	locked, err := accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, locked.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(lockoutDuration), *locked.LockedUntil, time.Minute)
}

func TestPasswordService_Argon2Parameters(t *testing.T) {
	// Verify that Argon2 parameters are set correctly (OWASP recommended)
	if argon2Time != 1 {
		t.Errorf("argon2Time = %d, want 1", argon2Time)
	}
	if argon2Memory != 64*1024 {
		t.Errorf("argon2Memory = %d, want %d", argon2Memory, 64*1024)
	}
	if argon2Threads != 4 {
		t.Errorf("argon2Threads = %d, want 4", argon2Threads)
	}
	if argon2KeyLen != 32 {
		t.Errorf("argon2KeyLen = %d, want 32", argon2KeyLen)
	}
	if saltLen != 16 {
		t.Errorf("saltLen = %d, want 16", saltLen)
	}
}

func TestPasswordHashing_CaseSensitive(t *testing.T) {
	password := "TestPassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{
			name:     "exact match",
			password: "TestPassword123",
			want:     true,
		},
		{
			name:     "lowercase",
			password: "testpassword123",
			want:     false,
		},
		{
			name:     "uppercase",
			password: "TESTPASSWORD123",
			want:     false,
		},
		{
			name:     "mixed case different",
			password: "testPassword123",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyPassword(tt.password, hash)
			if got != tt.want {
				t.Errorf("VerifyPassword(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestPasswordStrength_EdgeCases(t *testing.T) {
	// Test that various password lengths and characters can be hashed
	tests := []struct {
		name     string
		password string
	}{
		{
			name:     "very short (1 char)",
			password: "a",
		},
		{
			name:     "empty string",
			password: "",
		},
		{
			name:     "medium length",
			password: "mediumPassword123",
		},
		{
			name:     "special characters",
			password: "p@ssw0rd!#$%^&*()",
		},
		{
			name:     "unicode",
			password: "pässwörd123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if err != nil {
				t.Errorf("HashPassword failed for %q: %v", tt.name, err)
				return
			}

			if !VerifyPassword(tt.password, hash) {
				t.Errorf("VerifyPassword failed for %q", tt.name)
			}
		})
	}
}
