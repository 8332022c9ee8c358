package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/teamspace/pkg/domain"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "sentinel", err: domain.ErrInvalidCredentials, want: domain.ErrInvalidCredentials},
		{name: "wrapped sentinel", err: fmt.Errorf("sign in: %w", domain.ErrEmailNotConfirmed), want: domain.ErrEmailNotConfirmed},
		{name: "lockout", err: domain.ErrAccountLocked, want: domain.ErrRateLimited},
		{name: "policy failure", err: fmt.Errorf("%w: must be at least 8 characters", domain.ErrWeakPassword), want: domain.ErrWeakPassword},
		{name: "text credentials", err: errors.New("Invalid login credentials"), want: domain.ErrInvalidCredentials},
		{name: "text unconfirmed", err: errors.New("Email not confirmed"), want: domain.ErrEmailNotConfirmed},
		{name: "text rate limit", err: errors.New("Email rate limit exceeded"), want: domain.ErrRateLimited},
		{name: "text registered", err: errors.New("User already registered"), want: domain.ErrAlreadyRegistered},
		{name: "text password", err: errors.New("Password should be at least 6 characters"), want: domain.ErrWeakPassword},
		{name: "text email", err: errors.New("Unable to validate email address: invalid email"), want: domain.ErrInvalidEmail},
		{name: "unknown", err: errors.New("connection reset by peer"), want: domain.ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), tt.err.Error())
		})
	}
}

func TestNormalizeError_Nil(t *testing.T) {
	assert.NoError(t, NormalizeError(nil))
}

func TestNormalizeError_KindIsAuth(t *testing.T) {
	got := NormalizeError(errors.New("socket closed"))
	assert.Equal(t, domain.KindAuthGeneric, domain.KindOf(got))
}
