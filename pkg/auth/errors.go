package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tendant/teamspace/pkg/domain"
)

var authSentinels = []error{
	domain.ErrInvalidCredentials,
	domain.ErrEmailNotConfirmed,
	domain.ErrRateLimited,
	domain.ErrAlreadyRegistered,
	domain.ErrWeakPassword,
	domain.ErrInvalidEmail,
	domain.ErrAuthFailed,
}

// Substring fallbacks for provider messages that arrive as plain text.
var authMessages = []struct {
	fragment string
	err      error
}{
	{"invalid login credentials", domain.ErrInvalidCredentials},
	{"email not confirmed", domain.ErrEmailNotConfirmed},
	{"rate limit", domain.ErrRateLimited},
	{"too many requests", domain.ErrRateLimited},
	{"already registered", domain.ErrAlreadyRegistered},
	{"password should be", domain.ErrWeakPassword},
	{"invalid email", domain.ErrInvalidEmail},
}

// NormalizeError maps any error raised by an auth operation onto the
// auth error taxonomy. The returned error always matches exactly one auth
// sentinel with errors.Is and keeps the original message.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range authSentinels {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMessages {
		if strings.Contains(msg, m.fragment) {
			return fmt.Errorf("%w: %v", m.err, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrAuthFailed, err)
}
