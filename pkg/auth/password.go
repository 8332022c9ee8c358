package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/domain"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// Account lockout policy.
const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

// Registration is the input of a password sign-up.
type Registration struct {
	Email     string `validate:"required,email,max=254"`
	Password  string `validate:"required,max=128"`
	Name      string `validate:"max=100"`
	AvatarURL string `validate:"omitempty,url,max=2048"`
}

// PasswordService handles password authentication.
type PasswordService struct {
	accounts              AccountStore
	policy                *PasswordPolicy
	validate              *validator.Validate
	strictEmailValidation bool
	blockDisposableEmail  bool
	autoConfirm           bool
}

// PasswordOptions tunes registration checks.
type PasswordOptions struct {
	StrictEmailValidation bool
	BlockDisposableEmail  bool
	// AutoConfirm marks new accounts as confirmed at sign-up.
	AutoConfirm bool
}

// NewPasswordService creates a new password service.
func NewPasswordService(accounts AccountStore, policy *PasswordPolicy, opts PasswordOptions) *PasswordService {
	return &PasswordService{
		accounts:              accounts,
		policy:                policy,
		validate:              validator.New(),
		strictEmailValidation: opts.StrictEmailValidation,
		blockDisposableEmail:  opts.BlockDisposableEmail,
		autoConfirm:           opts.AutoConfirm,
	}
}

// Register creates a new account with password credentials.
func (s *PasswordService) Register(ctx context.Context, reg Registration) (*domain.Account, error) {
	reg.Email = NormalizeEmail(reg.Email)
	if err := s.validate.Struct(reg); err != nil {
		return nil, registrationError(err)
	}
	if err := ValidateEmail(reg.Email, s.strictEmailValidation, s.blockDisposableEmail); err != nil {
		return nil, err
	}
	if s.policy != nil {
		if err := s.policy.ValidatePassword(reg.Password); err != nil {
			return nil, err
		}
	}

	_, err := s.accounts.GetByEmail(ctx, reg.Email)
	if err == nil {
		return nil, domain.ErrAlreadyRegistered
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &domain.Account{
		ID:        uuid.New(),
		Email:     reg.Email,
		Metadata:  domain.UserMetadata{FullName: SanitizeName(reg.Name), AvatarURL: reg.AvatarURL},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.autoConfirm {
		account.EmailConfirmedAt = &now
	}

	cred := &domain.AccountPassword{
		AccountID:         account.ID,
		PasswordHash:      hash,
		PasswordUpdatedAt: now,
	}

	if err := s.accounts.CreateWithPassword(ctx, account, cred); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return nil, domain.ErrAlreadyRegistered
		}
		return nil, err
	}
	return account, nil
}

// Authenticate verifies email and password and returns the account.
// Accounts are locked for lockoutDuration after maxFailedAttempts failures.
func (s *PasswordService) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if account.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	cred, err := s.accounts.GetPassword(ctx, account.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(password, cred.PasswordHash) {
		_ = s.accounts.IncrementFailedLoginAttempts(ctx, account.ID, lockoutDuration, maxFailedAttempts)
		return nil, domain.ErrInvalidCredentials
	}

	if !account.IsConfirmed() {
		return nil, domain.ErrEmailNotConfirmed
	}

	if account.FailedLoginAttempts > 0 || account.LockedUntil != nil {
		_ = s.accounts.ResetFailedLoginAttempts(ctx, account.ID)
	}

	return account, nil
}

// registrationError maps validator failures onto the auth taxonomy.
func registrationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Email":
		return fmt.Errorf("%w: failed %s check", domain.ErrInvalidEmail, fe.Tag())
	case "Password":
		return fmt.Errorf("%w: failed %s check", domain.ErrWeakPassword, fe.Tag())
	default:
		return fmt.Errorf("%w: %s failed %s check", domain.ErrAuthFailed, fe.Field(), fe.Tag())
	}
}

// HashPassword hashes a password using Argon2id.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := randomBytes(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

// VerifyPassword verifies a password against an Argon2id hash.
func VerifyPassword(password, encodedHash string) bool {
	hash, salt, time, memory, threads, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return constantTimeCompare(hash, computed)
}
