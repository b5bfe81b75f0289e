package login

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// LoginService owns credential lookups and password verification. It is the
// only component that reads the credential store directly.
type LoginService struct {
	repo   LoginRepository
	hasher PasswordHasher
}

// NewLoginService creates a new LoginService
func NewLoginService(repo LoginRepository, hasher PasswordHasher) *LoginService {
	return &LoginService{
		repo:   repo,
		hasher: hasher,
	}
}

// Repository exposes the underlying repository for composing services
func (s *LoginService) Repository() LoginRepository {
	return s.repo
}

// FindCredentialByEmail finds a credential by email
func (s *LoginService) FindCredentialByEmail(ctx context.Context, email string) (Credential, error) {
	cred, err := s.repo.FindCredentialByEmail(ctx, email)
	if err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// GetCredentialByID retrieves a credential by id
func (s *LoginService) GetCredentialByID(ctx context.Context, id uuid.UUID) (Credential, error) {
	return s.repo.GetCredentialByID(ctx, id)
}

// CheckPassword verifies a plaintext password against the stored digest
func (s *LoginService) CheckPassword(ctx context.Context, cred Credential, password string) (bool, error) {
	if password == "" || !cred.PasswordSet || cred.PasswordHash == "" {
		return false, nil
	}

	valid, err := s.hasher.Verify(password, cred.PasswordHash)
	if err != nil {
		slog.Error("Failed to verify password", "credential_id", cred.ID, "err", err)
		return false, fmt.Errorf("error checking password: %w", err)
	}
	return valid, nil
}

// ConfirmTwoFactorSecret persists a verified 2FA secret on the credential
func (s *LoginService) ConfirmTwoFactorSecret(ctx context.Context, cred Credential, secret string) error {
	return s.repo.UpdateTwoFactorSecret(ctx, cred.ID, secret)
}
