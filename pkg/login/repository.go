package login

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for login repositories
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrResetTokenNotFound = errors.New("reset token not found")
	ErrResetTokenUsed     = errors.New("reset token already used")
)

// Credential represents a login record in the domain model. Credentials are
// never deleted, only deactivated.
type Credential struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string
	PasswordSet      bool
	Active           bool
	TwoFactorEnabled bool
	TwoFactorSecret  string
	EmployeeID       *uuid.UUID
	RoleID           int64
	OrgID            int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PasswordResetToken represents a single-use password reset token
type PasswordResetToken struct {
	ID           uuid.UUID
	CredentialID uuid.UUID
	Email        string
	Token        string
	CreatedAt    time.Time
	UsedAt       *time.Time
}

// PasswordHistoryEntry represents a retained password digest
type PasswordHistoryEntry struct {
	ID           uuid.UUID
	CredentialID uuid.UUID
	PasswordHash string
	CreatedAt    time.Time
}

// CreateResetTokenParams holds the fields for persisting a new reset token
type CreateResetTokenParams struct {
	CredentialID uuid.UUID
	Email        string
	Token        string
}

// RotatePasswordParams applies a password rotation. The repository must
// perform digest update, history append, history trim, and (when
// ConsumeResetToken is set) reset-token consumption as one atomic unit.
type RotatePasswordParams struct {
	CredentialID    uuid.UUID
	NewPasswordHash string
	HistoryDepth    int
	// ConsumeResetToken, when non-empty, is the token string to mark used in
	// the same transaction. Rotation fails with ErrResetTokenUsed if the
	// token was consumed concurrently.
	ConsumeResetToken string
}

// LoginRepository defines the interface for credential-related storage
type LoginRepository interface {
	// Credential operations
	FindCredentialByEmail(ctx context.Context, email string) (Credential, error)
	GetCredentialByID(ctx context.Context, id uuid.UUID) (Credential, error)
	UpdateTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) error

	// Password reset token operations
	CreateResetToken(ctx context.Context, params CreateResetTokenParams) error
	FindResetToken(ctx context.Context, token string) (PasswordResetToken, error)

	// Password history operations (newest first)
	GetPasswordHistory(ctx context.Context, credentialID uuid.UUID, limit int) ([]PasswordHistoryEntry, error)

	// RotatePassword applies a password rotation atomically
	RotatePassword(ctx context.Context, params RotatePasswordParams) error
}
