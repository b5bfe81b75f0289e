package login

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Password lifecycle errors
var (
	ErrResetTokenExpired  = errors.New("reset token expired")
	ErrPasswordReused     = errors.New("password matches a recently used password")
	ErrInvalidOldPassword = errors.New("old password does not match")
)

const (
	// DefaultHistoryDepth bounds the retained password digests per credential
	DefaultHistoryDepth = 4

	// DefaultResetTokenMaxAge is the fixed age limit for reset tokens
	DefaultResetTokenMaxAge = 3600 * time.Second

	resetTokenBytes = 32
)

// PasswordManager handles password rotation: change, reset lifecycle, and
// the reuse-history guard.
type PasswordManager struct {
	repo             LoginRepository
	hasher           PasswordHasher
	historyDepth     int
	resetTokenMaxAge time.Duration
}

// NewPasswordManager creates a new PasswordManager
func NewPasswordManager(repo LoginRepository, hasher PasswordHasher, historyDepth int, resetTokenMaxAge time.Duration) *PasswordManager {
	if historyDepth <= 0 {
		historyDepth = DefaultHistoryDepth
	}
	if resetTokenMaxAge <= 0 {
		resetTokenMaxAge = DefaultResetTokenMaxAge
	}
	return &PasswordManager{
		repo:             repo,
		hasher:           hasher,
		historyDepth:     historyDepth,
		resetTokenMaxAge: resetTokenMaxAge,
	}
}

// InitPasswordReset issues a new reset token for the credential owning the
// given email. Returns ErrCredentialNotFound for unknown emails; the caller
// is responsible for hiding that from external responses.
func (pm *PasswordManager) InitPasswordReset(ctx context.Context, email string) (string, error) {
	cred, err := pm.repo.FindCredentialByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token, err := generateResetToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	err = pm.repo.CreateResetToken(ctx, CreateResetTokenParams{
		CredentialID: cred.ID,
		Email:        cred.Email,
		Token:        token,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	slog.Info("Password reset token issued", "credential_id", cred.ID)
	return token, nil
}

// ValidateResetToken checks a reset token without consuming it. Fails with
// ErrResetTokenNotFound for unknown tokens, ErrResetTokenUsed once consumed,
// and ErrResetTokenExpired past the age limit.
func (pm *PasswordManager) ValidateResetToken(ctx context.Context, token string) (PasswordResetToken, error) {
	data, err := pm.repo.FindResetToken(ctx, token)
	if err != nil {
		return PasswordResetToken{}, err
	}
	if data.UsedAt != nil {
		return PasswordResetToken{}, ErrResetTokenUsed
	}
	if time.Since(data.CreatedAt) > pm.resetTokenMaxAge {
		return PasswordResetToken{}, ErrResetTokenExpired
	}
	return data, nil
}

// ResetPassword validates the reset token, rejects reused passwords, and
// applies the new digest. Token consumption happens inside the repository
// rotation so verify-then-mark-used is not a replay window.
func (pm *PasswordManager) ResetPassword(ctx context.Context, token, newPassword string) error {
	data, err := pm.ValidateResetToken(ctx, token)
	if err != nil {
		return err
	}

	if err := pm.checkPasswordReuse(ctx, data.CredentialID, newPassword); err != nil {
		return err
	}

	newHash, err := pm.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = pm.repo.RotatePassword(ctx, RotatePasswordParams{
		CredentialID:      data.CredentialID,
		NewPasswordHash:   newHash,
		HistoryDepth:      pm.historyDepth,
		ConsumeResetToken: token,
	})
	if err != nil {
		return err
	}

	slog.Info("Password reset applied", "credential_id", data.CredentialID)
	return nil
}

// ChangePassword rotates the password of an authenticated credential. The
// old password is checked only when one is set, so a first-time password set
// after an OTP login goes through the same path.
func (pm *PasswordManager) ChangePassword(ctx context.Context, credentialID uuid.UUID, oldPassword, newPassword string) error {
	cred, err := pm.repo.GetCredentialByID(ctx, credentialID)
	if err != nil {
		return err
	}

	if cred.PasswordSet {
		valid, err := pm.hasher.Verify(oldPassword, cred.PasswordHash)
		if err != nil {
			return fmt.Errorf("error checking old password: %w", err)
		}
		if !valid {
			return ErrInvalidOldPassword
		}
	}

	if err := pm.checkPasswordReuse(ctx, credentialID, newPassword); err != nil {
		return err
	}

	newHash, err := pm.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = pm.repo.RotatePassword(ctx, RotatePasswordParams{
		CredentialID:    credentialID,
		NewPasswordHash: newHash,
		HistoryDepth:    pm.historyDepth,
	})
	if err != nil {
		return err
	}

	slog.Info("Password changed", "credential_id", credentialID)
	return nil
}

// checkPasswordReuse rejects a new password whose digest matches any of the
// retained history entries. Enforcement runs before any mutation.
func (pm *PasswordManager) checkPasswordReuse(ctx context.Context, credentialID uuid.UUID, newPassword string) error {
	entries, err := pm.repo.GetPasswordHistory(ctx, credentialID, pm.historyDepth)
	if err != nil {
		return fmt.Errorf("failed to load password history: %w", err)
	}

	for _, entry := range entries {
		match, err := pm.hasher.Verify(newPassword, entry.PasswordHash)
		if err != nil {
			// A malformed historical digest should not block rotation
			slog.Warn("Skipping unreadable password history entry", "entry_id", entry.ID, "err", err)
			continue
		}
		if match {
			return ErrPasswordReused
		}
	}
	return nil
}

// generateResetToken produces an unguessable opaque token string
func generateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
