package login

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemLoginRepository implements LoginRepository using in-memory storage.
// Intended for tests and single-instance development setups.
type InMemLoginRepository struct {
	mu                  sync.RWMutex
	credentials         map[uuid.UUID]Credential
	credentialsByEmail  map[string]uuid.UUID
	passwordResetTokens map[string]PasswordResetToken
	passwordHistory     map[uuid.UUID][]PasswordHistoryEntry
}

// NewInMemLoginRepository creates a new in-memory login repository
func NewInMemLoginRepository() *InMemLoginRepository {
	return &InMemLoginRepository{
		credentials:         make(map[uuid.UUID]Credential),
		credentialsByEmail:  make(map[string]uuid.UUID),
		passwordResetTokens: make(map[string]PasswordResetToken),
		passwordHistory:     make(map[uuid.UUID][]PasswordHistoryEntry),
	}
}

// AddCredential seeds a credential. Test helper.
func (r *InMemLoginRepository) AddCredential(cred Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	now := time.Now()
	cred.CreatedAt = now
	cred.UpdatedAt = now
	r.credentials[cred.ID] = cred
	r.credentialsByEmail[strings.ToLower(cred.Email)] = cred.ID
}

// FindCredentialByEmail finds a credential by email (case-insensitive)
func (r *InMemLoginRepository) FindCredentialByEmail(ctx context.Context, email string) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.credentialsByEmail[strings.ToLower(email)]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return r.credentials[id], nil
}

// GetCredentialByID retrieves a credential by id
func (r *InMemLoginRepository) GetCredentialByID(ctx context.Context, id uuid.UUID) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.credentials[id]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}

// UpdateTwoFactorSecret stores the confirmed 2FA secret for a credential
func (r *InMemLoginRepository) UpdateTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.credentials[id]
	if !ok {
		return ErrCredentialNotFound
	}
	cred.TwoFactorSecret = secret
	cred.TwoFactorEnabled = true
	cred.UpdatedAt = time.Now()
	r.credentials[id] = cred
	return nil
}

// CreateResetToken persists a new password reset token
func (r *InMemLoginRepository) CreateResetToken(ctx context.Context, params CreateResetTokenParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.passwordResetTokens[params.Token] = PasswordResetToken{
		ID:           uuid.New(),
		CredentialID: params.CredentialID,
		Email:        params.Email,
		Token:        params.Token,
		CreatedAt:    time.Now(),
	}
	return nil
}

// FindResetToken looks up a reset token by its token string
func (r *InMemLoginRepository) FindResetToken(ctx context.Context, token string) (PasswordResetToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.passwordResetTokens[token]
	if !ok {
		return PasswordResetToken{}, ErrResetTokenNotFound
	}
	return data, nil
}

// GetPasswordHistory returns the most recent history entries, newest first
func (r *InMemLoginRepository) GetPasswordHistory(ctx context.Context, credentialID uuid.UUID, limit int) ([]PasswordHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]PasswordHistoryEntry, len(r.passwordHistory[credentialID]))
	copy(entries, r.passwordHistory[credentialID])

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RotatePassword applies a password rotation under a single lock, which
// gives the same all-or-nothing behavior as the Postgres transaction.
func (r *InMemLoginRepository) RotatePassword(ctx context.Context, params RotatePasswordParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.credentials[params.CredentialID]
	if !ok {
		return ErrCredentialNotFound
	}

	// Consume the reset token first so a concurrent rotation with the same
	// token cannot replay it.
	if params.ConsumeResetToken != "" {
		data, ok := r.passwordResetTokens[params.ConsumeResetToken]
		if !ok {
			return ErrResetTokenNotFound
		}
		if data.UsedAt != nil {
			return ErrResetTokenUsed
		}
		now := time.Now()
		data.UsedAt = &now
		r.passwordResetTokens[params.ConsumeResetToken] = data
	}

	cred.PasswordHash = params.NewPasswordHash
	cred.PasswordSet = true
	cred.UpdatedAt = time.Now()
	r.credentials[params.CredentialID] = cred

	entries := r.passwordHistory[params.CredentialID]
	entries = append(entries, PasswordHistoryEntry{
		ID:           uuid.New(),
		CredentialID: params.CredentialID,
		PasswordHash: params.NewPasswordHash,
		CreatedAt:    time.Now(),
	})

	// Trim to the configured depth, evicting the oldest entries
	if params.HistoryDepth > 0 && len(entries) > params.HistoryDepth {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		})
		entries = entries[:params.HistoryDepth]
	}
	r.passwordHistory[params.CredentialID] = entries

	return nil
}
