package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLoginRepository implements LoginRepository backed by PostgreSQL
type PostgresLoginRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresLoginRepository creates a new PostgreSQL login repository
func NewPostgresLoginRepository(pool *pgxpool.Pool) *PostgresLoginRepository {
	return &PostgresLoginRepository{pool: pool}
}

const credentialColumns = `id, email, password_hash, password_set, active,
	two_factor_enabled, COALESCE(two_factor_secret, ''), employee_id,
	role_id, org_id, created_at, updated_at`

func scanCredential(row pgx.Row) (Credential, error) {
	var cred Credential
	err := row.Scan(
		&cred.ID, &cred.Email, &cred.PasswordHash, &cred.PasswordSet,
		&cred.Active, &cred.TwoFactorEnabled, &cred.TwoFactorSecret,
		&cred.EmployeeID, &cred.RoleID, &cred.OrgID,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, fmt.Errorf("failed to scan credential: %w", err)
	}
	return cred, nil
}

// FindCredentialByEmail finds a credential by email (case-insensitive)
func (r *PostgresLoginRepository) FindCredentialByEmail(ctx context.Context, email string) (Credential, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE LOWER(email) = LOWER($1)`,
		email)
	return scanCredential(row)
}

// GetCredentialByID retrieves a credential by id
func (r *PostgresLoginRepository) GetCredentialByID(ctx context.Context, id uuid.UUID) (Credential, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1`,
		id)
	return scanCredential(row)
}

// UpdateTwoFactorSecret stores the confirmed 2FA secret for a credential
func (r *PostgresLoginRepository) UpdateTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE credentials
		 SET two_factor_secret = $2, two_factor_enabled = TRUE, updated_at = NOW()
		 WHERE id = $1`,
		id, secret)
	if err != nil {
		return fmt.Errorf("failed to update two factor secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// CreateResetToken persists a new password reset token
func (r *PostgresLoginRepository) CreateResetToken(ctx context.Context, params CreateResetTokenParams) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO password_reset_tokens (id, credential_id, email, token, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New(), params.CredentialID, params.Email, params.Token)
	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// FindResetToken looks up a reset token by its token string
func (r *PostgresLoginRepository) FindResetToken(ctx context.Context, token string) (PasswordResetToken, error) {
	var data PasswordResetToken
	err := r.pool.QueryRow(ctx,
		`SELECT id, credential_id, email, token, created_at, used_at
		 FROM password_reset_tokens WHERE token = $1`,
		token).Scan(&data.ID, &data.CredentialID, &data.Email, &data.Token,
		&data.CreatedAt, &data.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PasswordResetToken{}, ErrResetTokenNotFound
		}
		return PasswordResetToken{}, fmt.Errorf("failed to find reset token: %w", err)
	}
	return data, nil
}

// GetPasswordHistory returns the most recent history entries, newest first
func (r *PostgresLoginRepository) GetPasswordHistory(ctx context.Context, credentialID uuid.UUID, limit int) ([]PasswordHistoryEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, credential_id, password_hash, created_at
		 FROM password_history
		 WHERE credential_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		credentialID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query password history: %w", err)
	}
	defer rows.Close()

	var entries []PasswordHistoryEntry
	for rows.Next() {
		var entry PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.CredentialID, &entry.PasswordHash, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan password history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RotatePassword applies a password rotation in a single transaction:
// reset-token consumption, digest update, history append, and history trim
// either all commit or none do.
func (r *PostgresLoginRepository) RotatePassword(ctx context.Context, params RotatePasswordParams) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.ConsumeResetToken != "" {
		tag, err := tx.Exec(ctx,
			`UPDATE password_reset_tokens SET used_at = NOW()
			 WHERE token = $1 AND used_at IS NULL`,
			params.ConsumeResetToken)
		if err != nil {
			return fmt.Errorf("failed to consume reset token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrResetTokenUsed
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE credentials
		 SET password_hash = $2, password_set = TRUE, updated_at = NOW()
		 WHERE id = $1`,
		params.CredentialID, params.NewPasswordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO password_history (id, credential_id, password_hash, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		uuid.New(), params.CredentialID, params.NewPasswordHash)
	if err != nil {
		return fmt.Errorf("failed to append password history: %w", err)
	}

	if params.HistoryDepth > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM password_history
			 WHERE credential_id = $1 AND id NOT IN (
				SELECT id FROM password_history
				WHERE credential_id = $1
				ORDER BY created_at DESC
				LIMIT $2
			 )`,
			params.CredentialID, params.HistoryDepth)
		if err != nil {
			return fmt.Errorf("failed to trim password history: %w", err)
		}
	}

	return tx.Commit(ctx)
}
