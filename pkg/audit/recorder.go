// Package audit records every authentication attempt, success or failure.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Login variant identifiers for audit entries
const (
	VariantPassword       = "password"
	VariantOTP            = "otp"
	VariantTwoFactor      = "two_factor"
	VariantPasswordReset  = "password_reset"
	VariantPasswordChange = "password_change"
)

// Entry is one audit record
type Entry struct {
	ID        uuid.UUID
	SubjectID *uuid.UUID
	Email     string
	Variant   string
	IPAddress string
	UserAgent string
	Success   bool
	Reason    string
	CreatedAt time.Time
}

// Repository persists audit entries
type Repository interface {
	Insert(ctx context.Context, entry Entry) error
}

// Recorder writes audit entries. A write failure is logged locally but
// never escalated: observability must not become an availability hazard.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a new audit recorder
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record persists an audit entry, filling in id and timestamp
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := r.repo.Insert(ctx, entry); err != nil {
		slog.Error("Failed to write audit record",
			"email", entry.Email,
			"variant", entry.Variant,
			"success", entry.Success,
			"err", err)
	}
}
