// Package loginflow orchestrates the login variants and password lifecycle
// flows over the credential, token, otp, rbac, and audit services.
package loginflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opsadmin/authcore/pkg/apperr"
	"github.com/opsadmin/authcore/pkg/audit"
	"github.com/opsadmin/authcore/pkg/login"
	"github.com/opsadmin/authcore/pkg/notification"
	"github.com/opsadmin/authcore/pkg/otp"
	"github.com/opsadmin/authcore/pkg/ratelimit"
	"github.com/opsadmin/authcore/pkg/rbac"
	tg "github.com/opsadmin/authcore/pkg/tokengenerator"
	"github.com/opsadmin/authcore/pkg/twofa"
)

// Status is the terminal state of a login flow
type Status string

const (
	// StatusAuthenticated means a session token was issued
	StatusAuthenticated Status = "authenticated"

	// StatusChallengeRequired means a second factor must be presented
	StatusChallengeRequired Status = "challenge_required"

	// StatusRejected means no token was issued; Err carries the reason
	StatusRejected Status = "rejected"
)

// Request contains the data for a credential or OTP login attempt
type Request struct {
	Email     string
	Password  string
	Code      string
	IPAddress string
	UserAgent string
}

// TwoFactorVerifyRequest contains the data for the 2FA verification step
type TwoFactorVerifyRequest struct {
	SubjectID uuid.UUID
	Secret    string
	Code      string
	IPAddress string
	UserAgent string
}

// TwoFactorChallenge carries the enrollment/verification material returned
// instead of a token when a second factor is required
type TwoFactorChallenge struct {
	SubjectID       uuid.UUID `json:"subject_id"`
	Secret          string    `json:"secret"`
	ProvisioningURL string    `json:"provisioning_url,omitempty"`
}

// Result is the outcome of a login flow
type Result struct {
	Status              Status
	Token               string
	TokenExpiresAt      time.Time
	Permissions         []string
	Menus               []rbac.MenuNode
	ForceChangePassword bool
	Challenge           *TwoFactorChallenge
	Err                 *apperr.Error
}

// Deps holds the services composed by the login flow
type Deps struct {
	LoginService       *login.LoginService
	PasswordManager    *login.PasswordManager
	OTPStore           otp.Store
	TwoFactorService   twofa.TwoFactorService
	TokenGenerator     tg.TokenGenerator
	PermissionResolver *rbac.Service
	AuditRecorder      *audit.Recorder
	LoginLimiter       ratelimit.Limiter
	Notifier           notification.Notifier
}

// Service orchestrates the login state machine
type Service struct {
	deps         Deps
	tokenExpiry  time.Duration
	otpTTL       time.Duration
	resetBaseURL string
}

// NewService creates a new login flow service
func NewService(deps Deps, tokenExpiry, otpTTL time.Duration, resetBaseURL string) *Service {
	if otpTTL <= 0 {
		otpTTL = otp.DefaultTTL
	}
	return &Service{
		deps:         deps,
		tokenExpiry:  tokenExpiry,
		otpTTL:       otpTTL,
		resetBaseURL: resetBaseURL,
	}
}

// ProcessPasswordLogin runs the password login variant:
// rate gate, credential lookup, password-set gate, password check,
// two-factor gate, token issuance, permission attachment. Every exit path
// writes exactly one audit record.
func (s *Service) ProcessPasswordLogin(ctx context.Context, request Request) Result {
	if rejected := s.rateGate(ctx, request, audit.VariantPassword); rejected != nil {
		return *rejected
	}

	cred, rejected := s.lookupCredential(ctx, request, audit.VariantPassword, false)
	if rejected != nil {
		return *rejected
	}

	// A credential without a password must go through the OTP variant; this
	// gate is deliberate behavior, not a failure of the password check.
	if !cred.PasswordSet {
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantPassword, false, "password_not_set")
		return s.rejected(apperr.New(apperr.ErrCodePasswordNotSet,
			"No password set for this account, use one-time code login"))
	}

	valid, err := s.deps.LoginService.CheckPassword(ctx, cred, request.Password)
	if err != nil {
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantPassword, false, "internal_error")
		return s.rejected(apperr.Wrap(err, apperr.ErrCodeInternal, "Login failed"))
	}
	if !valid {
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantPassword, false, "invalid_password")
		return s.rejected(apperr.New(apperr.ErrCodeInvalidCredentials, "Invalid email or password"))
	}

	if cred.TwoFactorEnabled {
		challenge, err := s.buildTwoFactorChallenge(cred)
		if err != nil {
			s.recordAttempt(ctx, &cred.ID, request, audit.VariantPassword, false, "internal_error")
			return s.rejected(apperr.Wrap(err, apperr.ErrCodeInternal, "Login failed"))
		}
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantPassword, true, "two_factor_challenge")
		return Result{
			Status:    StatusChallengeRequired,
			Challenge: challenge,
		}
	}

	result := s.authenticate(ctx, cred)
	if result.Err != nil {
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantPassword, false, string(result.Err.Code))
		return result
	}

	s.clearLingeringOTP(ctx, cred.ID)

	s.recordAttempt(ctx, &cred.ID, request, audit.VariantPassword, true, "")
	return result
}

// RequestOTP issues a one-time code for the OTP login variant and hands the
// rendered message to the notification collaborator.
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	cred, err := s.deps.LoginService.FindCredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, login.ErrCredentialNotFound) {
			return apperr.New(apperr.ErrCodeNotFound, "No account found for this email")
		}
		return apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to request one-time code")
	}
	if !cred.Active {
		return apperr.New(apperr.ErrCodeAccountInactive, "Account is not active")
	}

	code, err := otp.Generate()
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to request one-time code")
	}

	// Overwrites any prior live code for this subject
	if err := s.deps.OTPStore.Store(ctx, cred.ID.String(), code, s.otpTTL); err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to request one-time code")
	}

	msg := notification.Message{
		To:      cred.Email,
		Subject: "Your login code",
		Body: fmt.Sprintf("Your one-time login code is %s. It expires in %d minutes.",
			code, int(s.otpTTL.Minutes())),
	}
	if err := s.deps.Notifier.Send(ctx, msg); err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to send one-time code")
	}

	slog.Info("One-time code issued", "credential_id", cred.ID)
	return nil
}

// ProcessOTPLogin runs the OTP login variant. A successful verification
// consumes the code; a mismatch leaves it intact for retry within its TTL.
func (s *Service) ProcessOTPLogin(ctx context.Context, request Request) Result {
	if rejected := s.rateGate(ctx, request, audit.VariantOTP); rejected != nil {
		return *rejected
	}

	// Unlike the password variant, an unknown email is disclosed here
	cred, rejected := s.lookupCredential(ctx, request, audit.VariantOTP, true)
	if rejected != nil {
		return *rejected
	}

	if cred.EmployeeID == nil {
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantOTP, false, "profile_not_linked")
		return s.rejected(apperr.New(apperr.ErrCodeProfileNotLinked, "No linked profile for this account"))
	}

	valid, err := s.deps.OTPStore.Verify(ctx, cred.ID.String(), request.Code)
	if err != nil {
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantOTP, false, "internal_error")
		return s.rejected(apperr.Wrap(err, apperr.ErrCodeInternal, "Login failed"))
	}
	if !valid {
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantOTP, false, "invalid_otp")
		return s.rejected(apperr.New(apperr.ErrCodeOTPInvalid, "Invalid or expired one-time code"))
	}

	result := s.authenticate(ctx, cred)
	if result.Err != nil {
		s.recordAttempt(ctx, &cred.ID, request, audit.VariantOTP, false, string(result.Err.Code))
		return result
	}

	// Accounts without a password set are pushed into the change flow
	result.ForceChangePassword = !cred.PasswordSet

	s.recordAttempt(ctx, &cred.ID, request, audit.VariantOTP, true, "")
	return result
}

// ProcessTwoFactorVerify completes a password login that returned a
// challenge. A fresh enrollment secret presented here is persisted on the
// credential once a passcode validates against it.
func (s *Service) ProcessTwoFactorVerify(ctx context.Context, request TwoFactorVerifyRequest) Result {
	auditReq := Request{IPAddress: request.IPAddress, UserAgent: request.UserAgent}

	cred, err := s.deps.LoginService.GetCredentialByID(ctx, request.SubjectID)
	if err != nil {
		s.recordAttempt(ctx, nil, auditReq, audit.VariantTwoFactor, false, "unknown_subject")
		return s.rejected(apperr.New(apperr.ErrCode2FAInvalid, "Invalid two-factor code"))
	}
	auditReq.Email = cred.Email

	if !cred.Active {
		s.recordAttempt(ctx, &cred.ID, auditReq, audit.VariantTwoFactor, false, "account_inactive")
		return s.rejected(apperr.New(apperr.ErrCodeAccountInactive, "Account is not active"))
	}

	// The verify step only exists for credentials whose password check handed
	// out a challenge. Accepting it for anyone else would let a caller skip
	// the password check entirely by enrolling their own secret.
	if !cred.TwoFactorEnabled {
		s.recordAttempt(ctx, &cred.ID, auditReq, audit.VariantTwoFactor, false, "two_factor_not_enabled")
		return s.rejected(apperr.New(apperr.ErrCode2FAInvalid, "Invalid two-factor code"))
	}

	secret := cred.TwoFactorSecret
	enrolling := secret == ""
	if enrolling {
		secret = request.Secret
	}

	if secret == "" || !s.deps.TwoFactorService.ValidatePasscode(secret, request.Code) {
		s.recordAttempt(ctx, &cred.ID, auditReq, audit.VariantTwoFactor, false, "invalid_passcode")
		return s.rejected(apperr.New(apperr.ErrCode2FAInvalid, "Invalid two-factor code"))
	}

	if enrolling {
		if err := s.deps.LoginService.ConfirmTwoFactorSecret(ctx, cred, secret); err != nil {
			s.recordAttempt(ctx, &cred.ID, auditReq, audit.VariantTwoFactor, false, "internal_error")
			return s.rejected(apperr.Wrap(err, apperr.ErrCodeInternal, "Login failed"))
		}
	}

	result := s.authenticate(ctx, cred)
	if result.Err != nil {
		s.recordAttempt(ctx, &cred.ID, auditReq, audit.VariantTwoFactor, false, string(result.Err.Code))
		return result
	}

	s.clearLingeringOTP(ctx, cred.ID)

	s.recordAttempt(ctx, &cred.ID, auditReq, audit.VariantTwoFactor, true, "")
	return result
}

// RequestPasswordReset issues a reset token and mails the reset link. It
// reports success regardless of whether the email is known, to avoid
// account enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	token, err := s.deps.PasswordManager.InitPasswordReset(ctx, email)
	if err != nil {
		if errors.Is(err, login.ErrCredentialNotFound) {
			slog.Debug("Password reset requested for unknown email")
			return nil
		}
		return apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to request password reset")
	}

	msg := notification.Message{
		To:      email,
		Subject: "Password reset",
		Body: fmt.Sprintf("Follow this link to reset your password: %s?token=%s\n"+
			"The link expires in one hour.", s.resetBaseURL, token),
	}
	if err := s.deps.Notifier.Send(ctx, msg); err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to send password reset email")
	}
	return nil
}

// ResetPassword applies a new password using a reset token. Verification,
// reuse rejection, digest update, history append, and token consumption are
// one atomic operation in the repository.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string, request Request) error {
	err := s.deps.PasswordManager.ResetPassword(ctx, token, newPassword)

	subjectID, email := s.resetTokenOwner(ctx, token)
	auditReq := Request{Email: email, IPAddress: request.IPAddress, UserAgent: request.UserAgent}

	switch {
	case err == nil:
		s.recordAttempt(ctx, subjectID, auditReq, audit.VariantPasswordReset, true, "")
		return nil
	case errors.Is(err, login.ErrResetTokenNotFound), errors.Is(err, login.ErrResetTokenUsed):
		s.recordAttempt(ctx, subjectID, auditReq, audit.VariantPasswordReset, false, "invalid_token")
		return apperr.New(apperr.ErrCodeResetTokenInvalid, "Invalid reset token")
	case errors.Is(err, login.ErrResetTokenExpired):
		s.recordAttempt(ctx, subjectID, auditReq, audit.VariantPasswordReset, false, "expired_token")
		return apperr.New(apperr.ErrCodeResetTokenExpired, "Reset token has expired")
	case errors.Is(err, login.ErrPasswordReused):
		s.recordAttempt(ctx, subjectID, auditReq, audit.VariantPasswordReset, false, "password_reused")
		return apperr.New(apperr.ErrCodePasswordReused, "Password was used recently, choose a different one")
	default:
		s.recordAttempt(ctx, subjectID, auditReq, audit.VariantPasswordReset, false, "internal_error")
		return apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to reset password")
	}
}

// ChangePassword rotates the password of an authenticated subject
func (s *Service) ChangePassword(ctx context.Context, subjectID uuid.UUID, oldPassword, newPassword string, request Request) error {
	err := s.deps.PasswordManager.ChangePassword(ctx, subjectID, oldPassword, newPassword)

	auditReq := Request{Email: request.Email, IPAddress: request.IPAddress, UserAgent: request.UserAgent}

	switch {
	case err == nil:
		s.recordAttempt(ctx, &subjectID, auditReq, audit.VariantPasswordChange, true, "")
		return nil
	case errors.Is(err, login.ErrInvalidOldPassword):
		s.recordAttempt(ctx, &subjectID, auditReq, audit.VariantPasswordChange, false, "invalid_old_password")
		return apperr.New(apperr.ErrCodeUnauthorized, "Old password does not match")
	case errors.Is(err, login.ErrPasswordReused):
		s.recordAttempt(ctx, &subjectID, auditReq, audit.VariantPasswordChange, false, "password_reused")
		return apperr.New(apperr.ErrCodePasswordReused, "Password was used recently, choose a different one")
	default:
		s.recordAttempt(ctx, &subjectID, auditReq, audit.VariantPasswordChange, false, "internal_error")
		return apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to change password")
	}
}

// rateGate checks the login rate limiter. A rejected request is audited and
// carries the remaining window time for the Retry-After header.
func (s *Service) rateGate(ctx context.Context, request Request, variant string) *Result {
	if s.deps.LoginLimiter == nil {
		return nil
	}

	decision, err := s.deps.LoginLimiter.Allow(ctx, request.IPAddress)
	if err != nil {
		// A broken limiter store must not lock everyone out
		slog.Error("Login rate limiter unavailable, allowing attempt", "err", err)
		return nil
	}
	if decision.Allowed {
		return nil
	}

	s.recordAttempt(ctx, nil, request, variant, false, "rate_limited")
	result := s.rejected(apperr.New(apperr.ErrCodeRateLimitExceeded, "Too many login attempts").
		WithDetail("retry_after_seconds", int(decision.RetryAfter.Round(time.Second).Seconds())))
	return &result
}

// lookupCredential finds an active credential. discloseUnknown controls
// whether an unknown email is reported as such (OTP variant) or collapsed
// into the uniform invalid-credentials answer (password variant).
func (s *Service) lookupCredential(ctx context.Context, request Request, variant string, discloseUnknown bool) (login.Credential, *Result) {
	cred, err := s.deps.LoginService.FindCredentialByEmail(ctx, request.Email)
	if err != nil {
		if errors.Is(err, login.ErrCredentialNotFound) {
			s.recordAttempt(ctx, nil, request, variant, false, "credential_not_found")
			if discloseUnknown {
				r := s.rejected(apperr.New(apperr.ErrCodeNotFound, "No account found for this email"))
				return login.Credential{}, &r
			}
			r := s.rejected(apperr.New(apperr.ErrCodeInvalidCredentials, "Invalid email or password"))
			return login.Credential{}, &r
		}
		s.recordAttempt(ctx, nil, request, variant, false, "internal_error")
		r := s.rejected(apperr.Wrap(err, apperr.ErrCodeInternal, "Login failed"))
		return login.Credential{}, &r
	}

	if !cred.Active {
		s.recordAttempt(ctx, &cred.ID, request, variant, false, "account_inactive")
		r := s.rejected(apperr.New(apperr.ErrCodeAccountInactive, "Account is not active"))
		return login.Credential{}, &r
	}

	return cred, nil
}

// buildTwoFactorChallenge returns the existing secret, or fresh enrollment
// material for credentials that enabled 2FA but have not enrolled yet.
func (s *Service) buildTwoFactorChallenge(cred login.Credential) (*TwoFactorChallenge, error) {
	challenge := &TwoFactorChallenge{
		SubjectID: cred.ID,
		Secret:    cred.TwoFactorSecret,
	}
	if challenge.Secret == "" {
		enrollment, err := s.deps.TwoFactorService.GenerateEnrollment(cred.Email)
		if err != nil {
			return nil, err
		}
		challenge.Secret = enrollment.Secret
		challenge.ProvisioningURL = enrollment.ProvisioningURL
	}
	return challenge, nil
}

// authenticate issues the session token and attaches the role's permission
// list and menu tree.
func (s *Service) authenticate(ctx context.Context, cred login.Credential) Result {
	claims := tg.SessionClaims{
		Email:      cred.Email,
		EmployeeID: cred.EmployeeID,
		RoleID:     cred.RoleID,
		OrgID:      cred.OrgID,
	}
	claims.Subject = cred.ID.String()

	token, expiresAt, err := s.deps.TokenGenerator.GenerateToken(claims, s.tokenExpiry)
	if err != nil {
		return s.rejected(apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to create session token"))
	}

	permissions, err := s.deps.PermissionResolver.PermissionsForRole(ctx, cred.RoleID, cred.OrgID)
	if err != nil {
		return s.rejected(apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to resolve permissions"))
	}

	menus, err := s.deps.PermissionResolver.MenusForRole(ctx, cred.RoleID, cred.OrgID)
	if err != nil {
		return s.rejected(apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to resolve menus"))
	}

	return Result{
		Status:         StatusAuthenticated,
		Token:          token,
		TokenExpiresAt: expiresAt,
		Permissions:    permissions,
		Menus:          menus,
	}
}

// clearLingeringOTP drops any live one-time code once a login fully
// succeeded, so a previously requested code cannot outlive the session setup.
func (s *Service) clearLingeringOTP(ctx context.Context, credID uuid.UUID) {
	if err := s.deps.OTPStore.Clear(ctx, credID.String()); err != nil {
		slog.Warn("Failed to clear one-time code after login", "credential_id", credID, "err", err)
	}
}

// resetTokenOwner resolves the owner of a reset token for auditing. Best
// effort: an unknown token audits without a subject.
func (s *Service) resetTokenOwner(ctx context.Context, token string) (*uuid.UUID, string) {
	repo := s.deps.LoginService.Repository()
	data, err := repo.FindResetToken(ctx, token)
	if err != nil {
		return nil, ""
	}
	id := data.CredentialID
	return &id, data.Email
}

func (s *Service) recordAttempt(ctx context.Context, subjectID *uuid.UUID, request Request, variant string, success bool, reason string) {
	s.deps.AuditRecorder.Record(ctx, audit.Entry{
		SubjectID: subjectID,
		Email:     request.Email,
		Variant:   variant,
		IPAddress: request.IPAddress,
		UserAgent: request.UserAgent,
		Success:   success,
		Reason:    reason,
	})
}

func (s *Service) rejected(err *apperr.Error) Result {
	return Result{
		Status: StatusRejected,
		Err:    err,
	}
}
