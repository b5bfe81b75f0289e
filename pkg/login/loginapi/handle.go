// Package loginapi exposes the login and password lifecycle flows over HTTP.
package loginapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/opsadmin/authcore/pkg/apperr"
	"github.com/opsadmin/authcore/pkg/auth"
	"github.com/opsadmin/authcore/pkg/loginflow"
	"github.com/opsadmin/authcore/pkg/ratelimit"
	"github.com/opsadmin/authcore/pkg/rbac"
	tg "github.com/opsadmin/authcore/pkg/tokengenerator"
)

// Handle serves the authentication endpoints
type Handle struct {
	flow         *loginflow.Service
	resolver     *rbac.Service
	cookieSetter tg.CookieSetter
}

// Option configures a Handle
type Option func(*Handle)

// WithCookieSetter makes successful logins also set the session cookie
func WithCookieSetter(cs tg.CookieSetter) Option {
	return func(h *Handle) {
		h.cookieSetter = cs
	}
}

// NewHandle creates a new Handle
func NewHandle(flow *loginflow.Service, resolver *rbac.Service, opts ...Option) *Handle {
	h := &Handle{
		flow:     flow,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the authentication endpoints
func (h *Handle) Routes(r chi.Router) {
	r.Post("/login", h.PostLogin)
	r.Post("/login/otp/request", h.PostOTPRequest)
	r.Post("/login/otp/verify", h.PostOTPVerify)
	r.Post("/2fa/verify", h.Post2FAVerify)
	r.Post("/password/forgot", h.PostPasswordForgot)
	r.Post("/password/reset", h.PostPasswordReset)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuthenticated)
		r.Post("/password/change", h.PostPasswordChange)
		r.Get("/menus", h.GetMenus)
	})
}

// LoginRequest is the password login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OTPRequestRequest asks for a one-time login code
type OTPRequestRequest struct {
	Email string `json:"email"`
}

// OTPVerifyRequest is the OTP login payload
type OTPVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// TwoFactorVerifyRequest completes a challenged password login
type TwoFactorVerifyRequest struct {
	SubjectID string `json:"subject_id"`
	Secret    string `json:"secret,omitempty"`
	Code      string `json:"code"`
}

// ForgotPasswordRequest asks for a reset link
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest applies a new password via reset token
type ResetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePasswordRequest rotates the password of the authenticated subject
type ChangePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginResponse is the outcome of any login variant
type LoginResponse struct {
	Status              loginflow.Status              `json:"status"`
	Token               string                        `json:"token,omitempty"`
	TokenExpiresAt      time.Time                     `json:"token_expires_at,omitempty"`
	Permissions         []string                      `json:"permissions,omitempty"`
	Menus               []rbac.MenuNode               `json:"menus,omitempty"`
	ForceChangePassword bool                          `json:"force_change_password,omitempty"`
	Challenge           *loginflow.TwoFactorChallenge `json:"challenge,omitempty"`
}

// MessageResponse is a plain acknowledgment body
type MessageResponse struct {
	Message string `json:"message"`
}

// PostLogin handles the password login variant
func (h *Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Unable to parse request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Email and password are required"))
		return
	}

	result := h.flow.ProcessPasswordLogin(r.Context(), loginflow.Request{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	h.renderResult(w, r, result)
}

// PostOTPRequest issues a one-time login code
func (h *Handle) PostOTPRequest(w http.ResponseWriter, r *http.Request) {
	var req OTPRequestRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Unable to parse request body"))
		return
	}
	if req.Email == "" {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Email is required"))
		return
	}

	if err := h.flow.RequestOTP(r.Context(), req.Email); err != nil {
		h.renderAppError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "One-time code sent"})
}

// PostOTPVerify handles the OTP login variant
func (h *Handle) PostOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req OTPVerifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Unable to parse request body"))
		return
	}
	if req.Email == "" || req.Code == "" {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Email and code are required"))
		return
	}

	result := h.flow.ProcessOTPLogin(r.Context(), loginflow.Request{
		Email:     req.Email,
		Code:      req.Code,
		IPAddress: ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	h.renderResult(w, r, result)
}

// Post2FAVerify completes a challenged password login
func (h *Handle) Post2FAVerify(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorVerifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Unable to parse request body"))
		return
	}
	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil || req.Code == "" {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Subject id and code are required"))
		return
	}

	result := h.flow.ProcessTwoFactorVerify(r.Context(), loginflow.TwoFactorVerifyRequest{
		SubjectID: subjectID,
		Secret:    req.Secret,
		Code:      req.Code,
		IPAddress: ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	h.renderResult(w, r, result)
}

// PostPasswordForgot issues a reset link. The response does not reveal
// whether the email is known.
func (h *Handle) PostPasswordForgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Unable to parse request body"))
		return
	}
	if req.Email == "" {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Email is required"))
		return
	}

	if err := h.flow.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.renderAppError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "If the email is registered, a reset link has been sent"})
}

// PostPasswordReset applies a new password via reset token
func (h *Handle) PostPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Unable to parse request body"))
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Token and new password are required"))
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		h.renderError(w, r, apperr.New(apperr.ErrCodePasswordMismatch, "Password confirmation does not match"))
		return
	}

	err := h.flow.ResetPassword(r.Context(), req.Token, req.NewPassword, loginflow.Request{
		IPAddress: ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.renderAppError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "Password has been reset"})
}

// PostPasswordChange rotates the password of the authenticated subject
func (h *Handle) PostPasswordChange(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	subjectID, err := claims.SubjectID()
	if err != nil {
		h.renderError(w, r, apperr.New(apperr.ErrCodeUnauthorized, "Invalid session"))
		return
	}

	var req ChangePasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "Unable to parse request body"))
		return
	}
	if req.NewPassword == "" {
		h.renderError(w, r, apperr.New(apperr.ErrCodeInvalidInput, "New password is required"))
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		h.renderError(w, r, apperr.New(apperr.ErrCodePasswordMismatch, "Password confirmation does not match"))
		return
	}

	err = h.flow.ChangePassword(r.Context(), subjectID, req.OldPassword, req.NewPassword, loginflow.Request{
		Email:     claims.Email,
		IPAddress: ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.renderAppError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "Password has been changed"})
}

// GetMenus returns the two-level menu tree visible to the caller's role
func (h *Handle) GetMenus(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	menus, err := h.resolver.MenusForRole(r.Context(), claims.RoleID, claims.OrgID)
	if err != nil {
		h.renderAppError(w, r, apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to resolve menus"))
		return
	}
	render.JSON(w, r, menus)
}

// renderResult writes a login flow outcome. Authenticated results also set
// the session cookie when a cookie setter is configured.
func (h *Handle) renderResult(w http.ResponseWriter, r *http.Request, result loginflow.Result) {
	if result.Err != nil {
		h.renderError(w, r, result.Err)
		return
	}

	if result.Status == loginflow.StatusAuthenticated && h.cookieSetter != nil {
		if err := h.cookieSetter.SetCookie(w, tg.SessionTokenName, result.Token, result.TokenExpiresAt); err != nil {
			h.renderError(w, r, apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to set session cookie"))
			return
		}
	}

	var resp LoginResponse
	if err := copier.Copy(&resp, &result); err != nil {
		h.renderError(w, r, apperr.Wrap(err, apperr.ErrCodeInternal, "Failed to build response"))
		return
	}
	render.JSON(w, r, resp)
}

func (h *Handle) renderAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
	} else {
		appErr = apperr.Wrap(err, apperr.ErrCodeInternal, "Internal error")
	}
	h.renderError(w, r, appErr)
}

func (h *Handle) renderError(w http.ResponseWriter, r *http.Request, err *apperr.Error) {
	if err.Code == apperr.ErrCodeRateLimitExceeded {
		if retry, ok := err.Details["retry_after_seconds"].(int); ok && retry > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
	}

	render.Status(r, err.HTTPStatusCode())
	render.JSON(w, r, map[string]interface{}{
		"code":    string(err.Code),
		"message": err.Message,
	})
}
