// Package twofa implements TOTP-based second-factor verification.
package twofa

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP step in seconds
	Period = 30

	// Skew is the number of periods accepted either side of now
	Skew = 1
)

// Enrollment carries the material a client needs to enroll an authenticator
type Enrollment struct {
	// Secret is the shared TOTP secret, base32 encoded
	Secret string

	// ProvisioningURL is the otpauth:// URL for QR rendering
	ProvisioningURL string
}

// TwoFactorService generates enrollment material and validates passcodes
type TwoFactorService interface {
	// GenerateEnrollment creates a fresh secret for the given account
	GenerateEnrollment(accountName string) (Enrollment, error)

	// ValidatePasscode checks a submitted passcode against the secret
	ValidatePasscode(secret, passcode string) bool
}

// TotpService implements TwoFactorService using RFC 6238 TOTP
type TotpService struct {
	issuer string
}

// NewTotpService creates a new TotpService. The issuer appears in
// authenticator apps next to the account name.
func NewTotpService(issuer string) *TotpService {
	return &TotpService{issuer: issuer}
}

// GenerateEnrollment creates a fresh secret and provisioning URL
func (s *TotpService) GenerateEnrollment(accountName string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	return Enrollment{
		Secret:          key.Secret(),
		ProvisioningURL: key.URL(),
	}, nil
}

// ValidatePasscode checks a submitted passcode against the secret
func (s *TotpService) ValidatePasscode(secret, passcode string) bool {
	valid, err := totp.ValidateCustom(passcode, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    Period,
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}
