package tokengenerator

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTokenName is the cookie name for the session token
const SessionTokenName = "access_token"

// DefaultSessionTokenExpiry is used when no TTL is configured
const DefaultSessionTokenExpiry = 8 * time.Hour

// ErrTokenInvalid is the uniform verification failure. Structural,
// signature, and expiry failures all collapse to it so callers cannot
// distinguish a tampered token from an expired one.
var ErrTokenInvalid = errors.New("token invalid")

// SessionClaims is the signed payload of a session token. The token is the
// session: no server-side session record exists.
type SessionClaims struct {
	Email      string     `json:"email,omitempty"`
	EmployeeID *uuid.UUID `json:"employee_id,omitempty"`
	RoleID     int64      `json:"role_id,omitempty"`
	OrgID      int64      `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID parses the registered subject claim as a UUID
func (c *SessionClaims) SubjectID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenGenerator interface defines methods for token operations
type TokenGenerator interface {
	// GenerateToken signs a session token for the given claims and expiry
	GenerateToken(claims SessionClaims, expiry time.Duration) (string, time.Time, error)

	// ParseToken parses and validates a token, returning its claims.
	// Any failure is reported as ErrTokenInvalid.
	ParseToken(tokenStr string) (*SessionClaims, error)
}

// JwtTokenGenerator implements the TokenGenerator interface using HS256.
// The signing secret is injected at construction and immutable thereafter.
type JwtTokenGenerator struct {
	secret   string
	issuer   string
	audience string
}

// NewJwtTokenGenerator creates a new JwtTokenGenerator
func NewJwtTokenGenerator(secret, issuer, audience string) *JwtTokenGenerator {
	return &JwtTokenGenerator{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
	}
}

// GenerateToken creates a new signed token carrying the given claims
func (g *JwtTokenGenerator) GenerateToken(claims SessionClaims, expiry time.Duration) (string, time.Time, error) {
	if expiry <= 0 {
		expiry = DefaultSessionTokenExpiry
	}

	now := time.Now().UTC()
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.NotBefore = jwt.NewNumericDate(now.Add(-5 * time.Minute))
	claims.RegisteredClaims.Issuer = g.issuer
	claims.RegisteredClaims.ID = uuid.New().String()
	claims.RegisteredClaims.Audience = jwt.ClaimStrings{g.audience}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(g.secret))
	if err != nil {
		slog.Error("Failed to sign JWT claims", "err", err)
		return "", time.Time{}, err
	}
	return ss, claims.ExpiresAt.Time, nil
}

// ParseToken parses and validates a token string. The reason for a failure
// is logged locally but never surfaced to the caller.
func (g *JwtTokenGenerator) ParseToken(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(g.secret), nil
	}, jwt.WithIssuer(g.issuer), jwt.WithAudience(g.audience))
	if err != nil {
		slog.Debug("Failed to parse JWT string", "err", err)
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		slog.Debug("Token claims invalid")
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
