package tokengenerator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJwtTokenGenerator_RoundTrip(t *testing.T) {
	gen := NewJwtTokenGenerator("test-secret", "authcore-test", "authcore-test")

	employeeID := uuid.New()
	claims := SessionClaims{
		Email:      "ops@example.com",
		EmployeeID: &employeeID,
		RoleID:     7,
		OrgID:      3,
	}
	claims.Subject = uuid.New().String()

	token, expiresAt, err := gen.GenerateToken(claims, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	parsed, err := gen.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, claims.Email, parsed.Email)
	assert.Equal(t, claims.Subject, parsed.Subject)
	assert.Equal(t, claims.RoleID, parsed.RoleID)
	assert.Equal(t, claims.OrgID, parsed.OrgID)
	require.NotNil(t, parsed.EmployeeID)
	assert.Equal(t, employeeID, *parsed.EmployeeID)

	subjectID, err := parsed.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, claims.Subject, subjectID.String())
}

func TestJwtTokenGenerator_TamperedToken(t *testing.T) {
	gen := NewJwtTokenGenerator("test-secret", "authcore-test", "authcore-test")

	token, _, err := gen.GenerateToken(SessionClaims{Email: "ops@example.com"}, time.Hour)
	require.NoError(t, err)

	// Flip a character in the signature segment
	tampered := token[:len(token)-2] + "xx"
	_, err = gen.ParseToken(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJwtTokenGenerator_WrongSecret(t *testing.T) {
	gen := NewJwtTokenGenerator("test-secret", "authcore-test", "authcore-test")
	other := NewJwtTokenGenerator("other-secret", "authcore-test", "authcore-test")

	token, _, err := gen.GenerateToken(SessionClaims{}, time.Hour)
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJwtTokenGenerator_ExpiredToken(t *testing.T) {
	gen := NewJwtTokenGenerator("test-secret", "authcore-test", "authcore-test")

	token, _, err := gen.GenerateToken(SessionClaims{}, 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	// Expiry failures are indistinguishable from tampering
	_, err = gen.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJwtTokenGenerator_WrongIssuer(t *testing.T) {
	gen := NewJwtTokenGenerator("test-secret", "issuer-a", "authcore-test")
	other := NewJwtTokenGenerator("test-secret", "issuer-b", "authcore-test")

	token, _, err := gen.GenerateToken(SessionClaims{}, time.Hour)
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJwtTokenGenerator_GarbageInput(t *testing.T) {
	gen := NewJwtTokenGenerator("test-secret", "authcore-test", "authcore-test")

	for _, input := range []string{"", "not-a-token", "a.b.c"} {
		_, err := gen.ParseToken(input)
		assert.ErrorIs(t, err, ErrTokenInvalid, "input %q", input)
	}
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractToken(req))

	req.AddCookie(&http.Cookie{Name: SessionTokenName, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", ExtractToken(req))

	// The Authorization header wins over the cookie
	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", ExtractToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwd2Q=")
	assert.Equal(t, "cookie-token", ExtractToken(req))
}

func TestCookieSetter(t *testing.T) {
	setter := NewCookieSetter(true, false)

	rec := httptest.NewRecorder()
	err := setter.SetCookie(rec, SessionTokenName, "token-value", time.Now().Add(time.Hour))
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionTokenName, cookies[0].Name)
	assert.Equal(t, "token-value", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	rec = httptest.NewRecorder()
	require.NoError(t, setter.ClearCookie(rec, SessionTokenName))
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, strings.HasPrefix(cookies[0].String(), SessionTokenName+"="))
	assert.Negative(t, cookies[0].MaxAge)
}
