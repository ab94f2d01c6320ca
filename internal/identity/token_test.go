package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	actor := Actor{ID: uuid.New(), Role: RoleSpecialist}

	token, err := v.Issue(actor, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenVerifier("secret-a")
	token, err := issuer.Issue(Actor{ID: uuid.New(), Role: RolePatient}, time.Hour)
	require.NoError(t, err)

	_, err = NewTokenVerifier("secret-b").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	token, err := v.Issue(Actor{ID: uuid.New(), Role: RolePatient}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewTokenVerifier("test-secret")

	_, err := v.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsBadClaims(t *testing.T) {
	secret := []byte("test-secret")
	v := NewTokenVerifier(string(secret))

	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		require.NoError(t, err)
		return token
	}

	exp := time.Now().Add(time.Hour).Unix()

	_, err := v.Verify(sign(jwt.MapClaims{"sub": "not-a-uuid", "role": "patient", "exp": exp}))
	assert.ErrorIs(t, err, ErrInvalidToken, "non-uuid subject")

	_, err = v.Verify(sign(jwt.MapClaims{"sub": uuid.NewString(), "role": "receptionist", "exp": exp}))
	assert.ErrorIs(t, err, ErrInvalidToken, "unknown role")

	_, err = v.Verify(sign(jwt.MapClaims{"role": "patient", "exp": exp}))
	assert.ErrorIs(t, err, ErrInvalidToken, "missing subject")
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	v := NewTokenVerifier("test-secret")

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": "admin",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
