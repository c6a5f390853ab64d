package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroute/cardroute/internal/session"
)

func newService(key string) *session.Service {
	return session.NewService(session.Config{
		SigningKey: key,
		Issuer:     "https://api.cardroute.io",
		Audience:   "cardroute-api",
	})
}

func TestService_IssueAndValidate(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	token, expiresAt, err := svc.Issue("pay_42")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "pay_42", claims.PaymentID)
	assert.Equal(t, "pay_42", claims.Subject)
	assert.Equal(t, "https://api.cardroute.io", claims.Issuer)
}

func TestService_InvalidToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestService_WrongSigningKey(t *testing.T) {
	token, _, err := newService("key-one").Issue("pay_42")
	require.NoError(t, err)

	_, err = newService("key-two").Validate(token)
	assert.ErrorIs(t, err, session.ErrInvalidToken)
}

func TestService_ExpiredToken(t *testing.T) {
	svc := session.NewService(session.Config{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.cardroute.io",
		Audience:   "cardroute-api",
		Expiry:     -time.Minute,
	})

	token, _, err := svc.Issue("pay_42")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, session.ErrTokenExpired)
}

func TestService_ValidateForPayment(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	token, _, err := svc.Issue("pay_42")
	require.NoError(t, err)

	claims, err := svc.ValidateForPayment(token, "pay_42")
	require.NoError(t, err)
	assert.Equal(t, "pay_42", claims.PaymentID)

	_, err = svc.ValidateForPayment(token, "pay_43")
	assert.ErrorIs(t, err, session.ErrInvalidToken, "token is scoped to a single payment")
}
