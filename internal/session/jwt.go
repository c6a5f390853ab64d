// Package session issues and validates the bearer credentials that scope a
// payment session. A session token authorizes exactly one payment id: the
// confirmation endpoint accepts it only for that payment, so a leaked token
// cannot confirm anything else.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiry is how long a payment-session token stays valid. Sessions
// are short-lived: they exist only to carry a payment from creation to
// confirmation.
const DefaultExpiry = 15 * time.Minute

// Predefined session token errors.
var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token has expired")
)

// Claims are the claims in a payment-session token.
type Claims struct {
	jwt.RegisteredClaims

	// PaymentID is the single payment this session may confirm.
	PaymentID string `json:"pid"`
}

// Config holds configuration for the session token service.
type Config struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim for tokens.
	Issuer string

	// Audience is the audience claim for tokens.
	Audience string

	// Expiry overrides the token lifetime (optional).
	Expiry time.Duration
}

// Service issues and validates payment-session tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
}

// NewService creates a session token service.
func NewService(cfg Config) *Service {
	// A negative expiry mints already-expired tokens; only the zero value
	// means "use the default".
	expiry := cfg.Expiry
	if expiry == 0 {
		expiry = DefaultExpiry
	}
	return &Service{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     expiry,
	}
}

// Issue creates a session token scoped to one payment id.
func (s *Service) Issue(paymentID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   paymentID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		PaymentID: paymentID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate checks a session token and returns its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateForPayment checks the token and that it is scoped to paymentID.
func (s *Service) ValidateForPayment(tokenString, paymentID string) (*Claims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.PaymentID != paymentID {
		return nil, fmt.Errorf("%w: token scoped to a different payment", ErrInvalidToken)
	}
	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
