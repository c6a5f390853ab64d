// Package vault provides the card-data vault abstraction: token lifecycle
// operations, the AEAD envelope used by the direct-capture store, and the
// placeholder-substitution layer that lets PSP adapters be written once
// against neutral card markers.
package vault

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TokenIDPrefix is the canonical token id scheme marker. Bare identifiers
// are accepted anywhere a token id is taken and canonicalized before lookup.
const TokenIDPrefix = "tok_"

// Predefined vault errors.
var (
	// ErrUnsupported indicates the active provider does not offer the
	// requested capability (e.g. decryption on a proxying vault).
	ErrUnsupported = errors.New("operation not supported by vault provider")

	// ErrInvalidCard indicates card data failed validation on capture.
	ErrInvalidCard = errors.New("invalid card data")
)

// NormalizeTokenID canonicalizes a token id to the prefixed form.
func NormalizeTokenID(id string) string {
	if id == "" || strings.HasPrefix(id, TokenIDPrefix) {
		return id
	}
	return TokenIDPrefix + id
}

// BodyEncoding selects how a forwarded request body is serialized after
// substitution.
type BodyEncoding string

// Body encodings.
const (
	EncodingJSON BodyEncoding = "json"
	EncodingForm BodyEncoding = "form"
)

// ForwardRequest is a PSP-bound request whose body contains neutral card
// markers. The provider resolves the markers for the given token and
// delivers the request to the destination URL.
type ForwardRequest struct {
	TokenID  string
	Method   string
	URL      string
	Headers  map[string]string
	Body     map[string]any
	Encoding BodyEncoding
}

// ForwardResponse is the raw PSP response from a forwarded request.
type ForwardResponse struct {
	StatusCode int
	Body       []byte
}

// Provider is the card vault capability interface. The concrete provider
// is selected once at startup from configuration; adapters and the engine
// only ever see this interface.
//
// A proxying provider (card data never reaches this process) supports
// token reads and Forward but not CreateToken or GetDecryptedCard. A
// direct-capture provider supports the full set.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// GetToken returns the non-sensitive token projection, or (nil, nil)
	// when the token does not exist. Not-found is not an error.
	GetToken(ctx context.Context, id string) (*Token, error)

	// CreateToken captures card data into a new token. Proxying providers
	// return ErrUnsupported: their capture happens client-side.
	CreateToken(ctx context.Context, card CardData, opts CreateOptions) (*Token, error)

	// DeleteToken soft-deletes a token. Deleting an already-inactive
	// token is a no-op.
	DeleteToken(ctx context.Context, id string) error

	// ValidateToken reports whether the token exists, is active, and has
	// not passed its expiry.
	ValidateToken(ctx context.Context, id string) (bool, error)

	// GetDecryptedCard returns the raw card data for a token, or
	// (nil, nil) when the token does not exist. This is the single
	// PCI-sensitive read path; callers use it immediately before PSP
	// submission and never cache the result. Proxying providers return
	// ErrUnsupported.
	GetDecryptedCard(ctx context.Context, id string) (*CardData, error)

	// Forward resolves the card markers in req.Body for req.TokenID and
	// delivers the request to the PSP destination.
	Forward(ctx context.Context, req ForwardRequest) (*ForwardResponse, error)
}

// CreateOptions holds optional token creation parameters.
type CreateOptions struct {
	// TTL bounds the token lifetime; zero means no expiry.
	TTL time.Duration
}
