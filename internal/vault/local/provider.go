package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/vault"
)

// ProviderName identifies the direct-capture vault provider.
const ProviderName = "local"

// DefaultForwardTimeout bounds a forwarded PSP call.
const DefaultForwardTimeout = 10 * time.Second

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProviderConfig holds configuration for the direct-capture provider.
type ProviderConfig struct {
	// Store persists token records (required).
	Store Store

	// Cipher encrypts and decrypts card envelopes (required).
	Cipher *vault.Cipher

	// HTTPClient delivers forwarded PSP requests (optional).
	HTTPClient HTTPDoer

	// ForwardTimeout bounds a forwarded call (optional, defaults to 10s).
	ForwardTimeout time.Duration

	// Logger for provider operations.
	Logger zerolog.Logger
}

// Provider is the direct-capture vault: card data is AEAD-encrypted into
// the store on capture and decrypted only on GetDecryptedCard or Forward.
type Provider struct {
	store          Store
	cipher         *vault.Cipher
	httpClient     HTTPDoer
	forwardTimeout time.Duration
	logger         zerolog.Logger

	now func() time.Time
}

// NewProvider creates a direct-capture vault provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Cipher == nil {
		return nil, fmt.Errorf("cipher is required")
	}
	if err := vault.VerifyMarkers(); err != nil {
		return nil, fmt.Errorf("marker table: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultForwardTimeout}
	}
	forwardTimeout := cfg.ForwardTimeout
	if forwardTimeout == 0 {
		forwardTimeout = DefaultForwardTimeout
	}

	return &Provider{
		store:          cfg.Store,
		cipher:         cfg.Cipher,
		httpClient:     httpClient,
		forwardTimeout: forwardTimeout,
		logger:         cfg.Logger,
		now:            time.Now,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// CreateToken validates and captures card data. Re-tokenizing a PAN that
// already has an active token returns the existing token instead of
// minting a duplicate.
func (p *Provider) CreateToken(ctx context.Context, card vault.CardData, opts vault.CreateOptions) (*vault.Token, error) {
	if !card.Valid() {
		return nil, vault.ErrInvalidCard
	}

	fingerprint := p.cipher.Fingerprint(card.Number)

	if existing, err := p.store.FindActiveByFingerprint(ctx, fingerprint); err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	} else if existing != nil && !existing.Token.Expired(p.now()) {
		p.logger.Debug().
			Str("token_id", existing.Token.ID).
			Msg("re-tokenization deduplicated by fingerprint")
		tok := existing.Token
		return &tok, nil
	}

	id := vault.TokenIDPrefix + uuid.New().String()

	plaintext, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("encoding card data: %w", err)
	}

	env, err := p.cipher.Encrypt(plaintext, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("encrypting card data: %w", err)
	}

	now := p.now()
	token := vault.Token{
		ID:          id,
		Fingerprint: fingerprint,
		Brand:       card.Brand(),
		Last4:       card.Last4(),
		ExpMonth:    card.ExpMonth,
		ExpYear:     card.ExpYear4(),
		HolderName:  card.HolderName,
		CreatedAt:   now,
		Active:      true,
	}
	if opts.TTL > 0 {
		expiresAt := now.Add(opts.TTL)
		token.ExpiresAt = &expiresAt
	}

	if err := p.store.Insert(ctx, Record{Token: token, Envelope: *env}); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}

	p.logger.Info().
		Str("token_id", id).
		Str("brand", string(token.Brand)).
		Str("last4", token.Last4).
		Msg("card tokenized")

	return &token, nil
}

// GetToken returns the token projection, or (nil, nil) when absent.
func (p *Provider) GetToken(ctx context.Context, id string) (*vault.Token, error) {
	rec, err := p.store.Get(ctx, vault.NormalizeTokenID(id))
	if err != nil || rec == nil {
		return nil, err
	}
	tok := rec.Token
	return &tok, nil
}

// DeleteToken soft-deletes a token; already-inactive tokens are a no-op.
func (p *Provider) DeleteToken(ctx context.Context, id string) error {
	return p.store.Deactivate(ctx, vault.NormalizeTokenID(id))
}

// ValidateToken reports whether the token exists, is active, and is not
// past its expiry.
func (p *Provider) ValidateToken(ctx context.Context, id string) (bool, error) {
	rec, err := p.store.Get(ctx, vault.NormalizeTokenID(id))
	if err != nil {
		return false, err
	}
	if rec == nil || !rec.Token.Active {
		return false, nil
	}
	return !rec.Token.Expired(p.now()), nil
}

// GetDecryptedCard decrypts the card for a token, or returns (nil, nil)
// when the token does not exist. The caller uses the result immediately
// and never caches it.
func (p *Provider) GetDecryptedCard(ctx context.Context, id string) (*vault.CardData, error) {
	canonical := vault.NormalizeTokenID(id)

	rec, err := p.store.Get(ctx, canonical)
	if err != nil || rec == nil {
		return nil, err
	}

	plaintext, err := p.cipher.Decrypt(&rec.Envelope, []byte(canonical))
	if err != nil {
		return nil, err
	}

	var card vault.CardData
	if err := json.Unmarshal(plaintext, &card); err != nil {
		return nil, fmt.Errorf("%w: corrupt plaintext", vault.ErrDecryptionFailed)
	}
	return &card, nil
}

// Forward substitutes the card markers with literal card data and delivers
// the request to the PSP destination.
func (p *Provider) Forward(ctx context.Context, req vault.ForwardRequest) (*vault.ForwardResponse, error) {
	card, err := p.GetDecryptedCard(ctx, req.TokenID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("token %s not found", vault.NormalizeTokenID(req.TokenID))
	}

	substituted := vault.SubstituteTree(req.Body, vault.CardValues(*card)).(map[string]any)

	payload, contentType, err := vault.EncodeBody(substituted, req.Encoding)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.forwardTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("delivering to psp: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading psp response: %w", err)
	}

	return &vault.ForwardResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// brandFromString maps a stored brand string back to a CardBrand.
func brandFromString(s string) vault.CardBrand {
	switch vault.CardBrand(s) {
	case vault.BrandVisa, vault.BrandMastercard, vault.BrandAmex, vault.BrandDiscover:
		return vault.CardBrand(s)
	default:
		return vault.BrandUnknown
	}
}
