// Package basistheory provides the proxying vault provider. Card data
// never reaches this process: tokens are captured client-side against the
// Basis Theory API, and PSP-bound requests are delivered through the vault
// proxy, which resolves detokenization expressions server-side before
// forwarding.
package basistheory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/httpx"
	"github.com/cardroute/cardroute/internal/vault"
)

const (
	// ProviderName identifies this vault provider.
	ProviderName = "basistheory"

	// DefaultBaseURL is the Basis Theory API base URL.
	DefaultBaseURL = "https://api.basistheory.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the proxying vault provider.
type Config struct {
	// APIKey is the vault API key (required).
	APIKey string

	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional). If nil, a
	// resilient client with defaults is used.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Logger for provider operations.
	Logger zerolog.Logger
}

// Provider is a vault.Provider backed by a tokenization proxy service.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger

	now func() time.Time
}

// NewProvider creates a proxying vault provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if err := vault.VerifyMarkers(); err != nil {
		return nil, fmt.Errorf("marker table: %w", err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := httpx.DefaultConfig(ProviderName)
		if cfg.Timeout != 0 {
			clientCfg.Timeout = cfg.Timeout
		}
		httpClient = httpx.NewClient(clientCfg)
	}

	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
		now:        time.Now,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// btToken is the provider's token wire shape.
type btToken struct {
	ID          string     `json:"id"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Card        struct {
		Brand          string `json:"brand"`
		Last4          string `json:"last4"`
		ExpMonth       int    `json:"expiration_month"`
		ExpYear        int    `json:"expiration_year"`
		CardholderName string `json:"cardholder_name,omitempty"`
	} `json:"card"`
}

// GetToken returns the token projection, or (nil, nil) when the vault
// reports 404.
func (p *Provider) GetToken(ctx context.Context, id string) (*vault.Token, error) {
	canonical := vault.NormalizeTokenID(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/tokens/"+canonical, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("BT-API-KEY", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vault returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	var bt btToken
	if err := json.Unmarshal(body, &bt); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	return p.toToken(&bt), nil
}

// CreateToken is not supported: a proxying vault captures card data
// client-side, before it could ever reach this process.
func (p *Provider) CreateToken(_ context.Context, _ vault.CardData, _ vault.CreateOptions) (*vault.Token, error) {
	return nil, vault.ErrUnsupported
}

// DeleteToken soft-deletes the token at the vault; a 404 keeps the call
// idempotent.
func (p *Provider) DeleteToken(ctx context.Context, id string) error {
	canonical := vault.NormalizeTokenID(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/tokens/"+canonical, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("BT-API-KEY", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("vault returned status %d", resp.StatusCode)
	}
}

// ValidateToken reports whether the token exists and is not expired.
func (p *Provider) ValidateToken(ctx context.Context, id string) (bool, error) {
	tok, err := p.GetToken(ctx, id)
	if err != nil {
		return false, err
	}
	if tok == nil {
		return false, nil
	}
	return !tok.Expired(p.now()), nil
}

// GetDecryptedCard is not supported: the whole point of the proxying mode
// is that this process holds no decrypt capability.
func (p *Provider) GetDecryptedCard(_ context.Context, _ string) (*vault.CardData, error) {
	return nil, vault.ErrUnsupported
}

// Forward rewrites the card markers into detokenization expressions bound
// to the token and posts the request through the vault proxy, which
// resolves the expressions and forwards to the PSP.
func (p *Provider) Forward(ctx context.Context, req vault.ForwardRequest) (*vault.ForwardResponse, error) {
	tokenID := vault.NormalizeTokenID(req.TokenID)

	substituted := vault.SubstituteTree(req.Body, expressionValues(tokenID)).(map[string]any)

	payload, contentType, err := vault.EncodeBody(substituted, req.Encoding)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, p.baseURL+"/proxy", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating proxy request: %w", err)
	}
	httpReq.Header.Set("BT-API-KEY", p.apiKey)
	httpReq.Header.Set("BT-PROXY-URL", req.URL)
	httpReq.Header.Set("Content-Type", contentType)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	p.logger.Debug().
		Str("destination", req.URL).
		Str("token_id", tokenID).
		Msg("forwarding request through vault proxy")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("proxy call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading proxy response: %w", err)
	}

	return &vault.ForwardResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// expressionValues maps canonical markers to the vault's detokenization
// expression syntax for the given token.
func expressionValues(tokenID string) vault.MarkerValues {
	expr := func(path string) string {
		return fmt.Sprintf("{{ %s | json: '$.%s' }}", tokenID, path)
	}
	values := map[string]string{
		vault.MarkerCardNumber:     expr("number"),
		vault.MarkerCardExpMonth:   expr("expiration_month"),
		vault.MarkerCardExpYear:    expr("expiration_year"),
		vault.MarkerCardExpYear2:   fmt.Sprintf("{{ %s | json: '$.expiration_year' | substring: 2, 2 }}", tokenID),
		vault.MarkerCardCVC:        expr("cvc"),
		vault.MarkerCardHolderName: expr("cardholder_name"),
	}
	return func(marker string) (string, bool) {
		v, ok := values[marker]
		return v, ok
	}
}

func (p *Provider) toToken(bt *btToken) *vault.Token {
	return &vault.Token{
		ID:          vault.NormalizeTokenID(bt.ID),
		Fingerprint: bt.Fingerprint,
		Brand:       cardBrand(bt.Card.Brand),
		Last4:       bt.Card.Last4,
		ExpMonth:    strconv.Itoa(bt.Card.ExpMonth),
		ExpYear:     strconv.Itoa(bt.Card.ExpYear),
		HolderName:  bt.Card.CardholderName,
		CreatedAt:   bt.CreatedAt,
		ExpiresAt:   bt.ExpiresAt,
		Active:      true,
	}
}

func cardBrand(s string) vault.CardBrand {
	switch vault.CardBrand(s) {
	case vault.BrandVisa, vault.BrandMastercard, vault.BrandAmex, vault.BrandDiscover:
		return vault.CardBrand(s)
	default:
		return vault.BrandUnknown
	}
}
