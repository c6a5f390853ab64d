// Package adyen implements the payment adapter for the Adyen Checkout API.
package adyen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/httpx"
	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/vault"
)

const (
	// Name is the provider identifier.
	Name = "adyen"

	// DefaultBaseURL is the Adyen Checkout API base URL.
	DefaultBaseURL = "https://checkout-test.adyen.com/v71"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the Adyen adapter.
type Config struct {
	// Credentials holds the API key and merchant account (required).
	Credentials psp.Credentials

	// Vault delivers marker-bearing charge requests (required).
	Vault vault.Provider

	// HTTPClient executes non-sensitive API calls (optional). If nil, a
	// resilient client with defaults is used.
	HTTPClient HTTPDoer

	// Features toggles optional adapter behavior.
	Features psp.Features

	// Logger for adapter operations.
	Logger zerolog.Logger
}

// Adapter is the Adyen payment adapter.
type Adapter struct {
	apiKey          string
	merchantAccount string
	baseURL         string
	vault           vault.Provider
	httpClient      HTTPDoer
	features        psp.Features
	logger          zerolog.Logger
}

// NewAdapter creates an Adyen adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Credentials.APIKey == "" {
		return nil, &psp.ValidationError{Field: "adyen.api_key", Message: "missing API key"}
	}
	if cfg.Credentials.MerchantAccount == "" {
		return nil, &psp.ValidationError{Field: "adyen.merchant_account", Message: "missing merchant account"}
	}
	if cfg.Vault == nil {
		return nil, &psp.ValidationError{Field: "adyen.vault", Message: "missing vault provider"}
	}

	baseURL := cfg.Credentials.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = httpx.NewClient(httpx.DefaultConfig(Name))
	}

	return &Adapter{
		apiKey:          cfg.Credentials.APIKey,
		merchantAccount: cfg.Credentials.MerchantAccount,
		baseURL:         baseURL,
		vault:           cfg.Vault,
		httpClient:      httpClient,
		features:        cfg.Features,
		logger:          cfg.Logger,
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return Name
}

// Charge submits a payment. The body carries only the neutral card markers;
// the vault resolves them at delivery.
func (a *Adapter) Charge(ctx context.Context, req psp.ChargeRequest) (*psp.ChargeResponse, error) {
	paymentMethod := map[string]any{
		"type":        "scheme",
		"number":      vault.MarkerCardNumber,
		"expiryMonth": vault.MarkerCardExpMonth,
		"expiryYear":  vault.MarkerCardExpYear,
		"cvc":         vault.MarkerCardCVC,
	}

	body := map[string]any{
		"amount": map[string]any{
			"value":    req.Amount,
			"currency": req.Currency,
		},
		"reference":       req.IdempotencyKey,
		"merchantAccount": a.merchantAccount,
		"paymentMethod":   paymentMethod,
	}

	if !a.features.Emergency {
		paymentMethod["holderName"] = vault.MarkerCardHolderName
		if req.Description != "" {
			body["shopperStatement"] = req.Description
		}
		if len(req.Metadata) > 0 {
			meta := make(map[string]any, len(req.Metadata))
			for k, v := range req.Metadata {
				meta[k] = v
			}
			body["metadata"] = meta
		}
	}

	resp, err := a.vault.Forward(ctx, vault.ForwardRequest{
		TokenID: req.TokenID,
		Method:  http.MethodPost,
		URL:     a.baseURL + "/payments",
		Headers: map[string]string{
			"X-API-Key":       a.apiKey,
			"Idempotency-Key": req.IdempotencyKey,
		},
		Body:     body,
		Encoding: vault.EncodingJSON,
	})
	if err != nil {
		return nil, &psp.Error{
			Provider: Name,
			Code:     "delivery_failed",
			Message:  err.Error(),
			Err:      fmt.Errorf("%w: %w", psp.ErrProviderUnavailable, err),
		}
	}

	return a.parsePayment(resp.StatusCode, resp.Body)
}

// Capture captures a previously authorized payment.
func (a *Adapter) Capture(ctx context.Context, req psp.CaptureRequest) (*psp.ChargeResponse, error) {
	body := map[string]any{
		"merchantAccount": a.merchantAccount,
		"reference":       req.IdempotencyKey,
	}
	if req.Amount > 0 {
		body["amount"] = map[string]any{"value": req.Amount}
	}
	return a.modification(ctx, "/payments/"+req.TransactionID+"/captures", body, req.IdempotencyKey)
}

// Refund refunds a captured payment, fully when Amount is zero.
func (a *Adapter) Refund(ctx context.Context, req psp.RefundRequest) (*psp.ChargeResponse, error) {
	body := map[string]any{
		"merchantAccount": a.merchantAccount,
		"reference":       req.IdempotencyKey,
	}
	if req.Amount > 0 {
		body["amount"] = map[string]any{"value": req.Amount}
	}
	return a.modification(ctx, "/payments/"+req.TransactionID+"/refunds", body, req.IdempotencyKey)
}

// modification posts a capture or refund. These calls carry no card data
// and bypass the vault.
func (a *Adapter) modification(ctx context.Context, path string, body map[string]any, idempotencyKey string) (*psp.ChargeResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &psp.Error{
			Provider: Name,
			Code:     "request_failed",
			Message:  err.Error(),
			Err:      fmt.Errorf("%w: %w", psp.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, a.serverError(resp.StatusCode)
	}

	var mod struct {
		PSPReference string `json:"pspReference"`
		Status       string `json:"status"`
		ErrorCode    string `json:"errorCode"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(raw, &mod); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if mod.ErrorCode != "" {
		return &psp.ChargeResponse{
			FailureCode:     mod.ErrorCode,
			FailureMessage:  mod.Message,
			FailureCategory: psp.CategoryUnknown,
			RawResponse:     raw,
		}, nil
	}

	return &psp.ChargeResponse{
		Success:       mod.Status == "received",
		TransactionID: mod.PSPReference,
		Status:        mod.Status,
		RawResponse:   raw,
	}, nil
}

type adyenPayment struct {
	PSPReference      string `json:"pspReference"`
	ResultCode        string `json:"resultCode"`
	RefusalReason     string `json:"refusalReason"`
	RefusalReasonCode string `json:"refusalReasonCode"`
	Action            *struct {
		URL string `json:"url"`
	} `json:"action"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// parsePayment normalizes a /payments response. Refusals are responses,
// not errors; only 5xx becomes an error.
func (a *Adapter) parsePayment(status int, raw []byte) (*psp.ChargeResponse, error) {
	if status >= 500 {
		return nil, a.serverError(status)
	}

	var payment adyenPayment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("decoding payment response: %w", err)
	}

	if payment.ErrorCode != "" {
		return &psp.ChargeResponse{
			FailureCode:     payment.ErrorCode,
			FailureMessage:  payment.Message,
			FailureCategory: psp.CategoryUnknown,
			RawResponse:     raw,
		}, nil
	}

	switch payment.ResultCode {
	case "Authorised", "Received":
		return &psp.ChargeResponse{
			Success:       true,
			TransactionID: payment.PSPReference,
			Status:        payment.ResultCode,
			RawResponse:   raw,
		}, nil
	case "RedirectShopper", "IdentifyShopper", "ChallengeShopper":
		resp := &psp.ChargeResponse{
			TransactionID:  payment.PSPReference,
			Status:         payment.ResultCode,
			RequiresAction: true,
			RawResponse:    raw,
		}
		if payment.Action != nil {
			resp.ActionURL = payment.Action.URL
		}
		return resp, nil
	case "Error":
		return nil, &psp.Error{
			Provider: Name,
			Code:     payment.RefusalReasonCode,
			Message:  payment.RefusalReason,
			Err:      psp.ErrProviderUnavailable,
		}
	default: // Refused, Cancelled
		return &psp.ChargeResponse{
			TransactionID:   payment.PSPReference,
			Status:          payment.ResultCode,
			FailureCode:     payment.RefusalReasonCode,
			FailureMessage:  payment.RefusalReason,
			FailureCategory: categorize(payment.RefusalReason),
			RawResponse:     raw,
		}, nil
	}
}

func (a *Adapter) serverError(status int) error {
	return &psp.Error{
		Provider: Name,
		Code:     strconv.Itoa(status),
		Message:  "server error",
		Err:      psp.ErrProviderUnavailable,
	}
}

// categorize maps Adyen refusal reasons onto the canonical failure
// taxonomy. Reasons not listed are unknown, which the engine treats as
// retryable.
func categorize(reason string) psp.FailureCategory {
	switch reason {
	case "Not enough balance":
		return psp.CategoryInsufficientFunds
	case "Expired Card":
		return psp.CategoryExpiredCard
	case "Invalid Card Number", "Invalid Amount", "Restricted Card", "Blocked Card":
		return psp.CategoryInvalidCard
	case "CVC Declined", "Invalid Pin":
		return psp.CategoryInvalidCVC
	case "FRAUD", "FRAUD-CANCELLED", "Issuer Suspected Fraud":
		return psp.CategoryFraudSuspected
	case "Acquirer Error", "Issuer Unavailable":
		return psp.CategoryProcessingError
	default:
		return psp.CategoryUnknown
	}
}

var _ psp.Adapter = (*Adapter)(nil)
