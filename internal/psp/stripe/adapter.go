// Package stripe implements the payment adapter for the Stripe API.
// Charge bodies carry the neutral card markers and are delivered through
// the vault provider; capture and refund calls carry no card data and go
// to the API directly.
package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/httpx"
	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/vault"
)

const (
	// Name is the provider identifier.
	Name = "stripe"

	// DefaultBaseURL is the Stripe API base URL.
	DefaultBaseURL = "https://api.stripe.com"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the Stripe adapter.
type Config struct {
	// Credentials holds the API secret key (required).
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

// Adapter is the Stripe payment adapter.
type Adapter struct {
	apiKey     string
	baseURL    string
	vault      vault.Provider
	httpClient HTTPDoer
	features   psp.Features
	logger     zerolog.Logger
}

// NewAdapter creates a Stripe adapter.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Credentials.APIKey == "" {
		return nil, &psp.ValidationError{Field: "stripe.api_key", Message: "missing API key"}
	}
	if cfg.Vault == nil {
		return nil, &psp.ValidationError{Field: "stripe.vault", Message: "missing vault provider"}
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
		apiKey:     cfg.Credentials.APIKey,
		baseURL:    baseURL,
		vault:      cfg.Vault,
		httpClient: httpClient,
		features:   cfg.Features,
		logger:     cfg.Logger,
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return Name
}

// Charge creates and confirms a payment intent. The body never contains
// card data, only the markers the vault resolves at delivery.
func (a *Adapter) Charge(ctx context.Context, req psp.ChargeRequest) (*psp.ChargeResponse, error) {
	body := map[string]any{
		"amount":                               strconv.FormatInt(req.Amount, 10),
		"currency":                             req.Currency,
		"confirm":                              "true",
		"payment_method_data[type]":            "card",
		"payment_method_data[card][number]":    vault.MarkerCardNumber,
		"payment_method_data[card][exp_month]": vault.MarkerCardExpMonth,
		"payment_method_data[card][exp_year]":  vault.MarkerCardExpYear,
		"payment_method_data[card][cvc]":       vault.MarkerCardCVC,
	}

	if !a.features.Emergency {
		body["payment_method_data[billing_details][name]"] = vault.MarkerCardHolderName
		if req.Description != "" {
			body["description"] = req.Description
		}
		for k, v := range req.Metadata {
			body["metadata["+k+"]"] = v
		}
	}

	resp, err := a.vault.Forward(ctx, vault.ForwardRequest{
		TokenID: req.TokenID,
		Method:  http.MethodPost,
		URL:     a.baseURL + "/v1/payment_intents",
		Headers: map[string]string{
			"Authorization":   "Bearer " + a.apiKey,
			"Idempotency-Key": req.IdempotencyKey,
		},
		Body:     body,
		Encoding: vault.EncodingForm,
	})
	if err != nil {
		return nil, &psp.Error{
			Provider: Name,
			Code:     "delivery_failed",
			Message:  err.Error(),
			Err:      fmt.Errorf("%w: %w", psp.ErrProviderUnavailable, err),
		}
	}

	return a.parseIntent(resp.StatusCode, resp.Body)
}

// Capture captures a previously authorized payment intent.
func (a *Adapter) Capture(ctx context.Context, req psp.CaptureRequest) (*psp.ChargeResponse, error) {
	form := url.Values{}
	if req.Amount > 0 {
		form.Set("amount_to_capture", strconv.FormatInt(req.Amount, 10))
	}

	status, body, err := a.post(ctx, "/v1/payment_intents/"+req.TransactionID+"/capture", form, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return a.parseIntent(status, body)
}

// Refund refunds a captured payment intent, fully when Amount is zero.
func (a *Adapter) Refund(ctx context.Context, req psp.RefundRequest) (*psp.ChargeResponse, error) {
	form := url.Values{}
	form.Set("payment_intent", req.TransactionID)
	if req.Amount > 0 {
		form.Set("amount", strconv.FormatInt(req.Amount, 10))
	}
	if req.Reason != "" {
		form.Set("reason", req.Reason)
	}

	status, body, err := a.post(ctx, "/v1/refunds", form, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	if status >= 500 {
		return nil, a.serverError(status)
	}

	var refund struct {
		ID            string       `json:"id"`
		Status        string       `json:"status"`
		FailureReason string       `json:"failure_reason"`
		Error         *stripeError `json:"error"`
	}
	if err := json.Unmarshal(body, &refund); err != nil {
		return nil, fmt.Errorf("decoding refund response: %w", err)
	}

	if refund.Error != nil {
		return declineResponse(refund.Error, body), nil
	}

	return &psp.ChargeResponse{
		Success:       refund.Status == "succeeded" || refund.Status == "pending",
		TransactionID: refund.ID,
		Status:        refund.Status,
		FailureCode:   refund.FailureReason,
		RawResponse:   body,
	}, nil
}

func (a *Adapter) post(ctx context.Context, path string, form url.Values, idempotencyKey string) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, &psp.Error{
			Provider: Name,
			Code:     "request_failed",
			Message:  err.Error(),
			Err:      fmt.Errorf("%w: %w", psp.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

type stripeError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

type stripeIntent struct {
	ID               string       `json:"id"`
	Status           string       `json:"status"`
	LastPaymentError *stripeError `json:"last_payment_error"`
	NextAction       *struct {
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

// parseIntent normalizes a payment-intent API response. Structured
// declines are responses, not errors; only 5xx becomes an error.
func (a *Adapter) parseIntent(status int, body []byte) (*psp.ChargeResponse, error) {
	if status >= 500 {
		return nil, a.serverError(status)
	}

	var payload struct {
		stripeIntent
		Error *struct {
			stripeError
			PaymentIntent *stripeIntent `json:"payment_intent"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding payment intent: %w", err)
	}

	if payload.Error != nil {
		resp := declineResponse(&payload.Error.stripeError, body)
		if payload.Error.PaymentIntent != nil {
			resp.TransactionID = payload.Error.PaymentIntent.ID
			resp.Status = payload.Error.PaymentIntent.Status
		}
		return resp, nil
	}

	intent := payload.stripeIntent

	switch intent.Status {
	case "succeeded", "processing", "requires_capture":
		return &psp.ChargeResponse{
			Success:       true,
			TransactionID: intent.ID,
			Status:        intent.Status,
			RawResponse:   body,
		}, nil
	case "requires_action":
		resp := &psp.ChargeResponse{
			TransactionID:  intent.ID,
			Status:         intent.Status,
			RequiresAction: true,
			RawResponse:    body,
		}
		if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
			resp.ActionURL = intent.NextAction.RedirectToURL.URL
		}
		return resp, nil
	default:
		resp := &psp.ChargeResponse{
			TransactionID:   intent.ID,
			Status:          intent.Status,
			FailureCategory: psp.CategoryUnknown,
			RawResponse:     body,
		}
		if intent.LastPaymentError != nil {
			decline := declineResponse(intent.LastPaymentError, body)
			resp.FailureCode = decline.FailureCode
			resp.FailureMessage = decline.FailureMessage
			resp.FailureCategory = decline.FailureCategory
		}
		return resp, nil
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

func declineResponse(e *stripeError, raw []byte) *psp.ChargeResponse {
	code := e.DeclineCode
	if code == "" {
		code = e.Code
	}
	return &psp.ChargeResponse{
		FailureCode:     code,
		FailureMessage:  e.Message,
		FailureCategory: categorize(code),
		RawResponse:     raw,
	}
}

// categorize maps Stripe decline codes onto the canonical failure
// taxonomy. Codes not listed are unknown, which the engine treats as
// retryable.
func categorize(code string) psp.FailureCategory {
	switch code {
	case "insufficient_funds":
		return psp.CategoryInsufficientFunds
	case "expired_card":
		return psp.CategoryExpiredCard
	case "incorrect_number", "invalid_number", "card_not_supported", "card_velocity_exceeded":
		return psp.CategoryInvalidCard
	case "incorrect_cvc", "invalid_cvc":
		return psp.CategoryInvalidCVC
	case "fraudulent", "stolen_card", "lost_card", "merchant_blacklist", "security_violation":
		return psp.CategoryFraudSuspected
	case "processing_error", "issuer_not_available", "try_again_later", "reenter_transaction":
		return psp.CategoryProcessingError
	default:
		return psp.CategoryUnknown
	}
}

var _ psp.Adapter = (*Adapter)(nil)
