// Package psp defines the canonical payment service provider contract:
// charge/capture/refund requests, the normalized response shape every
// adapter returns, and the failure-category taxonomy that drives retry and
// failover decisions.
package psp

import "encoding/json"

// FailureCategory classifies a failed payment attempt. Categories decide
// whether failing over to another provider can change the outcome.
type FailureCategory string

// Failure categories.
const (
	// Terminal buyer/card outcomes. Retrying on another provider cannot
	// change these.
	CategoryInsufficientFunds FailureCategory = "insufficient_funds"
	CategoryExpiredCard       FailureCategory = "expired_card"
	CategoryInvalidCard       FailureCategory = "invalid_card"
	CategoryInvalidCVC        FailureCategory = "invalid_cvc"
	CategoryFraudSuspected    FailureCategory = "fraud_suspected"

	// CategoryProcessingError covers network errors, timeouts, and 5xx
	// responses; always retryable.
	CategoryProcessingError FailureCategory = "processing_error"

	// CategoryUnknown is the conservative default for unclassified
	// failures; treated as retryable.
	CategoryUnknown FailureCategory = "unknown"
)

// Terminal reports whether the category is a buyer-side decline that stops
// routing.
func (c FailureCategory) Terminal() bool {
	switch c {
	case CategoryInsufficientFunds, CategoryExpiredCard, CategoryInvalidCard,
		CategoryInvalidCVC, CategoryFraudSuspected:
		return true
	default:
		return false
	}
}

// ChargeRequest is a canonical charge. Amount is in the currency's minor
// unit. TokenID references the vaulted card; adapters never receive raw
// card data.
type ChargeRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	TokenID        string            `json:"token_id"`
	CardBrand      string            `json:"card_brand,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CaptureRequest captures a previously authorized charge.
type CaptureRequest struct {
	TransactionID  string `json:"transaction_id"`
	Amount         int64  `json:"amount,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RefundRequest refunds a captured charge, fully when Amount is zero.
type RefundRequest struct {
	TransactionID  string `json:"transaction_id"`
	Amount         int64  `json:"amount,omitempty"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ChargeResponse is the normalized outcome of any adapter operation.
type ChargeResponse struct {
	Success         bool            `json:"success"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	Status          string          `json:"status,omitempty"`
	FailureCode     string          `json:"failure_code,omitempty"`
	FailureMessage  string          `json:"failure_message,omitempty"`
	FailureCategory FailureCategory `json:"failure_category,omitempty"`
	RequiresAction  bool            `json:"requires_action,omitempty"`
	ActionURL       string          `json:"action_url,omitempty"`
	RawResponse     json.RawMessage `json:"raw_response,omitempty"`
}

// Category returns the response's failure category, defaulting to unknown
// for failed responses that carry none.
func (r *ChargeResponse) Category() FailureCategory {
	if r.FailureCategory != "" {
		return r.FailureCategory
	}
	return CategoryUnknown
}
