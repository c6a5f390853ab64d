package models

// CreatePaymentRequest is the body for POST /v1/payments.
type CreatePaymentRequest struct {
	// Amount in the currency's minor unit.
	Amount int64 `json:"amount" validate:"required,gt=0"`

	// Currency is an ISO 4217 code.
	Currency string `json:"currency" validate:"required,len=3"`

	// TokenID references the vaulted card.
	TokenID string `json:"tokenId" validate:"required"`

	// CardBrand optionally narrows routing (e.g. "visa").
	CardBrand string `json:"cardBrand,omitempty"`

	// IdempotencyKey deduplicates the payment end to end.
	IdempotencyKey string `json:"idempotencyKey" validate:"required"`

	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PaymentAttempt is one provider call in the attempt trail.
type PaymentAttempt struct {
	PSP             string `json:"psp"`
	Success         bool   `json:"success"`
	Status          string `json:"status,omitempty"`
	FailureCode     string `json:"failureCode,omitempty"`
	FailureCategory string `json:"failureCategory,omitempty"`
}

// PaymentResponse is the orchestration outcome returned to the caller.
type PaymentResponse struct {
	ID            string        `json:"id"`
	Status        PaymentStatus `json:"status"`
	PSP           string        `json:"psp"`
	TransactionID string        `json:"transactionId,omitempty"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`

	FailureCode     string `json:"failureCode,omitempty"`
	FailureMessage  string `json:"failureMessage,omitempty"`
	FailureCategory string `json:"failureCategory,omitempty"`

	// ActionURL is set when the buyer must complete step-up
	// authentication before the payment can proceed.
	ActionURL string `json:"actionUrl,omitempty"`

	// SessionToken authorizes the confirmation call for this payment.
	SessionToken     string     `json:"sessionToken,omitempty"`
	SessionExpiresAt *Timestamp `json:"sessionExpiresAt,omitempty"`

	Attempts []PaymentAttempt `json:"attempts"`
}

// ConfirmPaymentRequest is the body for POST /v1/payments/{id}/confirm.
type ConfirmPaymentRequest struct {
	// TransactionID is the provider transaction to capture.
	TransactionID string `json:"transactionId" validate:"required"`

	// PSP names the provider holding the authorization.
	PSP string `json:"psp" validate:"required"`

	// Amount optionally captures less than the authorized amount.
	Amount int64 `json:"amount,omitempty"`
}

// CreateTokenRequest is the body for POST /v1/tokens (direct-capture vault
// deployments only).
type CreateTokenRequest struct {
	Number     string `json:"number" validate:"required"`
	ExpMonth   string `json:"expMonth" validate:"required"`
	ExpYear    string `json:"expYear" validate:"required"`
	CVC        string `json:"cvc,omitempty"`
	HolderName string `json:"holderName,omitempty"`

	// TTLSeconds optionally bounds the token lifetime.
	TTLSeconds int64 `json:"ttlSeconds,omitempty"`
}

// TokenResponse is the non-sensitive token projection.
type TokenResponse struct {
	ID         string     `json:"id"`
	Brand      string     `json:"brand"`
	Last4      string     `json:"last4"`
	ExpMonth   string     `json:"expMonth"`
	ExpYear    string     `json:"expYear"`
	HolderName string     `json:"holderName,omitempty"`
	CreatedAt  Timestamp  `json:"createdAt"`
	ExpiresAt  *Timestamp `json:"expiresAt,omitempty"`
	Active     bool       `json:"active"`
}
