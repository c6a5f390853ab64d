package psp

import "context"

// Adapter maps canonical payment operations onto one provider's wire
// format. Implementations build request bodies containing only the neutral
// card markers from the vault package; the active vault provider injects or
// references the actual card bytes at delivery time.
type Adapter interface {
	// Name returns the provider identifier used as the breaker/routing key.
	Name() string

	// Charge authorizes and captures a payment.
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)

	// Capture captures a previously authorized payment.
	Capture(ctx context.Context, req CaptureRequest) (*ChargeResponse, error)

	// Refund refunds a captured payment.
	Refund(ctx context.Context, req RefundRequest) (*ChargeResponse, error)
}

// Features controls optional adapter behavior.
type Features struct {
	// Emergency puts the adapter in the deliberately degraded last-resort
	// mode used when the orchestration backend is unreachable: charges
	// carry only the fields required to authorize (no descriptor,
	// metadata, or holder name) so the call has as few ways to fail as
	// possible. Emergency transactions are reconciled later from the
	// pending-sync queue.
	Emergency bool
}

// Credentials holds per-provider secrets read from the configuration store.
type Credentials struct {
	// APIKey is the provider API secret.
	APIKey string

	// MerchantAccount is required by providers that scope requests to a
	// merchant account (e.g. Adyen).
	MerchantAccount string

	// BaseURL overrides the provider API base URL (tests, sandboxes).
	BaseURL string
}

// Factory builds adapters by provider name.
type Factory interface {
	// Adapter returns the adapter for the named provider, or a
	// *ValidationError when the provider is unknown or its credentials
	// are missing.
	Adapter(name string) (Adapter, error)
}
