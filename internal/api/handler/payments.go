package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/api/middleware"
	"github.com/cardroute/cardroute/internal/api/models"
	"github.com/cardroute/cardroute/internal/api/response"
	"github.com/cardroute/cardroute/internal/orchestration"
	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/routing"
	"github.com/cardroute/cardroute/internal/session"
	"github.com/cardroute/cardroute/internal/vault"
)

// PaymentsHandler handles payment execution endpoints.
type PaymentsHandler struct {
	engine   *orchestration.Engine
	adapters psp.Factory
	sessions *session.Service
	metrics  *middleware.ProviderMetrics
	logger   zerolog.Logger
}

// NewPaymentsHandler creates a new PaymentsHandler. metrics may be nil.
func NewPaymentsHandler(engine *orchestration.Engine, adapters psp.Factory, sessions *session.Service, metrics *middleware.ProviderMetrics, logger zerolog.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		engine:   engine,
		adapters: adapters,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// recordProviderCall records one provider operation when metrics are wired.
func (h *PaymentsHandler) recordProviderCall(provider, operation string, duration time.Duration, success bool) {
	if h.metrics == nil || provider == "" {
		return
	}
	h.metrics.RecordRequest(provider, operation, duration, success)
}

// CreatePayment handles POST /v1/payments - execute a payment across providers.
func (h *PaymentsHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var input models.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrors := validateCreatePayment(input); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "request validation failed", fieldErrors)
		return
	}

	start := time.Now()
	result, err := h.engine.ExecutePayment(r.Context(), orchestration.PaymentRequest{
		Amount:         input.Amount,
		Currency:       input.Currency,
		TokenID:        vault.NormalizeTokenID(input.TokenID),
		CardBrand:      input.CardBrand,
		IdempotencyKey: input.IdempotencyKey,
		Description:    input.Description,
		Metadata:       input.Metadata,
	})
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}
	h.recordProviderCall(result.PSP, "charge", time.Since(start),
		result.Response != nil && result.Response.Success)

	paymentID := "pay_" + uuid.New().String()
	resp := h.toPaymentResponse(paymentID, input, result)

	// Step-up authentication continues through the confirm endpoint, which
	// is scoped to this payment by a session token.
	if result.Response != nil && result.Response.RequiresAction {
		token, expiresAt, err := h.sessions.Issue(paymentID)
		if err != nil {
			response.InternalError(w, r, "failed to issue session token")
			return
		}
		resp.SessionToken = token
		ts := models.Timestamp(expiresAt)
		resp.SessionExpiresAt = &ts
	}

	location := fmt.Sprintf("/v1/payments/%s", paymentID)
	response.Created(w, r, location, resp)
}

// ConfirmPayment handles POST /v1/payments/{paymentId}/confirm - capture a
// payment after step-up authentication completes. Requires a session token
// scoped to the payment.
func (h *PaymentsHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	if paymentID == "" {
		response.BadRequest(w, r, "paymentId is required", nil)
		return
	}

	if sessionPaymentID := middleware.GetSessionPaymentID(r.Context()); sessionPaymentID != paymentID {
		response.Unauthorized(w, r, "session token is not scoped to this payment")
		return
	}

	var input models.ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.TransactionID == "" || input.PSP == "" {
		response.BadRequest(w, r, "transactionId and psp are required", nil)
		return
	}

	adapter, err := h.adapters.Adapter(input.PSP)
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}

	start := time.Now()
	captureResp, err := adapter.Capture(r.Context(), psp.CaptureRequest{
		TransactionID:  input.TransactionID,
		Amount:         input.Amount,
		IdempotencyKey: paymentID + "_capture",
	})
	if err != nil {
		h.recordProviderCall(input.PSP, "capture", time.Since(start), false)
		h.writePaymentError(w, r, err)
		return
	}
	h.recordProviderCall(input.PSP, "capture", time.Since(start), captureResp.Success)

	resp := models.PaymentResponse{
		ID:            paymentID,
		Status:        paymentStatus(captureResp),
		PSP:           input.PSP,
		TransactionID: captureResp.TransactionID,
		Amount:        input.Amount,
		Attempts: []models.PaymentAttempt{
			{
				PSP:             input.PSP,
				Success:         captureResp.Success,
				Status:          captureResp.Status,
				FailureCode:     captureResp.FailureCode,
				FailureCategory: string(captureResp.FailureCategory),
			},
		},
	}
	if !captureResp.Success {
		resp.FailureCode = captureResp.FailureCode
		resp.FailureMessage = captureResp.FailureMessage
		resp.FailureCategory = string(captureResp.FailureCategory)
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// toPaymentResponse maps an orchestration result onto the wire model.
func (h *PaymentsHandler) toPaymentResponse(paymentID string, input models.CreatePaymentRequest, result *orchestration.Result) models.PaymentResponse {
	resp := models.PaymentResponse{
		ID:       paymentID,
		Status:   paymentStatus(result.Response),
		PSP:      result.PSP,
		Amount:   input.Amount,
		Currency: input.Currency,
		Attempts: make([]models.PaymentAttempt, 0, len(result.Attempts)),
	}

	for _, attempt := range result.Attempts {
		a := models.PaymentAttempt{PSP: attempt.PSP}
		if attempt.Response != nil {
			a.Success = attempt.Response.Success
			a.Status = attempt.Response.Status
			a.FailureCode = attempt.Response.FailureCode
			a.FailureCategory = string(attempt.Response.FailureCategory)
		}
		resp.Attempts = append(resp.Attempts, a)
	}

	if final := result.Response; final != nil {
		resp.TransactionID = final.TransactionID
		resp.ActionURL = final.ActionURL
		if !final.Success && !final.RequiresAction {
			resp.FailureCode = final.FailureCode
			resp.FailureMessage = final.FailureMessage
			resp.FailureCategory = string(final.Category())
		}
	}

	return resp
}

// writePaymentError maps orchestration and adapter errors onto problem
// responses.
func (h *PaymentsHandler) writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *psp.ValidationError

	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, r, verr.Error(), []models.FieldError{
			{Field: verr.Field, Message: verr.Message},
		})
	case errors.Is(err, routing.ErrNoRouteAvailable):
		response.ServiceUnavailable(w, r, "no payment provider is currently available for this payment")
	case errors.Is(err, vault.ErrDecryptionFailed):
		response.Conflict(w, r, "the card token could not be decrypted; capture the card again")
	case errors.Is(err, psp.ErrUnknownProvider):
		response.InternalError(w, r, "routed to an unknown payment provider")
	case errors.Is(err, psp.ErrProviderUnavailable):
		response.ServiceUnavailable(w, r, "the payment provider is currently unavailable")
	default:
		h.logger.Error().Err(err).Msg("payment execution failed")
		response.InternalError(w, r, "payment execution failed")
	}
}

// paymentStatus maps a provider response onto the payment lifecycle state.
func paymentStatus(resp *psp.ChargeResponse) models.PaymentStatus {
	switch {
	case resp == nil:
		return models.PaymentStatusFailed
	case resp.Success:
		return models.PaymentStatusSucceeded
	case resp.RequiresAction:
		return models.PaymentStatusRequiresAction
	default:
		return models.PaymentStatusFailed
	}
}

// validateCreatePayment checks required fields and value ranges.
func validateCreatePayment(input models.CreatePaymentRequest) []models.FieldError {
	var fieldErrors []models.FieldError
	if input.Amount <= 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "amount", Message: "must be a positive integer in the currency's minor unit"})
	}
	if len(input.Currency) != 3 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "currency", Message: "must be a 3-letter ISO 4217 code"})
	}
	if input.TokenID == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "tokenId", Message: "is required"})
	}
	if input.IdempotencyKey == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "idempotencyKey", Message: "is required"})
	}
	return fieldErrors
}
