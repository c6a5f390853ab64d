package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cardroute/cardroute/internal/api/middleware"
	"github.com/cardroute/cardroute/internal/api/models"
	"github.com/cardroute/cardroute/internal/api/response"
	"github.com/cardroute/cardroute/internal/vault"
)

// TokensHandler handles card token endpoints. Tokenization is only
// available on direct-capture vault deployments; proxying vaults capture
// client-side and reject CreateToken with ErrUnsupported.
type TokensHandler struct {
	vault vault.Provider
}

// NewTokensHandler creates a new TokensHandler.
func NewTokensHandler(provider vault.Provider) *TokensHandler {
	return &TokensHandler{vault: provider}
}

// CreateToken handles POST /v1/tokens - capture card data into a token.
func (h *TokensHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var input models.CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	token, err := h.vault.CreateToken(r.Context(), vault.CardData{
		Number:     input.Number,
		ExpMonth:   input.ExpMonth,
		ExpYear:    input.ExpYear,
		CVC:        input.CVC,
		HolderName: input.HolderName,
	}, vault.CreateOptions{
		TTL: time.Duration(input.TTLSeconds) * time.Second,
	})
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrInvalidCard):
			response.BadRequest(w, r, "card data failed validation", nil)
		case errors.Is(err, vault.ErrUnsupported):
			response.Error(w, r, models.NewNotImplemented(
				middleware.GetRequestID(r.Context()),
				"this deployment captures cards client-side; direct tokenization is disabled"))
		default:
			response.InternalError(w, r, "failed to create token")
		}
		return
	}

	location := fmt.Sprintf("/v1/tokens/%s", token.ID)
	response.Created(w, r, location, toTokenResponse(token))
}

// GetToken handles GET /v1/tokens/{tokenId} - non-sensitive token lookup.
func (h *TokensHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenId")
	if tokenID == "" {
		response.BadRequest(w, r, "tokenId is required", nil)
		return
	}

	token, err := h.vault.GetToken(r.Context(), tokenID)
	if err != nil {
		response.InternalError(w, r, "failed to look up token")
		return
	}
	if token == nil {
		response.NotFound(w, r, "token not found")
		return
	}

	response.JSON(w, r, http.StatusOK, toTokenResponse(token))
}

// DeleteToken handles DELETE /v1/tokens/{tokenId} - soft-delete a token.
// Deleting an unknown or already-deleted token succeeds.
func (h *TokensHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenId")
	if tokenID == "" {
		response.BadRequest(w, r, "tokenId is required", nil)
		return
	}

	if err := h.vault.DeleteToken(r.Context(), tokenID); err != nil {
		response.InternalError(w, r, "failed to delete token")
		return
	}

	response.NoContent(w, r)
}

// toTokenResponse maps the vault token projection onto the wire model.
func toTokenResponse(t *vault.Token) models.TokenResponse {
	resp := models.TokenResponse{
		ID:         t.ID,
		Brand:      string(t.Brand),
		Last4:      t.Last4,
		ExpMonth:   t.ExpMonth,
		ExpYear:    t.ExpYear,
		HolderName: t.HolderName,
		CreatedAt:  models.Timestamp(t.CreatedAt),
		Active:     t.Active,
	}
	if t.ExpiresAt != nil {
		ts := models.Timestamp(*t.ExpiresAt)
		resp.ExpiresAt = &ts
	}
	return resp
}
