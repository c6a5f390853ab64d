package vault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroute/cardroute/internal/vault"
)

func TestVerifyMarkers_NoPrefixOverlap(t *testing.T) {
	assert.NoError(t, vault.VerifyMarkers())
}

func TestSubstituteTree_DirectMode(t *testing.T) {
	card := vault.CardData{
		Number:     "4242424242424242",
		ExpMonth:   "12",
		ExpYear:    "2028",
		CVC:        "123",
		HolderName: "Ada Lovelace",
	}

	body := map[string]any{
		"amount":   float64(1099),
		"currency": "eur",
		"card": map[string]any{
			"number":    vault.MarkerCardNumber,
			"exp_month": vault.MarkerCardExpMonth,
			"exp_year":  vault.MarkerCardExpYear,
			"cvc":       vault.MarkerCardCVC,
			"name":      vault.MarkerCardHolderName,
		},
	}

	out := vault.SubstituteTree(body, vault.CardValues(card)).(map[string]any)
	outCard := out["card"].(map[string]any)

	assert.Equal(t, "4242424242424242", outCard["number"])
	assert.Equal(t, "12", outCard["exp_month"])
	assert.Equal(t, "2028", outCard["exp_year"])
	assert.Equal(t, "123", outCard["cvc"])
	assert.Equal(t, "Ada Lovelace", outCard["name"])
	assert.Equal(t, float64(1099), out["amount"], "non-marker leaves pass through")
}

func TestSubstituteTree_YearDerivation(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		marker string
		want   string
	}{
		{"two digit stored, four digit marker", "28", vault.MarkerCardExpYear, "2028"},
		{"four digit stored, two digit marker", "2028", vault.MarkerCardExpYear2, "28"},
		{"two digit stored, two digit marker", "28", vault.MarkerCardExpYear2, "28"},
		{"four digit stored, four digit marker", "2028", vault.MarkerCardExpYear, "2028"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := vault.CardData{Number: "4242424242424242", ExpMonth: "12", ExpYear: tt.stored}
			out := vault.SubstituteTree(map[string]any{"y": tt.marker}, vault.CardValues(card))
			assert.Equal(t, tt.want, out.(map[string]any)["y"])
		})
	}
}

func TestSubstituteTree_MissingHolderNameIsEmptyString(t *testing.T) {
	card := vault.CardData{Number: "4242424242424242", ExpMonth: "1", ExpYear: "30"}

	out := vault.SubstituteTree(map[string]any{"name": vault.MarkerCardHolderName}, vault.CardValues(card))
	v, ok := out.(map[string]any)["name"]
	require.True(t, ok)
	assert.Equal(t, "", v, "holder name substitutes as empty string, never null")
}

func TestSubstituteTree_MarkerSubstringLeftUntouched(t *testing.T) {
	card := vault.CardData{Number: "4242424242424242", ExpMonth: "12", ExpYear: "28"}

	// A marker appearing inside a larger string is not a marker leaf and
	// must never be rewritten.
	body := map[string]any{
		"note":  "pay with __CARD_NUMBER__ later",
		"exact": vault.MarkerCardNumber,
	}

	out := vault.SubstituteTree(body, vault.CardValues(card)).(map[string]any)
	assert.Equal(t, "pay with __CARD_NUMBER__ later", out["note"])
	assert.Equal(t, "4242424242424242", out["exact"])
}

func TestSubstituteTree_WalksSlices(t *testing.T) {
	card := vault.CardData{Number: "4242424242424242", ExpMonth: "12", ExpYear: "28"}

	body := map[string]any{
		"items": []any{
			map[string]any{"pan": vault.MarkerCardNumber},
			"plain",
		},
	}

	out := vault.SubstituteTree(body, vault.CardValues(card)).(map[string]any)
	items := out["items"].([]any)
	assert.Equal(t, "4242424242424242", items[0].(map[string]any)["pan"])
	assert.Equal(t, "plain", items[1])
}

func TestSubstituteTree_DoesNotMutateInput(t *testing.T) {
	card := vault.CardData{Number: "4242424242424242", ExpMonth: "12", ExpYear: "28"}
	body := map[string]any{"pan": vault.MarkerCardNumber}

	_ = vault.SubstituteTree(body, vault.CardValues(card))
	assert.Equal(t, vault.MarkerCardNumber, body["pan"])
}

func TestNormalizeTokenID(t *testing.T) {
	assert.Equal(t, "tok_abc", vault.NormalizeTokenID("abc"))
	assert.Equal(t, "tok_abc", vault.NormalizeTokenID("tok_abc"))
	assert.Equal(t, "", vault.NormalizeTokenID(""))
}

func TestCardData_BrandDetection(t *testing.T) {
	tests := []struct {
		number string
		want   vault.CardBrand
	}{
		{"4242424242424242", vault.BrandVisa},
		{"5555555555554444", vault.BrandMastercard},
		{"2223003122003222", vault.BrandMastercard},
		{"378282246310005", vault.BrandAmex},
		{"6011111111111117", vault.BrandDiscover},
		{"3530111333300000", vault.BrandUnknown},
	}

	for _, tt := range tests {
		card := vault.CardData{Number: tt.number}
		assert.Equal(t, tt.want, card.Brand(), "number %s", tt.number)
	}
}

func TestCardData_Valid(t *testing.T) {
	valid := vault.CardData{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2028"}
	assert.True(t, valid.Valid())

	luhnFail := vault.CardData{Number: "4242424242424241", ExpMonth: "12", ExpYear: "2028"}
	assert.False(t, luhnFail.Valid())

	tooShort := vault.CardData{Number: "42424242", ExpMonth: "12", ExpYear: "2028"}
	assert.False(t, tooShort.Valid())

	badYear := vault.CardData{Number: "4242424242424242", ExpMonth: "12", ExpYear: "028"}
	assert.False(t, badYear.Valid())
}
