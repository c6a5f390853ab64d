package vault

import (
	"fmt"
	"strings"
)

// Canonical card markers. PSP adapters build request bodies containing
// only these values in place of card data; the active vault provider
// resolves them at delivery time.
const (
	MarkerCardNumber     = "__CARD_NUMBER__"
	MarkerCardExpMonth   = "__CARD_EXP_MONTH__"
	MarkerCardExpYear    = "__CARD_EXP_YEAR__"
	MarkerCardExpYear2   = "__CARD_EXP_YEAR_2__"
	MarkerCardCVC        = "__CARD_CVC__"
	MarkerCardHolderName = "__CARD_HOLDER_NAME__"
)

// Markers returns the canonical marker set.
func Markers() []string {
	return []string{
		MarkerCardNumber,
		MarkerCardExpMonth,
		MarkerCardExpYear,
		MarkerCardExpYear2,
		MarkerCardCVC,
		MarkerCardHolderName,
	}
}

// VerifyMarkers checks that no marker is a prefix of another. Substitution
// operates on exact-match string leaves so overlap cannot corrupt output,
// but an overlapping marker set would still be a latent hazard for any
// text-based consumer of these constants.
func VerifyMarkers() error {
	markers := Markers()
	for i, a := range markers {
		for j, b := range markers {
			if i != j && strings.HasPrefix(b, a) {
				return fmt.Errorf("marker %q is a prefix of %q", a, b)
			}
		}
	}
	return nil
}

// MarkerValues resolves a marker to its replacement value. A false return
// leaves the marker untouched.
type MarkerValues func(marker string) (string, bool)

// SubstituteTree returns a copy of body with every string leaf that
// exactly equals a marker replaced by its resolved value. Maps and slices
// are walked recursively; non-marker strings and all other leaf types pass
// through unchanged. Exact-leaf matching makes the pass independent of
// marker ordering and immune to one marker appearing as a substring of
// another value.
func SubstituteTree(body any, resolve MarkerValues) any {
	switch v := body.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = SubstituteTree(val, resolve)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = SubstituteTree(val, resolve)
		}
		return out
	case string:
		if replacement, ok := resolve(v); ok {
			return replacement
		}
		return v
	default:
		return v
	}
}

// CardValues resolves markers to literal card data: the direct vault mode.
// Both year forms are derived from whichever form is stored, and a missing
// holder name resolves to an empty string, never a null in the output body.
func CardValues(card CardData) MarkerValues {
	values := map[string]string{
		MarkerCardNumber:     card.Number,
		MarkerCardExpMonth:   card.ExpMonth,
		MarkerCardExpYear:    card.ExpYear4(),
		MarkerCardExpYear2:   card.ExpYear2(),
		MarkerCardCVC:        card.CVC,
		MarkerCardHolderName: card.HolderName,
	}
	return func(marker string) (string, bool) {
		v, ok := values[marker]
		return v, ok
	}
}
