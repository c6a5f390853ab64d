package vault

import (
	"strings"
	"time"
)

// CardBrand identifies a card network.
type CardBrand string

// Card brands.
const (
	BrandVisa       CardBrand = "visa"
	BrandMastercard CardBrand = "mastercard"
	BrandAmex       CardBrand = "amex"
	BrandDiscover   CardBrand = "discover"
	BrandUnknown    CardBrand = "unknown"
)

// Token is the non-sensitive projection of a vaulted card.
type Token struct {
	ID          string     `json:"id"`
	Fingerprint string     `json:"fingerprint"`
	Brand       CardBrand  `json:"brand"`
	Last4       string     `json:"last4"`
	ExpMonth    string     `json:"exp_month"`
	ExpYear     string     `json:"exp_year"`
	HolderName  string     `json:"cardholder_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
}

// Expired reports whether the token is past its expiry timestamp.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// CardData is raw card data. It only exists transiently: on capture into
// the vault and immediately before PSP submission in direct mode.
type CardData struct {
	Number     string `json:"number"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CVC        string `json:"cvc,omitempty"`
	HolderName string `json:"holder_name,omitempty"`
}

// ExpYear4 returns the 4-digit expiry year, deriving it when only 2 digits
// are stored.
func (c CardData) ExpYear4() string {
	if len(c.ExpYear) == 2 {
		return "20" + c.ExpYear
	}
	return c.ExpYear
}

// ExpYear2 returns the 2-digit expiry year, deriving it when 4 digits are
// stored.
func (c CardData) ExpYear2() string {
	if len(c.ExpYear) == 4 {
		return c.ExpYear[2:]
	}
	return c.ExpYear
}

// Last4 returns the last four digits of the PAN.
func (c CardData) Last4() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// Brand detects the card brand from the PAN prefix.
func (c CardData) Brand() CardBrand {
	n := c.Number
	switch {
	case strings.HasPrefix(n, "4"):
		return BrandVisa
	case hasPrefixInRange(n, 51, 55) || hasPrefixInRange4(n, 2221, 2720):
		return BrandMastercard
	case strings.HasPrefix(n, "34") || strings.HasPrefix(n, "37"):
		return BrandAmex
	case strings.HasPrefix(n, "6011") || strings.HasPrefix(n, "65"):
		return BrandDiscover
	default:
		return BrandUnknown
	}
}

// Valid reports whether the PAN passes length and Luhn checks and the
// expiry fields are plausible.
func (c CardData) Valid() bool {
	if len(c.Number) < 12 || len(c.Number) > 19 {
		return false
	}
	if !luhnValid(c.Number) {
		return false
	}
	if len(c.ExpMonth) < 1 || len(c.ExpMonth) > 2 {
		return false
	}
	if len(c.ExpYear) != 2 && len(c.ExpYear) != 4 {
		return false
	}
	return true
}

// luhnValid runs the Luhn checksum over a digit string.
func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		ch := number[i]
		if ch < '0' || ch > '9' {
			return false
		}
		d := int(ch - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func hasPrefixInRange(n string, lo, hi int) bool {
	if len(n) < 2 {
		return false
	}
	p := int(n[0]-'0')*10 + int(n[1]-'0')
	return p >= lo && p <= hi
}

func hasPrefixInRange4(n string, lo, hi int) bool {
	if len(n) < 4 {
		return false
	}
	p := 0
	for i := 0; i < 4; i++ {
		if n[i] < '0' || n[i] > '9' {
			return false
		}
		p = p*10 + int(n[i]-'0')
	}
	return p >= lo && p <= hi
}
