package entities

import (
	"fmt"
	"strings"
)

const (
	countryCode = "55"

	// national significant number: 2-digit area code + 8 (landline) or 9 (mobile) digits
	minNationalDigits = 10
	maxNationalDigits = 11
)

// NormalizePhone returns the canonical key for a Brazilian phone number: digits only,
// no country code, no trunk zero, area code kept and the mobile ninth digit restored.
// "(85) 99620-1636", "+55 85 99620-1636", "5585996201636@c.us" and "558596201636"
// all map to "85996201636".
func NormalizePhone(raw string) (string, error) {
	s := raw
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")

	if len(digits) > maxNationalDigits && strings.HasPrefix(digits, countryCode) {
		digits = strings.TrimLeft(digits[len(countryCode):], "0")
	}

	// mobile numbers registered before the ninth digit was introduced
	if len(digits) == minNationalDigits && isMobilePrefix(digits[2]) {
		digits = digits[:2] + "9" + digits[2:]
	}

	if len(digits) < minNationalDigits || len(digits) > maxNationalDigits {
		return "", fmt.Errorf("%w: %q has %d significant digits", ErrInvalidPhone, raw, len(digits))
	}
	return digits, nil
}

// PhoneVariants returns the encodings an external system might have stored for the same
// number, canonical key first. Order is stable so that the first match is deterministic.
func PhoneVariants(raw string) ([]string, error) {
	canonical, err := NormalizePhone(raw)
	if err != nil {
		return nil, err
	}

	variants := []string{
		canonical,
		countryCode + canonical,
		"+" + countryCode + canonical,
	}
	if len(canonical) == maxNationalDigits && canonical[2] == '9' {
		withoutNine := canonical[:2] + canonical[3:]
		variants = append(variants, withoutNine, countryCode+withoutNine)
	}

	area, local := canonical[:2], canonical[2:]
	split := len(local) - 4
	variants = append(variants,
		fmt.Sprintf("(%s) %s-%s", area, local[:split], local[split:]),
		fmt.Sprintf("+%s %s %s-%s", countryCode, area, local[:split], local[split:]),
	)

	seen := make(map[string]struct{}, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// ChatID is the gateway chat identifier for a canonical phone key.
func ChatID(canonical string) string {
	return countryCode + canonical + "@c.us"
}

func isMobilePrefix(c byte) bool {
	return c >= '6' && c <= '9'
}
