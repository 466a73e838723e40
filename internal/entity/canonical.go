package entity

import (
	"strings"
	"unicode"
)

// Canonicalize reduces a surface value to the form used for alias identity.
// Whitespace is trimmed and collapsed for every type. Names, companies and
// addresses compare case-insensitively; emails compare with a case-insensitive
// domain; numeric identifiers compare on their digits. Secrets are kept exact.
// Phone numbers keep a leading + except North American numbers, which drop
// their country code so "+1 555-111-2222" and "555-111-2222" are one number.
func Canonicalize(t Type, value string) string {
	v := collapseSpace(value)
	switch t {
	case PersonName, CompanyName, Address:
		return strings.ToLower(strings.Trim(v, ".,;:"))
	case Email:
		at := strings.LastIndexByte(v, '@')
		if at < 0 {
			return v
		}
		return v[:at] + "@" + strings.ToLower(v[at+1:])
	case Phone:
		digits := digitsOnly(v)
		if digits == "" {
			return v
		}
		// North American numbers compare without the leading country code 1.
		if len(digits) == 11 && digits[0] == '1' {
			return digits[1:]
		}
		if strings.HasPrefix(v, "+") {
			return "+" + digits
		}
		return digits
	case CreditCard, SSN, AccountNumber:
		if d := digitsOnly(v); d != "" {
			return d
		}
		return v
	case MACAddress:
		return strings.ToLower(strings.ReplaceAll(v, "-", ":"))
	case IPAddress:
		return strings.ToLower(v)
	default:
		return v
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokens splits a canonical value into lowercase word tokens.
func Tokens(canonical string) []string {
	return strings.FieldsFunc(strings.ToLower(canonical), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
