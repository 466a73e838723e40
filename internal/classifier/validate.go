package classifier

import (
	"net/netip"
	"strings"
)

// validators are the hard gates a recognizer can request by name.
var validators = map[string]func(string) bool{
	"":      func(string) bool { return true },
	"luhn":  func(v string) bool { return LuhnValid(stripNonDigits(v)) },
	"ssn":   ValidSSN,
	"ip":    ValidIP,
	"email": ValidEmail,
}

// LuhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func LuhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// ValidSSN rejects US SSNs with impossible area, group or serial numbers.
func ValidSSN(v string) bool {
	d := stripNonDigits(v)
	if len(d) != 9 {
		return false
	}
	area, group, serial := d[:3], d[3:5], d[5:]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

// ValidIP accepts dotted IPv4 and IPv6 literals.
func ValidIP(v string) bool {
	_, err := netip.ParseAddr(strings.TrimSpace(v))
	return err == nil
}

// ValidEmail requires a local part and a dotted domain.
func ValidEmail(v string) bool {
	at := strings.LastIndexByte(v, '@')
	if at <= 0 || at == len(v)-1 {
		return false
	}
	domain := v[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
