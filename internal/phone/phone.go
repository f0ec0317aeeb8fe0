// Package phone normalizes phone numbers to the messaging network's addressing format.
package phone

import (
	"errors"
	"strings"
)

// JIDSuffix is the address suffix appended to a normalized number to form a messaging target.
const JIDSuffix = "@s.whatsapp.net"

// defaultCountryCode is prefixed to numbers that carry no country code.
// A leading "0" national prefix is replaced with it.
const defaultCountryCode = "62"

// ErrEmpty is returned by Normalize when the input contains no digits.
var ErrEmpty = errors.New("phone: number contains no digits")

// Normalize strips non-digit characters and applies country-code rules:
// a leading "0" becomes the default country code, and numbers without a
// country code get it prefixed. Returns digits only, no address suffix.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return "", ErrEmpty
	}
	switch {
	case strings.HasPrefix(cleaned, defaultCountryCode):
		return cleaned, nil
	case strings.HasPrefix(cleaned, "0"):
		return defaultCountryCode + cleaned[1:], nil
	default:
		return defaultCountryCode + cleaned, nil
	}
}

// JID renders a normalized number as a messaging target address.
func JID(normalized string) string {
	return normalized + JIDSuffix
}

// FromJID strips the address suffix from a messaging target, returning the bare number.
func FromJID(jid string) string {
	return strings.TrimSuffix(jid, JIDSuffix)
}
