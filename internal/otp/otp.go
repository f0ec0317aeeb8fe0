// Package otp generates verification codes and renders the delivery message.
package otp

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// DefaultLength is the number of digits in a generated code.
const DefaultLength = 6

// Generate returns a numeric code of the given length (e.g. "042317").
// Each digit is drawn independently and uniformly from 0-9 using crypto/rand;
// leading zeros are permitted and significant. length <= 0 uses DefaultLength.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if len(out) == length {
				break
			}
			// Reject bytes in the truncated top range so each digit stays uniform.
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
		}
	}
	return string(out), nil
}

// Message renders the delivery text for a code: the code itself, its validity
// window, and the sender's company name.
func Message(code, companyName string, ttlMinutes int) string {
	if ttlMinutes <= 0 {
		ttlMinutes = 5
	}
	var b strings.Builder
	b.WriteString("🔐 *Kode OTP Anda*\n\n")
	fmt.Fprintf(&b, "Kode OTP: *%s*\n\n", code)
	fmt.Fprintf(&b, "Kode ini akan kedaluwarsa dalam %d menit.\n", ttlMinutes)
	b.WriteString("Jangan bagikan kode ini kepada siapapun.\n\n")
	b.WriteString("Terima kasih,\n")
	b.WriteString(companyName)
	return b.String()
}
