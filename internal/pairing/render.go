package pairing

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// qrSize is the rendered QR image edge length in pixels.
const qrSize = 256

// Render encodes a pairing payload as a PNG QR code and returns it as a
// data:image/png;base64 URL, ready to embed in a browser page.
func Render(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("pairing: empty payload")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("pairing: render QR: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
