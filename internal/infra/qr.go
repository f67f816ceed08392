package infra

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// RenderPaymentQR encodes a payment reference as a PNG QR code and returns it
// base64-encoded, ready to drop into a JSON response for the POS screen.
func RenderPaymentQR(reference string) (string, error) {
	png, err := qrcode.Encode(reference, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("qr: encode reference: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
