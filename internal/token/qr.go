package token

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRImagePNG renders a token as a base64-encoded PNG for the teacher display.
func QRImagePNG(tok string, size int) (string, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(tok, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
