package whatsapp

import (
	"encoding/base64"
	"io"

	"github.com/mdp/qrterminal/v3"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// qrDataURL renders a pairing code as a PNG data URL.
func qrDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", errors.Wrap(err, "encode qr")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// PrintTerminalQR draws a pairing code with half blocks.
func PrintTerminalQR(w io.Writer, code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}
