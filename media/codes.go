package media

import (
	"fmt"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/ean"
	"github.com/skip2/go-qrcode"
)

const (
	// DefaultQRSize is the QR code edge in pixels.
	DefaultQRSize = 256

	barcodeWidth  = 480
	barcodeHeight = 160
)

// QRCode renders value as a square PNG QR code.
func QRCode(value string, size int) (*Image, error) {
	if value == "" {
		return nil, fmt.Errorf("qrcode: empty value")
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	data, err := qrcode.Encode(value, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qrcode: %w", err)
	}
	return Decode(data)
}

// Barcode renders value as a PNG barcode: EAN-13 for 12 or 13 digits,
// Code 128 for anything else.
func Barcode(value string) (*Image, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("barcode: empty value")
	}

	var (
		code barcode.Barcode
		err  error
	)
	if isEAN13(value) {
		code, err = ean.Encode(value)
	} else {
		code, err = code128.Encode(value)
	}
	if err != nil {
		return nil, fmt.Errorf("barcode: %w", err)
	}

	// Scale refuses to shrink, so long Code 128 values keep their native width.
	w := barcodeWidth
	if dx := code.Bounds().Dx(); dx > w {
		w = dx
	}
	code, err = barcode.Scale(code, w, barcodeHeight)
	if err != nil {
		return nil, fmt.Errorf("barcode scale: %w", err)
	}
	return fromImage(code)
}

func isEAN13(s string) bool {
	if len(s) != 12 && len(s) != 13 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
