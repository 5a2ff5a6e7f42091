// Package media loads and generates the pictures placed into documents.
package media

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// EMUPerInch is the number of English Metric Units in one inch.
const EMUPerInch = 914400

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDataURI    = errors.New("invalid data URI")
)

// Image is an encoded picture ready to be stored in a package.
type Image struct {
	Data   []byte
	Format string // png, jpeg, gif, bmp or tiff
	Width  int    // pixels
	Height int
}

// Ext returns the file extension used for the media part.
func (img *Image) Ext() string {
	if img.Format == "jpeg" {
		return "jpg"
	}
	return img.Format
}

// ContentType returns the MIME type registered in [Content_Types].xml.
func (img *Image) ContentType() string {
	switch img.Format {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Name is a content-addressed file name, so the same picture is stored once.
func (img *Image) Name() string {
	sum := sha1.Sum(img.Data)
	return fmt.Sprintf("%x.%s", sum, img.Ext())
}

// Extent returns the display size in EMU for the given width, keeping the
// aspect ratio.
func (img *Image) Extent(cx int64) (int64, int64) {
	if img.Width <= 0 || img.Height <= 0 {
		return cx, cx
	}
	return cx, cx * int64(img.Height) / int64(img.Width)
}

// Decode inspects data and returns it as an Image. WebP is transcoded to PNG
// because Word cannot display it.
func Decode(data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedFormat)
	}

	switch format {
	case "png", "jpeg", "gif", "bmp", "tiff":
		return &Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
	case "webp":
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode webp: %w", err)
		}
		return fromImage(img)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Load reads a picture from a locator: a data URI or a file path. A non-empty
// root confines file paths to that directory.
func Load(locator, root string) (*Image, error) {
	if strings.HasPrefix(locator, "data:") {
		data, err := parseDataURI(locator)
		if err != nil {
			return nil, err
		}
		return Decode(data)
	}

	path := locator
	if root != "" {
		var err error
		path, err = securejoin.SecureJoin(root, locator)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", locator, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return Decode(data)
}

// parseDataURI decodes data:[<mediatype>];base64,<data>.
func parseDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing comma", ErrInvalidDataURI)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: missing base64 marker", ErrInvalidDataURI)
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: no image data", ErrInvalidDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return data, nil
}

func fromImage(img image.Image) (*Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	b := img.Bounds()
	return &Image{Data: buf.Bytes(), Format: "png", Width: b.Dx(), Height: b.Dy()}, nil
}
