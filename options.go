package docxfill

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"docxfill/media"
)

// Options controls a Replace run.
type Options struct {
	// ParagraphImageWidth is the display width, in EMU, of pictures placed in
	// block-level paragraphs.
	ParagraphImageWidth int64
	// TableImageWidth is the display width, in EMU, of pictures placed in
	// table cells.
	TableImageWidth int64
	// ImageRoot confines signature file locators to a directory. Empty means
	// locators are used as given.
	ImageRoot string
	// Strict turns skipped rules (bad id length, unknown type, empty key)
	// into errors.
	Strict bool
	// Logger receives progress and skipped-rule messages. Nil is silent.
	Logger *log.Logger
}

// DefaultOptions returns options with the default picture widths.
func DefaultOptions() Options {
	return Options{
		ParagraphImageWidth: DefaultParagraphImageWidth,
		TableImageWidth:     DefaultTableImageWidth,
	}
}

// OptionsFromEnv starts from DefaultOptions and applies DOCXFILL_* variables.
// Malformed values are ignored.
func OptionsFromEnv() Options {
	opts := DefaultOptions()

	if v := os.Getenv("DOCXFILL_IMAGE_ROOT"); v != "" {
		opts.ImageRoot = v
	}
	if v := os.Getenv("DOCXFILL_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.Strict = b
		}
	}
	if v := os.Getenv("DOCXFILL_PARAGRAPH_IMAGE_WIDTH"); v != "" {
		if emu, err := ParseLength(v); err == nil {
			opts.ParagraphImageWidth = emu
		}
	}
	if v := os.Getenv("DOCXFILL_TABLE_IMAGE_WIDTH"); v != "" {
		if emu, err := ParseLength(v); err == nil {
			opts.TableImageWidth = emu
		}
	}

	return opts
}

func (o Options) withDefaults() Options {
	if o.ParagraphImageWidth <= 0 {
		o.ParagraphImageWidth = DefaultParagraphImageWidth
	}
	if o.TableImageWidth <= 0 {
		o.TableImageWidth = DefaultTableImageWidth
	}
	return o
}

func (o Options) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}

// ParseLength converts "1in", "25mm", "2.5cm", "72pt" or a bare EMU count to EMU.
func ParseLength(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	units := []struct {
		suffix string
		emu    float64
	}{
		{"in", media.EMUPerInch},
		{"mm", 36000},
		{"cm", 360000},
		{"pt", 12700},
		{"emu", 1},
	}

	factor := 1.0
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			factor = u.emu
			break
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse length %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("parse length %q: must be positive", s)
	}
	return int64(v * factor), nil
}
