// Package rules turns an ordered list of replacement rules into the text and
// image maps the replacer works with.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind tells how a rule's value is interpreted.
type Kind string

const (
	KindString    Kind = "string"
	KindFullName  Kind = "full_name"
	KindID        Kind = "id"
	KindSignature Kind = "signature"
	KindQRCode    Kind = "qrcode"
	KindBarcode   Kind = "barcode"
)

// Fixed placeholders filled by full_name and id rules.
const (
	FirstNameKey = "<first_name>"
	SurnameKey   = "<surname>"

	// IDLength is the exact number of characters an id rule must carry.
	IDLength = 9
)

// IDKey returns the placeholder for the n-th (1-based) character of an id.
func IDKey(n int) string {
	return fmt.Sprintf("<id_%d>", n)
}

var (
	ErrUnknownKind = errors.New("unknown rule type")
	ErrIDLength    = fmt.Errorf("id value must have exactly %d characters", IDLength)
	ErrEmptyKey    = errors.New("empty placeholder key")
)

// Rule is one replacement instruction as supplied by the caller.
type Rule struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Kind  Kind   `json:"type"`
}

// IsImage reports whether the rule produces a picture instead of text.
func (k Kind) IsImage() bool {
	switch k {
	case KindSignature, KindQRCode, KindBarcode:
		return true
	}
	return false
}

// RuleError describes a rule that produced no map entries.
type RuleError struct {
	Index int // position in the input list
	Rule  Rule
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %d (%s %q): %v", e.Index, e.Rule.Kind, e.Rule.Key, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// ImageSource is what an image placeholder resolves to: a locator for
// signatures, the payload to encode for qrcode and barcode.
type ImageSource struct {
	Kind  Kind
	Value string
}

// Maps holds the result of Build.
type Maps struct {
	Text    *TextMap
	Images  *ImageMap
	Skipped []*RuleError
}

// Err joins every skipped rule into one error, nil when none was skipped.
func (m *Maps) Err() error {
	if len(m.Skipped) == 0 {
		return nil
	}
	errs := make([]error, len(m.Skipped))
	for i, s := range m.Skipped {
		errs[i] = s
	}
	return errors.Join(errs...)
}

// Build constructs the replacement maps. Rules that cannot produce entries
// are not fatal; they are listed in Maps.Skipped.
func Build(list []Rule) *Maps {
	m := &Maps{
		Text:   NewTextMap(),
		Images: NewImageMap(),
	}

	skip := func(i int, r Rule, err error) {
		m.Skipped = append(m.Skipped, &RuleError{Index: i, Rule: r, Err: err})
	}

	for i, r := range list {
		switch r.Kind {
		case KindString:
			if r.Key == "" {
				skip(i, r, ErrEmptyKey)
				continue
			}
			m.Text.Set(r.Key, r.Value)

		case KindFullName:
			first, surname := SplitFullName(r.Value)
			m.Text.Set(FirstNameKey, first)
			m.Text.Set(SurnameKey, surname)

		case KindID:
			if utf8.RuneCountInString(r.Value) != IDLength {
				skip(i, r, ErrIDLength)
				continue
			}
			n := 0
			for _, c := range r.Value {
				n++
				m.Text.Set(IDKey(n), string(c))
			}

		case KindSignature, KindQRCode, KindBarcode:
			if r.Key == "" {
				skip(i, r, ErrEmptyKey)
				continue
			}
			m.Images.Set(r.Key, ImageSource{Kind: r.Kind, Value: r.Value})

		default:
			skip(i, r, ErrUnknownKind)
		}
	}

	return m
}

// SplitFullName splits on the first run of whitespace. The remainder keeps its
// inner spacing and is empty when the name is a single word.
func SplitFullName(value string) (first, surname string) {
	v := strings.TrimSpace(value)
	i := strings.IndexFunc(v, unicode.IsSpace)
	if i < 0 {
		return v, ""
	}
	return v[:i], strings.TrimLeftFunc(v[i:], unicode.IsSpace)
}
