package docxfill

import (
	"errors"
	"fmt"
)

// ErrNoDocument is returned when a package has no word/document.xml.
var ErrNoDocument = errors.New("no word/document.xml in docx")

// ImageError reports a picture that could not be loaded or embedded. It
// aborts the whole run.
type ImageError struct {
	Key     string
	Locator string
	Err     error
}

func (e *ImageError) Error() string {
	loc := e.Locator
	if len(loc) > 48 {
		loc = loc[:48] + "..."
	}
	return fmt.Sprintf("image %s (%s): %v", e.Key, loc, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
