package extract

import (
	"errors"
	"fmt"
)

// Sentinel errors for input extraction.
var (
	ErrExtraction          = errors.New("input extraction failed")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFetch               = errors.New("fetch failed")
)

// Error reports a failure to turn user input into message content. It always
// matches ErrExtraction under errors.Is.
type Error struct {
	Source string // URL or filename being extracted
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrExtraction
}
