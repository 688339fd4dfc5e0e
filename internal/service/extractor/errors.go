package extractor

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrParseFailed       = errors.New("failed to parse document")
)

// ExtractionError is returned for every failure of Extract. Kind is one of
// the package sentinels, so errors.Is works against both Kind and Err.
type ExtractionError struct {
	Filename string
	Kind     error
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %q: %v", e.Filename, e.Kind)
	}
	return fmt.Sprintf("extract %q: %v: %v", e.Filename, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unsupported(filename, ext string) error {
	return &ExtractionError{
		Filename: filename,
		Kind:     ErrUnsupportedFormat,
		Err:      fmt.Errorf("extension %q", ext),
	}
}

func parseFailed(filename string, err error) error {
	return &ExtractionError{Filename: filename, Kind: ErrParseFailed, Err: err}
}
