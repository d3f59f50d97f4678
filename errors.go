package mkv

import (
	"errors"
	"fmt"
)

// ErrMissingRoot is returned when neither an EBML header nor a Segment
// element can be located within the root-search chunk cap.
var ErrMissingRoot = errors.New("mkv: cannot find EBML or Segment structure")

// ErrAborted is returned when the caller's observer requested
// Abort; the tree built up to that point is still returned alongside it.
var ErrAborted = errors.New("mkv: parsing aborted by observer")

// ParseError reports a fatal structural violation: an invalid VINT, an
// identifier that cannot be resolved where one is required, or payload
// bytes that would run past their enclosing container.
type ParseError struct {
	Offset int64
	Want   string
	Got    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mkv: at offset %d: %s (want %s, got %s)", e.Offset, e.Err, e.Want, e.Got)
	}
	return fmt.Sprintf("mkv: at offset %d: want %s, got %s", e.Offset, e.Want, e.Got)
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(offset int64, want, got string) *ParseError {
	return &ParseError{Offset: offset, Want: want, Got: got}
}

func wrapParseError(offset int64, want, got string, err error) *ParseError {
	return &ParseError{Offset: offset, Want: want, Got: got, Err: err}
}

// Warning is a soft diagnostic emitted for schema mismatches, unexpected
// payload widths, or irregular CFR frame timing: processing continues,
// but the caller may want to know. Collected on Tree.Warnings.
type Warning struct {
	Offset  int64
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("offset %d: %s", w.Offset, w.Message)
}
