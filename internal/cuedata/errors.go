package cuedata

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotSupportedFormat reports an event code or setting the runtime
	// does not know how to decode.
	ErrNotSupportedFormat = errors.New("cuedata: not supported format")
	// ErrCorrupt reports a structural check that failed, such as a missing
	// event separator.
	ErrCorrupt = errors.New("cuedata: corrupt sound entry")
	// ErrTruncated reports a read past the end of the buffer.
	ErrTruncated = errors.New("cuedata: truncated sound entry")
)

// FormatError is returned for every malformed input. Kind is one of the
// package sentinels and is matched by errors.Is.
type FormatError struct {
	Offset int64
	Kind   error
	Detail string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", e.Kind, e.Offset, e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Kind }

func formatErr(offset int64, kind error, format string, args ...interface{}) error {
	return errors.WithStack(&FormatError{
		Offset: offset,
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	})
}
