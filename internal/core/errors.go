package core

import (
	"errors"
	"fmt"
)

// Reasons carried by FormatError.
const (
	ReasonEmpty       = "empty"
	ReasonMalformed   = "malformed"
	ReasonEncoding    = "encoding"
	ReasonMismatch    = "format mismatch"
	ReasonUnsupported = "unsupported format"
	ReasonUnreadable  = "unreadable"
)

// FormatError reports that the file itself cannot be parsed.
// It is fatal to the whole validate or execute call.
type FormatError struct {
	Reason string
	Line   int   // 1-based physical line, 0 when not tied to a line
	Err    error // underlying parser error, may be nil
}

func (e *FormatError) Error() string {
	msg := "format error: " + e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err is a FormatError with the given reason.
// An empty reason matches any FormatError.
func IsFormatError(err error, reason string) bool {
	var fe *FormatError
	if !errors.As(err, &fe) {
		return false
	}
	return reason == "" || fe.Reason == reason
}

// StoreError reports a failed existence check or batch write.
// It is recorded against the rows of the batch and never aborts an import.
type StoreError struct {
	Op    string // "exists" or "insert"
	Batch int    // 1-based batch number
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s batch %d: %v", e.Op, e.Batch, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrCancelled is returned alongside a partial ImportResult when the
// caller's context ends mid-import. Batches committed before that point
// stay committed.
var ErrCancelled = errors.New("import cancelled")
