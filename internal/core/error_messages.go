// Package core provides the business logic for tabular import operations.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When operators encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Typed errors (FormatError, ErrUnknownTarget, ErrTooManyImports, ...) are
// mapped first; anything else falls through to pattern matching on the
// error text.
//
// # Database Errors (DB001-DB099)
//
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date: Invalid date format detected
//	VAL002 - Invalid number: Invalid number format detected
//	VAL003 - Required field: Required field is empty
//	VAL004 - Missing column: Required column is missing from the file
//	VAL006 - Invalid enum: Value is not in the allowed list
//	VAL007 - Invalid phone: Phone number could not be read
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	FILE002 - Malformed file: Quoting or structure is broken
//	FILE003 - Encoding error: File contains invalid characters
//	FILE004 - No file: No file was selected
//	FILE005 - Empty file: The uploaded file is empty
//	FILE006 - Format mismatch: Content does not match the declared format
//	FILE007 - Unsupported format: Only CSV, TSV and XLSX are accepted
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Import cancelled: Import was cancelled before it finished
//	IMP002 - System busy: Too many imports in progress
//	IMP003 - Invalid options: Batch size or other option is out of range
//	IMP004 - Request cancelled: Request was cancelled
//	IMP005 - Request timeout: Request timed out
//
// # Target Errors (TGT001-TGT099)
//
//	TGT001 - Unknown target: The import target is not configured
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Support staff should check
// application logs for the original technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so order matters:
//   - More specific patterns should come before general ones
//   - Multiple patterns can map to the same error code
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the package documentation at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// These errors occur when database connectivity is disrupted.
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Import Errors (IMP004-IMP005)
	// Context errors are matched before the generic timeout pattern.
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try importing a smaller file or check your connection",
			Code:    "IMP005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try importing a smaller file or try again later",
			Code:    "DB006",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL007)
	// These errors occur when data doesn't match expected formats.
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use DD/MM/YYYY or YYYY-MM-DD",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Use plain amounts such as 1250.00 or RM1,250.00",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from the file",
			Action:  "Download the template and compare the header row",
			Code:    "VAL004",
		},
	},
	{
		pattern: "must be one of",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "VAL006",
		},
	},
	{
		pattern: "invalid phone",
		msg: UserMessage{
			Message: "Phone number could not be read",
			Action:  "Use digits only, with or without the country code",
			Code:    "VAL007",
		},
	},

	// =========================================================================
	// File Errors (FILE001, FILE004)
	// Typed FormatErrors are mapped in MapError; these cover plain errors.
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV, TSV or XLSX file to import",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// These errors occur when request limits are exceeded.
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// formatMessages maps FormatError reasons to user messages.
var formatMessages = map[string]UserMessage{
	ReasonEmpty: {
		Message: "The uploaded file is empty",
		Action:  "Please upload a file with a header row and data rows",
		Code:    "FILE005",
	},
	ReasonMalformed: {
		Message: "The file could not be parsed",
		Action:  "Check for unbalanced quotes near the reported line",
		Code:    "FILE002",
	},
	ReasonEncoding: {
		Message: "File contains invalid characters",
		Action:  "Save file as UTF-8 encoding",
		Code:    "FILE003",
	},
	ReasonMismatch: {
		Message: "File content does not match the selected format",
		Action:  "Choose the right format or export the file again",
		Code:    "FILE006",
	},
	ReasonUnsupported: {
		Message: "This file format is not supported",
		Action:  "Upload a CSV, TSV or XLSX file",
		Code:    "FILE007",
	},
	ReasonUnreadable: {
		Message: "The file could not be read",
		Action:  "Please upload the file again",
		Code:    "FILE008",
	},
}

// sentinelMessages maps sentinel errors to user messages, checked with errors.Is.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrUnknownTarget, UserMessage{
		Message: "Unknown import target",
		Action:  "Choose customers, orders or shipments",
		Code:    "TGT001",
	}},
	{ErrCancelled, UserMessage{
		Message: "Import was cancelled before it finished",
		Action:  "Review the partial result; committed batches were kept",
		Code:    "IMP001",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP002",
	}},
	{ErrInvalidOptions, UserMessage{
		Message: "Import options are invalid",
		Action:  "Use a batch size of at least 1",
		Code:    "IMP003",
	}},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed errors are matched first, then known error patterns
// (case-insensitive). If nothing matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	_, err := importer.Validate(ctx, core.TargetOrders, file)
//	msg := MapError(err)
//	// msg.Code == "FILE005" for an empty upload
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var fe *FormatError
	if errors.As(err, &fe) {
		if msg, ok := formatMessages[fe.Reason]; ok {
			if fe.Line > 0 {
				msg.Message = fmt.Sprintf("%s (line %d)", msg.Message, fe.Line)
			}
			return msg
		}
	}
	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "The uploaded file is empty (Code: FILE005). Please upload a file with a header row and data rows"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(err)
//	slog.Error("import failed", "error", ue.Technical)
//	fmt.Println(ue.Error())   // "System is busy processing other imports"
//	fmt.Println(ue.User.Code) // "IMP002"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

// HTTPStatus returns the status code an HTTP handler should use for err.
func HTTPStatus(err error) int {
	var fe *FormatError
	var mbe *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &fe):
		if fe.Reason == ReasonUnsupported {
			return http.StatusUnsupportedMediaType
		}
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnknownTarget):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrCancelled):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
