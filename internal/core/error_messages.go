package core

// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. Typed errors (see errors.go) are mapped by category
// first; anything else falls through to case-insensitive pattern matching.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Empty entity map: No entities were supplied for redaction
//	         Action: Run entity extraction first or supply an entity map
//	VAL002 - Invalid entity: An entity or its replacement is empty
//	         Action: Remove empty keys and give every entity a replacement token
//	VAL003 - Unsupported target: The export target is not available
//	         Action: Choose one of the listed export formats
//	VAL004 - Invalid document id: The document id is empty or malformed
//	         Action: Use the file path or id returned by the upload
//	VAL005 - Invalid request: The request was malformed
//	         Action: Check the request fields and try again
//
// # Parse Errors (PARSE001-PARSE099)
//
//	PARSE001 - Corrupt document: The file could not be read as its format
//	           Action: Re-export the document from its source application
//	PARSE002 - Password protected: The document is encrypted
//	           Action: Remove the password and upload again
//
// # Serialization Errors (SER001)
//
//	SER001 - Write failure: The redacted document could not be written
//	         Action: Contact support with the error code
//
// # Format Errors (FMT001)
//
//	FMT001 - Unsupported format: No handler for this file type
//	         Action: Upload a txt, md, csv, xlsx, pptx or pdf file
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Job not found: No extraction job exists for the document
//	         Action: Submit the document for extraction first
//	JOB002 - Extraction failed: The extraction service reported a failure
//	         Action: Submit the document again
//
// # Capacity Errors (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	RATE002 - System busy: Too many documents are being processed
//	          Action: Please wait a moment and try again
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgEmptyEntityMap = UserMessage{
		Message: "No entities were supplied for redaction",
		Action:  "Run entity extraction first or supply an entity map",
		Code:    "VAL001",
	}
	msgInvalidEntity = UserMessage{
		Message: "An entity or its replacement is empty",
		Action:  "Remove empty keys and give every entity a replacement token",
		Code:    "VAL002",
	}
	msgUnsupportedTarget = UserMessage{
		Message: "The export target is not available",
		Action:  "Choose one of the listed export formats",
		Code:    "VAL003",
	}
	msgInvalidDocumentID = UserMessage{
		Message: "The document id is empty or malformed",
		Action:  "Use the file path or id returned by the upload",
		Code:    "VAL004",
	}
	msgInvalidRequest = UserMessage{
		Message: "The request was malformed",
		Action:  "Check the request fields and try again",
		Code:    "VAL005",
	}
	msgCorruptDocument = UserMessage{
		Message: "The file could not be read as its format",
		Action:  "Re-export the document from its source application",
		Code:    "PARSE001",
	}
	msgPasswordProtected = UserMessage{
		Message: "The document is password protected",
		Action:  "Remove the password and upload again",
		Code:    "PARSE002",
	}
	msgWriteFailure = UserMessage{
		Message: "The redacted document could not be written",
		Action:  "Contact support with the error code",
		Code:    "SER001",
	}
	msgUnsupportedFormat = UserMessage{
		Message: "This file type is not supported",
		Action:  "Upload a txt, md, csv, xlsx, pptx or pdf file",
		Code:    "FMT001",
	}
	msgJobNotFound = UserMessage{
		Message: "No extraction job exists for this document",
		Action:  "Submit the document for extraction first",
		Code:    "JOB001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages for errors that carry no type. The first matching pattern wins,
// so more specific patterns come first.
var errorPatterns = []errorPattern{
	{pattern: "password protected", msg: msgPasswordProtected},
	{pattern: "encrypted", msg: msgPasswordProtected},
	{pattern: "entity map is empty", msg: msgEmptyEntityMap},
	{pattern: "unsupported export target", msg: msgUnsupportedTarget},
	{pattern: "invalid document id", msg: msgInvalidDocumentID},
	{pattern: "unsupported format", msg: msgUnsupportedFormat},
	{pattern: "job not found", msg: msgJobNotFound},
	{
		pattern: "extraction failed",
		msg: UserMessage{
			Message: "The extraction service reported a failure",
			Action:  "Submit the document again",
			Code:    "JOB002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "too many concurrent",
		msg: UserMessage{
			Message: "System is busy processing other documents",
			Action:  "Please wait a moment and try again",
			Code:    "RATE002",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		switch {
		case errors.Is(err, ErrEmptyEntityMap):
			return msgEmptyEntityMap
		case errors.Is(err, ErrUnsupportedTarget):
			return msgUnsupportedTarget
		case errors.Is(err, ErrInvalidDocumentID):
			return msgInvalidDocumentID
		case ve.Field == "entities":
			return msgInvalidEntity
		}
		return msgInvalidRequest
	case IsParse(err):
		if matchPattern(err) == msgPasswordProtected {
			return msgPasswordProtected
		}
		return msgCorruptDocument
	case IsSerialization(err):
		return msgWriteFailure
	case IsUnsupportedFormat(err):
		return msgUnsupportedFormat
	case IsNotFound(err):
		var nf *NotFoundError
		if errors.As(err, &nf) && nf.Kind == "job" {
			return msgJobNotFound
		}
	}

	return matchPattern(err)
}

func matchPattern(err error) UserMessage {
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
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-friendly message.
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

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
