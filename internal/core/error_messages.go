package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// # Error Codes Reference
//
// # Source Errors (CSV001-CSV099)
//
//	CSV001 - Empty file: the source has no header line
//	CSV002 - Missing columns: required columns are absent from the header
//	CSV003 - Unknown charset: the requested character encoding is not known
//	CSV004 - File too large: the upload exceeds the configured size limit
//	CSV005 - No file: the request carried no CSV data
//	CSV006 - Unbalanced quotes: a spreadsheet cell cannot be read back as CSV
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Unknown converter
//	CFG002 - Converter output does not fit the field type
//	CFG003 - Invalid timestamp pattern
//	CFG004 - Unsupported field type
//	CFG005 - Default value does not fit the field type
//	CFG006 - Converter registration rejected (duplicate or frozen registry)
//
// # Shape Errors (SRC001-SRC099)
//
//	SRC001 - Unknown shape
//	SRC002 - Invalid shape file
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Too many parse requests in flight
//	REQ002 - Request cancelled
//	REQ003 - Request timed out
//	REQ004 - Invalid request option
//
// # Auth Errors (AUTH001-AUTH099)
//
//	AUTH001 - Missing API key
//	AUTH002 - Invalid API key
//
// # Sink Errors (DB001-DB099)
//
//	DB001 - Duplicate key
//	DB002 - Database unreachable
//	DB003 - Target table does not exist
//
// # Default Error (ERR000)
//
// Rules are checked in order. A rule matches when err wraps its target
// sentinel or, failing that, when the lower-cased message contains its
// pattern. The first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorRule struct {
	target  error  // matched with errors.Is when set
	pattern string // matched case-insensitively otherwise
	msg     UserMessage
}

func (r errorRule) matches(err error, lower string) bool {
	if r.target != nil && errors.Is(err, r.target) {
		return true
	}
	return r.pattern != "" && strings.Contains(lower, r.pattern)
}

var errorRules = []errorRule{
	// Source
	{
		target: ErrEmptySource,
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Upload a CSV file with a header line",
			Code:    "CSV001",
		},
	},
	{
		pattern: "missing required columns",
		msg: UserMessage{
			Message: "Required columns are missing from the CSV header",
			Action:  "Check that the header names every required column",
			Code:    "CSV002",
		},
	},
	{
		target: ErrUnknownCharset,
		msg: UserMessage{
			Message: "The character encoding is not supported",
			Action:  "Use an encoding such as utf-8, latin1 or windows-1252",
			Code:    "CSV003",
		},
	},
	{
		pattern: "too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "CSV004",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No CSV data was provided",
			Action:  "Send the file as the request body or as the form field \"file\"",
			Code:    "CSV005",
		},
	},
	{
		pattern: "unbalanced quotes in cell",
		msg: UserMessage{
			Message: "A spreadsheet cell has unbalanced quotes",
			Action:  "Remove the stray quote from the named cell or move it to the last column",
			Code:    "CSV006",
		},
	},

	// Configuration
	{
		target: ErrUnknownConverter,
		msg: UserMessage{
			Message: "A field names a converter that is not registered",
			Action:  "Check the converter names in the shape definition",
			Code:    "CFG001",
		},
	},
	{
		target: ErrIncompatibleConverter,
		msg: UserMessage{
			Message: "A converter returns a different type than its field declares",
			Action:  "Change the field type or use another converter",
			Code:    "CFG002",
		},
	},
	{
		target: ErrInvalidPattern,
		msg: UserMessage{
			Message: "A timestamp pattern is invalid",
			Action:  "Check the date formats in the shape definition",
			Code:    "CFG003",
		},
	},
	{
		target: ErrUnsupportedType,
		msg: UserMessage{
			Message: "A field has an unsupported type",
			Action:  "Use one of the supported field types",
			Code:    "CFG004",
		},
	},
	{
		target: ErrInvalidDefault,
		msg: UserMessage{
			Message: "A default value does not match its field type",
			Action:  "Fix the default value in the shape definition",
			Code:    "CFG005",
		},
	},
	{
		target: ErrDuplicateConverter,
		msg: UserMessage{
			Message: "A converter is registered twice",
			Action:  "Give every converter a unique name",
			Code:    "CFG006",
		},
	},
	{
		target: ErrRegistryFrozen,
		msg: UserMessage{
			Message: "Converters can no longer be registered",
			Action:  "Register converters during startup",
			Code:    "CFG006",
		},
	},

	// Shapes
	{
		pattern: "unknown shape",
		msg: UserMessage{
			Message: "The requested shape does not exist",
			Action:  "List the available shapes and pick one of them",
			Code:    "SRC001",
		},
	},
	{
		pattern: "invalid shape",
		msg: UserMessage{
			Message: "The shape definition is invalid",
			Action:  "Fix the shape file and reload",
			Code:    "SRC002",
		},
	},

	// Requests
	{
		pattern: "too many parse requests",
		msg: UserMessage{
			Message: "The server is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "REQ001",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "REQ003",
		},
	},
	{
		pattern: "invalid query parameter",
		msg: UserMessage{
			Message: "A request option is invalid",
			Action:  "sep and quote take a single character, charset a known encoding name",
			Code:    "REQ004",
		},
	},
	{
		pattern: "missing api key",
		msg: UserMessage{
			Message: "An API key is required",
			Action:  "Send your key in the X-API-Key header",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "invalid api key",
		msg: UserMessage{
			Message: "The API key was not accepted",
			Action:  "Check the X-API-Key header",
			Code:    "AUTH002",
		},
	},

	// Sink
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Remove duplicate rows and try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "The target table does not exist",
			Action:  "Create the table or fix the table name in the shape",
			Code:    "DB003",
		},
	},
}

// defaultMessage is returned when no rule matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	lower := strings.ToLower(err.Error())
	for _, r := range errorRules {
		if r.matches(err, lower) {
			return r.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known rule.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
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

// NewUserError maps err. It returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
