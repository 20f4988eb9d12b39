package core

// # Error Codes Reference
//
// User-facing messages with codes for support reference. Operators quote
// the code; the technical error stays in the logs.
//
// # Decode Errors (DEC001-DEC099)
//
//	DEC001 - Unreadable file: The file could not be read as a table
//	         Action: Check that the file is a valid CSV, TSV or XLSX file
//	DEC002 - File too large: The file exceeds the maximum content length
//	         Action: Split the file or raise INGEST_MAX_CONTENT_LENGTH
//	DEC003 - Unsupported format: The file format is not supported
//	         Action: Convert legacy .xls files to .xlsx or CSV
//	DEC004 - Empty file: The file has no rows
//	         Action: Upload a file with a header row and data rows
//
// # Inference Errors (INF001)
//
//	INF001 - Type inference failed: A column matched no known type
//	         Action: Report this to support with the column name
//
// # Remote Store Errors (DEL001, UPL001-UPL002, FIN001)
//
//	DEL001 - Delete failed: Existing data could not be removed
//	         Action: Previous data is unchanged. Try again later
//	UPL001 - Batch rejected: The datastore rejected a batch of records
//	         Action: Check the diagnostic; earlier batches remain stored
//	UPL002 - Datastore unreachable: A batch could not be sent
//	         Action: Check connectivity to the CKAN site; earlier batches remain stored
//	FIN001 - Finalize failed: Data was stored but the resource was not updated
//	         Action: Run the ingest again to mark the resource active
//
// # Request Errors (LIM001, REQ001-REQ002)
//
//	LIM001 - System busy: Too many ingests in progress
//	REQ001 - Request cancelled
//	REQ002 - Request timed out
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// Typed errors are matched first with errors.As / errors.Is. Anything else
// falls through to case-insensitive substring patterns; the first match wins.

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

var (
	msgUnreadable = UserMessage{
		Message: "The file could not be read as a table",
		Action:  "Check that the file is a valid CSV, TSV or XLSX file",
		Code:    "DEC001",
	}
	msgTooLarge = UserMessage{
		Message: "The file exceeds the maximum content length",
		Action:  "Split the file or raise INGEST_MAX_CONTENT_LENGTH",
		Code:    "DEC002",
	}
	msgUnsupported = UserMessage{
		Message: "The file format is not supported",
		Action:  "Convert legacy .xls files to .xlsx or CSV",
		Code:    "DEC003",
	}
	msgEmpty = UserMessage{
		Message: "The file has no rows",
		Action:  "Upload a file with a header row and data rows",
		Code:    "DEC004",
	}
	msgInference = UserMessage{
		Message: "A column matched no known type",
		Action:  "Report this to support with the column name",
		Code:    "INF001",
	}
	msgDelete = UserMessage{
		Message: "Existing data could not be removed",
		Action:  "Previous data is unchanged. Try again later",
		Code:    "DEL001",
	}
	msgBatchRejected = UserMessage{
		Message: "The datastore rejected a batch of records",
		Action:  "Check the diagnostic; earlier batches remain stored",
		Code:    "UPL001",
	}
	msgUnreachable = UserMessage{
		Message: "A batch could not be sent to the datastore",
		Action:  "Check connectivity to the CKAN site; earlier batches remain stored",
		Code:    "UPL002",
	}
	msgFinalize = UserMessage{
		Message: "Data was stored but the resource was not updated",
		Action:  "Run the ingest again to mark the resource active",
		Code:    "FIN001",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other ingests",
		Action:  "Please wait a moment and try again",
		Code:    "LIM001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "REQ002",
	}
)

// errorPattern maps a lowercase substring of an untyped error to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"too many concurrent ingests", msgBusy},
	{"content too large", msgTooLarge},
	{"request body too large", msgTooLarge},
	{"context canceled", msgCancelled},
	{"context deadline exceeded", msgTimeout},
	{"timeout", msgTimeout},
	{"connection refused", msgUnreachable},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var (
		decodeErr   *DecodeError
		inferErr    *InferenceError
		deleteErr   *RemoteDeleteError
		uploadErr   *UploadError
		finalizeErr *FinalizeError
	)

	switch {
	case errors.Is(err, ErrTooManyIngests):
		return msgBusy, true
	case errors.Is(err, context.Canceled):
		return msgCancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout, true
	case errors.As(err, &decodeErr):
		switch {
		case errors.Is(err, ErrContentTooLarge):
			return msgTooLarge, true
		case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrBinaryContent), errors.Is(err, ErrNoSupportedEntry):
			return msgUnsupported, true
		case errors.Is(err, ErrEmptyInput), errors.Is(err, ErrNoHeader):
			return msgEmpty, true
		}
		return msgUnreadable, true
	case errors.As(err, &inferErr):
		return msgInference, true
	case errors.As(err, &deleteErr):
		return msgDelete, true
	case errors.As(err, &uploadErr):
		if uploadErr.Status == 0 {
			return msgUnreachable, true
		}
		return msgBatchRejected, true
	case errors.As(err, &finalizeErr):
		return msgFinalize, true
	}
	return UserMessage{}, false
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
