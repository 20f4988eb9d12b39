package core

import (
	"errors"
	"fmt"
)

// ErrContentTooLarge is wrapped by a DecodeError when the source exceeds
// the configured maximum content length.
var ErrContentTooLarge = errors.New("content too large")

// DecodeError reports input that cannot be parsed as a supported table.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("decode failed: %v", e.Err)
	}
	return fmt.Sprintf("decode %s failed: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InferenceError reports a column no candidate type could describe, or a
// candidate without a field type mapping. Both indicate a defect.
type InferenceError struct {
	Column string
	Value  string
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("type inference failed for column %q (value %q): %v", e.Column, e.Value, e.Err)
	}
	return fmt.Sprintf("type inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// RemoteDeleteError reports a failed datastore_delete. Nothing new has been
// written; the previous generation is still in place.
type RemoteDeleteError struct {
	ResourceID string
	Status     int
	Diagnostic string
	Err        error
}

func (e *RemoteDeleteError) Error() string {
	return fmt.Sprintf("deleting existing datastore for %s failed: %s", e.ResourceID, describe(e.Status, e.Diagnostic, e.Err))
}

func (e *RemoteDeleteError) Unwrap() error { return e.Err }

// UploadError reports a failed datastore_create. Batches before Batch were
// committed and are not rolled back.
type UploadError struct {
	ResourceID string
	Batch      int
	Committed  int
	Status     int
	Diagnostic string
	Err        error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("datastore_create for %s failed on batch %d (%d records committed): %s",
		e.ResourceID, e.Batch, e.Committed, describe(e.Status, e.Diagnostic, e.Err))
}

func (e *UploadError) Unwrap() error { return e.Err }

// FinalizeError reports a failed resource_update after all data was written.
type FinalizeError struct {
	ResourceID string
	Status     int
	Diagnostic string
	Err        error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("resource_update for %s failed: %s", e.ResourceID, describe(e.Status, e.Diagnostic, e.Err))
}

func (e *FinalizeError) Unwrap() error { return e.Err }

// RemoteError is implemented by store errors that carry an HTTP status and
// a diagnostic extracted from the response body.
type RemoteError interface {
	error
	StatusCode() int
	Diagnostic() string
}

// remoteDetails pulls status and diagnostic out of err when available.
func remoteDetails(err error) (int, string) {
	var re RemoteError
	if errors.As(err, &re) {
		return re.StatusCode(), re.Diagnostic()
	}
	return 0, ""
}

func describe(status int, diagnostic string, err error) string {
	switch {
	case diagnostic != "":
		return diagnostic
	case status != 0:
		return fmt.Sprintf("status %d", status)
	case err != nil:
		return err.Error()
	default:
		return "unknown error"
	}
}
