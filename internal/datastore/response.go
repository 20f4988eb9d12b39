package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// maxDiagnosticBody caps how much of a response body ends up in errors.
const maxDiagnosticBody = 4096

// ResponseError is a CKAN action call that answered with an unacceptable
// status or an application-level failure.
type ResponseError struct {
	Action string
	Status int
	Detail string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Action, e.Status, e.Detail)
}

// StatusCode returns the HTTP status.
func (e *ResponseError) StatusCode() int { return e.Status }

// Diagnostic returns the text extracted from the response body.
func (e *ResponseError) Diagnostic() string { return e.Detail }

// Temporary reports whether a retry could succeed.
func (e *ResponseError) Temporary() bool { return e.Status >= 500 }

// diagnose renders a response for humans:
//   - empty body: the status line
//   - JSON body: the status line and the "error" object (or the whole
//     document), indented with sorted keys
//   - anything else: the status line and the raw body in angle brackets
func diagnose(resp *http.Response, body []byte) string {
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return status
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		text := string(body)
		if len(text) > maxDiagnosticBody {
			text = text[:maxDiagnosticBody] + "..."
		}
		return status + " <" + text + ">"
	}

	if m, ok := doc.(map[string]any); ok {
		if e, ok := m["error"]; ok {
			doc = e
		}
	}
	pretty, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return status
	}
	return status + "\n" + string(pretty)
}

// reportsFailure reports whether a JSON body carries "success": false.
func reportsFailure(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		return false
	}
	var envelope struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return false
	}
	return envelope.Success != nil && !*envelope.Success
}
