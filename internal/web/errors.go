package web

// errors.go turns pipeline errors into HTTP responses. The technical error
// is logged with the request id; clients get the coded message from
// core.MapError, plus the remote diagnostic when CKAN answered.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/datastorer/internal/core"
	"github.com/JonMunkholm/datastorer/internal/logging"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Action     string `json:"action,omitempty"`
	Code       string `json:"code"`
	Diagnostic string `json:"diagnostic,omitempty"`
	RunID      string `json:"run_id,omitempty"`
}

// respondError logs err and writes the mapped message with statusFor(err).
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, runID string) {
	statusCode := statusFor(err)
	userMsg := core.MapError(err)

	logging.FromContext(r.Context(), s.logger).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"run_id", runID,
	)

	if !wantsJSON(r) {
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
		return
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
		RunID:   runID,
	}
	var remote core.RemoteError
	if errors.As(err, &remote) {
		resp.Diagnostic = remote.Diagnostic()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// respondBadRequest reports a malformed request that never reached the pipeline.
func respondBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Message: message, Code: "REQ000"})
}

// statusFor picks the HTTP status for a pipeline error.
func statusFor(err error) int {
	var (
		decodeErr   *core.DecodeError
		inferErr    *core.InferenceError
		deleteErr   *core.RemoteDeleteError
		uploadErr   *core.UploadError
		finalizeErr *core.FinalizeError
	)

	switch {
	case errors.Is(err, core.ErrTooManyIngests):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrContentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnsupportedFormat), errors.Is(err, core.ErrBinaryContent):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &decodeErr), errors.As(err, &inferErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &deleteErr), errors.As(err, &uploadErr), errors.As(err, &finalizeErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the status.
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
