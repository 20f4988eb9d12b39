package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datastorer/internal/core"
	"github.com/JonMunkholm/datastorer/internal/history"
	"github.com/JonMunkholm/datastorer/internal/logging"
)

const (
	// multipartMemory is how much of a form is buffered before spilling to disk.
	multipartMemory = 32 << 20

	// formOverhead allows for multipart boundaries and text fields.
	formOverhead = 1 << 20
)

// handleIngest replaces the datastore of {resourceID} with the uploaded file.
//
// Form fields: file (required), format, mimetype, name, url. Missing format
// and mimetype are taken from the file name and the part's Content-Type.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	resourceID := strings.TrimSpace(chi.URLParam(r, "resourceID"))
	if resourceID == "" {
		respondBadRequest(w, "missing resource id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondError(w, r, &core.DecodeError{
				Err: fmt.Errorf("%w: request body exceeds %d bytes", core.ErrContentTooLarge, tooBig.Limit),
			}, "")
			return
		}
		respondBadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondBadRequest(w, "no file provided")
		return
	}
	defer file.Close()

	res := core.Resource{
		ID:       resourceID,
		Name:     r.FormValue("name"),
		URL:      r.FormValue("url"),
		Format:   r.FormValue("format"),
		MimeType: r.FormValue("mimetype"),
		Path:     header.Filename,
	}
	if res.Name == "" {
		res.Name = header.Filename
	}
	if res.Format == "" {
		res.Format = strings.TrimPrefix(strings.ToLower(path.Ext(header.Filename)), ".")
	}
	if res.MimeType == "" {
		res.MimeType = header.Header.Get("Content-Type")
	}

	logger := logging.WithFields(r.Context(), s.logger, "resource_id", res.ID)

	if !core.Accepts(res.MimeType, res.Format) {
		logger.Warn("resource skipped: format not accepted", "format", res.Format, "mimetype", res.MimeType)
		s.observer.ResourceSkipped("format")
		s.respondError(w, r, &core.DecodeError{Format: res.Format, Err: core.ErrUnsupportedFormat}, "")
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err, "")
		return
	}
	defer s.limiter.Release()

	logger.Info("ingest accepted", "file", header.Filename, "size", header.Size)

	started := time.Now()
	result, err := s.ingester.Run(r.Context(), res, file, res.MimeType)
	s.recordRun(r.Context(), res, result, err, started)

	if err != nil {
		runID := ""
		if result != nil {
			runID = result.RunID
		}
		s.respondError(w, r, err, runID)
		return
	}
	writeJSON(w, s.logger, result)
}

// recordRun stores the outcome even if the client has gone away.
func (s *Server) recordRun(ctx context.Context, res core.Resource, result *core.Result, runErr error, started time.Time) {
	if s.history == nil {
		return
	}
	run := history.FromOutcome(res, result, runErr, started, time.Now())
	if err := s.history.Record(context.WithoutCancel(ctx), run); err != nil {
		logging.FromContext(ctx, s.logger).Error("failed to record run", "resource_id", res.ID, "error", err)
	}
}
