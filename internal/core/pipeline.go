package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/datastorer/internal/logging"
)

// Defaults applied by NewPipeline to zero-valued Options.
const (
	DefaultSampleSize       = 1000
	DefaultMaxContentLength = 50000000
)

// Options configures a Pipeline. The values are read-only once the
// pipeline is built and may be shared by concurrent runs.
type Options struct {
	ChunkSize        int
	SampleSize       int
	MaxContentLength int64
	Candidates       []Candidate

	// Now stamps webstore_last_updated. Defaults to time.Now.
	Now func() time.Time
}

// Pipeline ingests one resource at a time into a Store. Run is safe to call
// concurrently for different resources.
type Pipeline struct {
	store    Store
	opts     Options
	uploader *Uploader
	observer Observer
	logger   *slog.Logger
}

// NewPipeline wires a pipeline. A nil observer or logger disables that output.
func NewPipeline(store Store, opts Options, observer Observer, logger *slog.Logger) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = DefaultCandidates
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Pipeline{
		store:    store,
		opts:     opts,
		uploader: NewUploader(store, opts.ChunkSize, observer, logger),
		observer: observer,
		logger:   logger,
	}
}

// Run ingests src as the data of res. contentType is the declared MIME type
// and falls back to res.MimeType when empty.
//
// Steps run strictly in order: read (bounded by MaxContentLength), decode,
// locate header, sample, infer, delete remote data, stream
// cast+normalize+upload, finalize metadata on top of the stored resource. The first failure ends the run
// with a typed error.
func (p *Pipeline) Run(ctx context.Context, res Resource, src io.Reader, contentType string) (*Result, error) {
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.WithFields(ctx, p.logger, "resource_id", res.ID)

	if contentType == "" {
		contentType = res.MimeType
	}

	start := time.Now()
	p.observer.RunStarted(res.ID)
	logger.Info("ingest started", "format", res.Format, "content_type", contentType)

	result := &Result{RunID: runID, ResourceID: res.ID}
	err := p.run(ctx, logger, res, src, contentType, result)
	result.Duration = time.Since(start)

	p.observer.RunFinished(res.ID, result.Records, result.Duration, err)
	if err != nil {
		logger.Error("ingest failed", "error", err, "records", result.Records, "duration", result.Duration)
		return result, err
	}
	logger.Info("ingest complete", "records", result.Records, "batches", result.Batches, "duration", result.Duration)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, res Resource, src io.Reader, contentType string, result *Result) error {
	data, err := io.ReadAll(NewSizeLimitReader(src, p.opts.MaxContentLength))
	if err != nil {
		return &DecodeError{Err: err}
	}

	ts, err := Decode(data, contentType, formatHint(res), DecodeOptions{MaxBytes: p.opts.MaxContentLength})
	if err != nil {
		return err
	}
	defer ts.Close()

	if len(ts.Tables) > 1 {
		logger.Warn("only the first table is ingested", "tables", len(ts.Tables), "table", ts.Tables[0].Name)
	}

	rs, err := NewRowSet(ts.Tables[0], p.opts.SampleSize)
	if err != nil {
		return err
	}
	result.HeaderOffset = rs.Offset
	result.Header = rs.Header
	logger.Info("header located", "offset", rs.Offset, "columns", len(rs.Header), "format", ts.Format)

	types, err := InferTypes(rs.Sample, rs.Header, p.opts.Candidates)
	if err != nil {
		return err
	}
	fields, err := Fields(rs.Header, types)
	if err != nil {
		return err
	}
	result.Types = types.Names()
	result.Fields = fields
	logger.Info("types guessed", "types", result.Types)

	if err := p.store.DeleteDatastore(ctx, res.ID); err != nil {
		status, diag := remoteDetails(err)
		return &RemoteDeleteError{ResourceID: res.ID, Status: status, Diagnostic: diag, Err: err}
	}

	rows, err := rs.Rows()
	if err != nil {
		return &DecodeError{Format: ts.Format, Err: err}
	}
	defer rows.Close()

	stats, err := p.uploader.Upload(ctx, res.ID, fields, &recordStream{
		rows:   rows,
		types:  types,
		header: rs.Header,
		format: ts.Format,
	})
	result.Records = stats.Records
	result.Batches = stats.Batches
	if err != nil {
		return err
	}
	logger.Info("records uploaded", "expected_entries", stats.Records, "batches", stats.Batches)

	current, err := p.store.ShowResource(ctx, res.ID)
	if err != nil {
		status, diag := remoteDetails(err)
		return &FinalizeError{ResourceID: res.ID, Status: status, Diagnostic: diag, Err: err}
	}
	if err := p.store.UpdateResource(ctx, resourcePayload(current, res, p.opts.Now())); err != nil {
		status, diag := remoteDetails(err)
		return &FinalizeError{ResourceID: res.ID, Status: status, Diagnostic: diag, Err: err}
	}
	return nil
}

// formatHint prefers the declared format, then the file name of the path or URL.
func formatHint(res Resource) string {
	switch {
	case res.Format != "":
		return res.Format
	case res.Path != "":
		return path.Base(res.Path)
	case res.URL != "":
		return path.Base(res.URL)
	}
	return ""
}

// resourcePayload builds the resource_update body marking res active.
// current is the stored resource; res.Metadata and the non-empty fields of
// res override it, and only the webstore fields always change.
func resourcePayload(current map[string]any, res Resource, now time.Time) map[string]any {
	payload := make(map[string]any, len(current)+len(res.Metadata)+8)
	maps.Copy(payload, current)
	maps.Copy(payload, res.Metadata)

	payload["id"] = res.ID
	for k, v := range map[string]string{
		"name":     res.Name,
		"url":      res.URL,
		"format":   res.Format,
		"mimetype": res.MimeType,
	} {
		if v != "" {
			payload[k] = v
		}
	}
	payload["webstore_url"] = "active"
	payload["webstore_last_updated"] = FormatTimestamp(now.UTC())
	return payload
}

// recordStream casts and normalizes rows as the uploader pulls them.
type recordStream struct {
	rows   RowIterator
	types  TypeVector
	header Header
	format string
}

func (s *recordStream) Next() (Record, error) {
	raw, err := s.rows.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &DecodeError{Format: s.format, Err: err}
	}
	return NormalizeRow(CastRow(raw, s.types)).Record(s.header), nil
}

// Job is one resource for RunAll. Open is called once, inside the worker.
type Job struct {
	Resource    Resource
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Outcome is the per-resource result of RunAll. Exactly one of Result and
// Err describes the run; Result may also be set on failure.
type Outcome struct {
	Resource Resource
	Result   *Result
	Err      error

	Started  time.Time
	Finished time.Time
}

// RunAll runs independent jobs with at most parallelism concurrent runs.
// A failing resource never stops the others; outcomes keep job order.
func (p *Pipeline) RunAll(ctx context.Context, jobs []Job, parallelism int) []Outcome {
	if parallelism <= 0 {
		parallelism = 1
	}

	outcomes := make([]Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(parallelism)

	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = p.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) runJob(ctx context.Context, job Job) (out Outcome) {
	out = Outcome{Resource: job.Resource, Started: time.Now()}
	defer func() { out.Finished = time.Now() }()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	rc, err := job.Open()
	if err != nil {
		out.Err = &DecodeError{Err: fmt.Errorf("open source: %w", err)}
		return out
	}
	defer rc.Close()

	out.Result, out.Err = p.Run(ctx, job.Resource, rc, job.ContentType)
	return out
}
