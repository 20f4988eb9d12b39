package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// DefaultChunkSize is the number of records per datastore_create call.
const DefaultChunkSize = 100

// Store is the remote tabular store. Implementations must be safe for
// concurrent use by independent runs.
type Store interface {
	// DeleteDatastore removes all data for the resource. A resource without
	// data is not an error.
	DeleteDatastore(ctx context.Context, resourceID string) error

	// CreateDatastore creates the table if needed and appends records.
	CreateDatastore(ctx context.Context, resourceID string, fields []Field, records []Record) error

	// ShowResource returns the resource metadata as currently stored.
	ShowResource(ctx context.Context, resourceID string) (map[string]any, error)

	// UpdateResource replaces the resource metadata. Fields missing from
	// resource are dropped by the store.
	UpdateResource(ctx context.Context, resource map[string]any) error
}

// RecordSource yields normalized records. Next returns io.EOF when done.
type RecordSource interface {
	Next() (Record, error)
}

// UploadStats counts what reached the store.
type UploadStats struct {
	Records int
	Batches int
}

// Uploader sends records to a Store in fixed-size batches.
type Uploader struct {
	store     Store
	chunkSize int
	observer  Observer
	logger    *slog.Logger
}

// NewUploader creates an uploader. chunkSize <= 0 uses DefaultChunkSize.
func NewUploader(store Store, chunkSize int, observer Observer, logger *slog.Logger) *Uploader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{store: store, chunkSize: chunkSize, observer: observer, logger: logger}
}

// Upload streams src to the store, one datastore_create per chunk, with the
// same field list on every call. It stops at the first failed batch; earlier
// batches stay committed and are reported in the returned UploadError.
// A source with no records still issues one create so the table exists.
func (u *Uploader) Upload(ctx context.Context, resourceID string, fields []Field, src RecordSource) (UploadStats, error) {
	var stats UploadStats
	batch := make([]Record, 0, u.chunkSize)

	flush := func() error {
		start := time.Now()
		err := u.store.CreateDatastore(ctx, resourceID, fields, batch)
		u.observer.BatchSent(len(batch), time.Since(start), err)
		if err != nil {
			status, diag := remoteDetails(err)
			return &UploadError{
				ResourceID: resourceID,
				Batch:      stats.Batches,
				Committed:  stats.Records,
				Status:     status,
				Diagnostic: diag,
				Err:        err,
			}
		}
		stats.Batches++
		stats.Records += len(batch)
		u.logger.Debug("batch committed", "resource_id", resourceID, "batch", stats.Batches, "records", stats.Records)
		batch = make([]Record, 0, u.chunkSize)
		return nil
	}

	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		batch = append(batch, rec)
		if len(batch) == u.chunkSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if len(batch) > 0 || stats.Batches == 0 {
		if err := flush(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
