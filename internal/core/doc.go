// Package core ingests tabular files into a CKAN DataStore.
//
// It is independent of any transport: the CLI, the HTTP server and tests
// all drive the same [Pipeline].
//
// # Flow
//
// One resource run proceeds strictly in order:
//
//  1. Read the source, failing past [Options.MaxContentLength]
//  2. [Decode] bytes into a [TableSet]: zip, xlsx, gzip, bzip2, xz, zstd,
//     CSV or TSV, chosen by magic bytes, then MIME type, then extension
//  3. [NewRowSet] samples the first table, guesses the header row and
//     makes header names unique
//  4. [InferTypes] picks one [Candidate] per column from the sample; the
//     resulting [TypeVector] is locked for the rest of the run
//  5. [Store.DeleteDatastore] removes the previous generation
//  6. Rows are cast ([CastRow]), normalized ([NormalizeRow]) and sent by the
//     [Uploader] in batches of [Options.ChunkSize]
//  7. [Store.UpdateResource] marks the resource active
//
// Inference reads raw values; normalization only happens after the type
// vector is fixed.
//
// # Errors
//
// Every failure is one of [DecodeError], [InferenceError],
// [RemoteDeleteError], [UploadError] or [FinalizeError]. [MapError] turns
// them into coded user messages (DEC, INF, DEL, UPL, FIN).
//
// A failed batch leaves earlier batches in the store; [UploadError]
// reports how many records were committed.
package core
