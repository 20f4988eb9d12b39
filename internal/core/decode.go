package core

// decode.go turns raw source bytes into tables of raw string rows.
//
// Dispatch order:
//  1. magic bytes: zip (and xlsx inside it), gzip, bzip2, xz, zstd, legacy xls
//  2. declared MIME type, then declared format or file extension, which only
//     choose between the delimited-text variants
//
// Compressed inputs are expanded in memory under the same byte ceiling as
// the source and dispatched again on their inner name.

import (
	"bytes"
	"compress/bzip2"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptyInput        = errors.New("input is empty")
	ErrUnsupportedFormat = errors.New("format is not supported")
	ErrBinaryContent     = errors.New("content is binary and matches no supported format")
	ErrNoSupportedEntry  = errors.New("archive has no supported entry")
	ErrNoHeader          = errors.New("no header row found")
	ErrTooDeep           = errors.New("archive nesting too deep")
)

// maxNesting bounds archive-in-archive recursion (e.g. csv.gz inside a zip).
const maxNesting = 3

// DecodeOptions tunes Decode.
type DecodeOptions struct {
	// MaxBytes caps the size of decompressed content. 0 disables the cap.
	MaxBytes int64
}

// RowIterator yields raw rows in order. Next returns io.EOF after the last row.
type RowIterator interface {
	Next() ([]string, error)
	Close() error
}

// Table is one decoded sheet. Rows may be called any number of times;
// every call restarts from the first row.
type Table struct {
	Name string
	open func() (RowIterator, error)
}

// Rows returns a fresh iterator positioned at the first row.
func (t *Table) Rows() (RowIterator, error) {
	return t.open()
}

// Sample returns up to n rows from the top of the table.
func (t *Table) Sample(n int) ([][]string, error) {
	it, err := t.Rows()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var rows [][]string
	for len(rows) < n {
		row, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// TableSet is the result of decoding one source. Only Tables[0] is ingested.
type TableSet struct {
	Format string
	Tables []*Table

	closer io.Closer
}

// Close releases resources held by the decoder (spreadsheet temp files).
func (ts *TableSet) Close() error {
	if ts.closer == nil {
		return nil
	}
	return ts.closer.Close()
}

// Decode parses data into a TableSet. contentType is the declared MIME type,
// optionally with a charset parameter. format is the declared format or a
// file name; either may be empty.
func Decode(data []byte, contentType, format string, opts DecodeOptions) (*TableSet, error) {
	mediaType, charset := parseContentType(contentType)
	return decode(data, mediaType, charset, format, opts, 0)
}

func decode(data []byte, mediaType, charset, name string, opts DecodeOptions, depth int) (*TableSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DecodeError{Err: ErrEmptyInput}
	}
	if depth > maxNesting {
		return nil, &DecodeError{Err: ErrTooDeep}
	}

	switch kind := sniffMagic(data); kind {
	case FormatZip:
		return decodeZip(data, charset, opts, depth)
	case FormatXLS:
		return nil, &DecodeError{Format: FormatXLS, Err: fmt.Errorf("legacy binary spreadsheet: %w", ErrUnsupportedFormat)}
	case FormatGzip, FormatBzip2, FormatXZ, FormatZstd:
		inner, err := decompress(kind, data, opts.MaxBytes)
		if err != nil {
			return nil, &DecodeError{Format: kind, Err: err}
		}
		return decode(inner, "", charset, innerName(name), opts, depth+1)
	}

	return decodeText(data, mediaType, charset, name)
}

func decodeText(data []byte, mediaType, charset, name string) (*TableSet, error) {
	format := FormatCSV
	if mimeFormats[mediaType] == FormatTSV || formatFromName(name) == FormatTSV {
		format = FormatTSV
	}

	if charset == "" && looksBinary(data) {
		return nil, &DecodeError{Format: format, Err: ErrBinaryContent}
	}
	if _, err := NewTextReader(bytes.NewReader(nil), charset); err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}

	delim := '\t'
	if format == FormatCSV {
		delim = sniffDelimiter(data)
	}

	table := &Table{
		Name: name,
		open: func() (RowIterator, error) {
			r, err := NewTextReader(bytes.NewReader(data), charset)
			if err != nil {
				return nil, err
			}
			cr := csv.NewReader(r)
			cr.Comma = delim
			cr.FieldsPerRecord = -1
			cr.LazyQuotes = true
			return &csvRows{r: cr}, nil
		},
	}
	return &TableSet{Format: format, Tables: []*Table{table}}, nil
}

type csvRows struct {
	r *csv.Reader
}

func (c *csvRows) Next() ([]string, error) {
	row, err := c.r.Read()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read delimited row: %w", err)
	}
	return row, err
}

func (c *csvRows) Close() error { return nil }

func decodeZip(data []byte, charset string, opts DecodeOptions, depth int) (*TableSet, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &DecodeError{Format: FormatZip, Err: err}
	}

	for _, f := range zr.File {
		if f.Name == "xl/workbook.xml" {
			return decodeXLSX(data)
		}
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(path.Base(f.Name), ".") {
			continue
		}
		if formatFromName(f.Name) == "" {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, &DecodeError{Format: FormatZip, Err: fmt.Errorf("open %s: %w", f.Name, err)}
		}
		inner, err := io.ReadAll(NewSizeLimitReader(rc, opts.MaxBytes))
		rc.Close()
		if err != nil {
			return nil, &DecodeError{Format: FormatZip, Err: fmt.Errorf("read %s: %w", f.Name, err)}
		}
		return decode(inner, "", charset, f.Name, opts, depth+1)
	}

	return nil, &DecodeError{Format: FormatZip, Err: ErrNoSupportedEntry}
}

func decompress(kind string, data []byte, maxBytes int64) ([]byte, error) {
	var r io.Reader
	switch kind {
	case FormatGzip:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case FormatBzip2:
		r = bzip2.NewReader(bytes.NewReader(data))
	case FormatXZ:
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		r = xr
	case FormatZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("%s: %w", kind, ErrUnsupportedFormat)
	}
	return io.ReadAll(NewSizeLimitReader(r, maxBytes))
}

func decodeXLSX(data []byte) (*TableSet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: FormatXLSX, Err: err}
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, &DecodeError{Format: FormatXLSX, Err: ErrEmptyInput}
	}

	ts := &TableSet{Format: FormatXLSX, closer: f}
	for _, sheet := range sheets {
		ts.Tables = append(ts.Tables, &Table{
			Name: sheet,
			open: func() (RowIterator, error) {
				rows, err := f.Rows(sheet)
				if err != nil {
					return nil, err
				}
				return &xlsxRows{rows: rows}, nil
			},
		})
	}
	return ts, nil
}

type xlsxRows struct {
	rows *excelize.Rows
}

func (x *xlsxRows) Next() ([]string, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, fmt.Errorf("read sheet row: %w", err)
		}
		return nil, io.EOF
	}
	return x.rows.Columns()
}

func (x *xlsxRows) Close() error { return x.rows.Close() }
