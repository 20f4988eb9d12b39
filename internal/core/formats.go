package core

import "strings"

// DataFormats is the allow-list of MIME types and format strings a driver
// may hand to the pipeline.
var DataFormats = map[string]bool{
	"csv":                          true,
	"tsv":                          true,
	"txt":                          true,
	"xls":                          true,
	"xlsx":                         true,
	"zip":                          true,
	"text/csv":                     true,
	"text/plain":                   true,
	"text/tsv":                     true,
	"text/tab-separated-values":    true,
	"text/comma-separated-values":  true,
	"application/csv":              true,
	"application/ms-excel":         true,
	"application/vnd.ms-excel":     true,
	"application/xls":              true,
	"application/octet-stream":     true,
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// Accepts reports whether a resource should be ingested. A resource with no
// declared MIME type is always attempted; otherwise both the MIME type and
// the lowercased format must be on the list.
func Accepts(mimeType, format string) bool {
	mimeType, _ = parseContentType(mimeType)
	if mimeType == "" {
		return true
	}
	if !DataFormats[mimeType] {
		return false
	}
	return DataFormats[strings.ToLower(strings.TrimSpace(format))]
}
