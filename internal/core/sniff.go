package core

import (
	"bufio"
	"bytes"
	"mime"
	"path"
	"strings"
)

// Format names used by the decoder and in DecodeError.
const (
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatXLSX  = "xlsx"
	FormatXLS   = "xls"
	FormatZip   = "zip"
	FormatGzip  = "gzip"
	FormatBzip2 = "bzip2"
	FormatXZ    = "xz"
	FormatZstd  = "zstd"
)

var magicNumbers = []struct {
	format string
	magic  []byte
}{
	{FormatZip, []byte("PK\x03\x04")},
	{FormatGzip, []byte{0x1f, 0x8b}},
	{FormatBzip2, []byte("BZh")},
	{FormatXZ, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{FormatZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{FormatXLS, []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}},
}

// sniffMagic identifies container and compression formats from their
// leading bytes. Plain text returns "".
func sniffMagic(data []byte) string {
	for _, m := range magicNumbers {
		if bytes.HasPrefix(data, m.magic) {
			return m.format
		}
	}
	return ""
}

var mimeFormats = map[string]string{
	"text/csv":                      FormatCSV,
	"text/comma-separated-values":   FormatCSV,
	"application/csv":               FormatCSV,
	"text/plain":                    FormatCSV,
	"text/tsv":                      FormatTSV,
	"text/tab-separated-values":     FormatTSV,
	"application/vnd.ms-excel":      FormatXLS,
	"application/ms-excel":          FormatXLS,
	"application/xls":               FormatXLS,
	"application/zip":               FormatZip,
	"application/x-zip-compressed":  FormatZip,
	"application/gzip":              FormatGzip,
	"application/x-gzip":            FormatGzip,
	"application/x-bzip2":           FormatBzip2,
	"application/x-xz":              FormatXZ,
	"application/zstd":              FormatZstd,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatXLSX,
}

var extFormats = map[string]string{
	"csv":  FormatCSV,
	"txt":  FormatCSV,
	"tsv":  FormatTSV,
	"tab":  FormatTSV,
	"xlsx": FormatXLSX,
	"xls":  FormatXLS,
	"zip":  FormatZip,
	"gz":   FormatGzip,
	"gzip": FormatGzip,
	"bz2":  FormatBzip2,
	"xz":   FormatXZ,
	"zst":  FormatZstd,
}

// parseContentType splits a Content-Type header into the bare media type
// and its charset parameter. Unparseable values fall back to the text
// before the first ';'.
func parseContentType(contentType string) (mediaType, charset string) {
	if contentType == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(mt)), ""
	}
	return mt, params["charset"]
}

// formatFromName maps a declared format string or a file name to a format.
func formatFromName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if f, ok := extFormats[name]; ok {
		return f
	}
	return extFormats[strings.TrimPrefix(path.Ext(name), ".")]
}

// innerName strips one compression extension from a file name.
func innerName(name string) string {
	ext := path.Ext(name)
	switch strings.ToLower(ext) {
	case ".gz", ".gzip", ".bz2", ".xz", ".zst":
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// delimiterCandidates are tried in order; ties go to the earlier one.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// sniffDelimiter picks the delimiter that appears the same non-zero number
// of times on the most of the first lines, ignoring quoted sections.
func sniffDelimiter(data []byte) rune {
	const maxLines = 20

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() && len(lines) < maxLines {
		if line := sc.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ','
	}

	best, bestScore := ',', 0
	for _, d := range delimiterCandidates {
		counts := make(map[int]int)
		for _, line := range lines {
			if n := countUnquoted(line, d); n > 0 {
				counts[n]++
			}
		}
		score := 0
		for _, c := range counts {
			score = max(score, c)
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func countUnquoted(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

// looksBinary reports whether the head of data contains NUL bytes, which
// no supported text format carries.
func looksBinary(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	return bytes.IndexByte(head, 0) >= 0
}
