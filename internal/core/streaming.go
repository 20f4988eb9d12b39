package core

// streaming.go provides the byte-level readers that sit between a source
// and the table decoders. None of them buffers the whole input:
//
//   - SizeLimitReader: fails with ErrContentTooLarge past a byte ceiling
//   - NewTextReader: charset decoding, BOM removal and UTF-8 repair for delimited text
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?'

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SizeLimitReader counts bytes and fails once more than Max have been read.
// Max <= 0 disables the limit.
type SizeLimitReader struct {
	r         io.Reader
	Max       int64
	BytesRead int64
}

// NewSizeLimitReader wraps r with a ceiling of max bytes.
func NewSizeLimitReader(r io.Reader, max int64) *SizeLimitReader {
	return &SizeLimitReader{r: r, Max: max}
}

func (l *SizeLimitReader) Read(p []byte) (int, error) {
	if l.Max > 0 && l.BytesRead > l.Max {
		return 0, ErrContentTooLarge
	}
	n, err := l.r.Read(p)
	l.BytesRead += int64(n)
	if l.Max > 0 && l.BytesRead > l.Max {
		return n, fmt.Errorf("%w: more than %d bytes", ErrContentTooLarge, l.Max)
	}
	return n, err
}

// NewTextReader prepares r for a delimited-text decoder. A non-UTF-8
// charset is transcoded first; the UTF-8 BOM is dropped and invalid
// sequences are repaired.
func NewTextReader(r io.Reader, charset string) (io.Reader, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "utf8" && charset != "us-ascii" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		r = enc.NewDecoder().Reader(r)
	}
	return NewUTF8Sanitizer(skipBOM(r)), nil
}

// skipBOM drops a leading UTF-8 byte order mark, as written by Excel on Windows.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' on the fly.
// A multi-byte sequence split across reads is carried to the next call.
type UTF8Sanitizer struct {
	r       io.Reader
	pending []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	if isASCII(p[:n]) {
		return n, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to emit.
// Unless atEOF, an incomplete trailing sequence is held back in pending.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if utf8.Valid(data) {
		if !atEOF {
			if tail := incompleteTail(data); tail > 0 {
				s.pending = append(s.pending, data[len(data)-tail:]...)
				return len(data) - tail
			}
		}
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if !atEOF && r == utf8.RuneError && size == 1 && !utf8.FullRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		if r == utf8.RuneError && size == 1 {
			// '?' keeps the output no longer than the input.
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

// incompleteTail returns how many trailing bytes start an unfinished rune.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < expectedRuneLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// expectedRuneLen returns the encoded length announced by a leading byte,
// or 0 for a continuation byte.
func expectedRuneLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}
