// Package line splits a byte stream into newline-terminated UTF-8 lines.
package line

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// DefaultMaxLength - default limit of a single line in bytes, newline included.
const DefaultMaxLength = 64 * 1024

// minBufferSize - bufio never allocates less.
const minBufferSize = 16

var (
	// ErrTooLong - returns when line exceeds the limit before a newline was met.
	ErrTooLong = errors.New("line.Reader: line too long")
	// ErrInvalidUTF8 - returns for lines which are not well-formed UTF-8 text.
	ErrInvalidUTF8 = errors.New("line.Reader: invalid UTF-8")
)

// Reader - reads lines delimited with '\n' from underlying reader.
type Reader struct {
	buf *bufio.Reader
	max int
}

// NewReader - builds line reader with given limit of line length.
// Non-positive max means DefaultMaxLength.
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = DefaultMaxLength
	}
	size := max
	if size < minBufferSize {
		size = minBufferSize
	}
	return &Reader{buf: bufio.NewReaderSize(r, size), max: max}
}

// ReadLine - returns next line including its trailing newline.
//
// Bytes left without newline at the end of stream are returned as the last line
// with the newline appended, then io.EOF follows. Other read errors drop the
// incomplete line.
func (r *Reader) ReadLine() (string, error) {
	data, err := r.buf.ReadSlice('\n')
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrTooLong
	case errors.Is(err, io.EOF) && len(data) > 0:
		data = append(data[:len(data):len(data)], '\n')
	default:
		return "", err
	}
	if len(data) > r.max {
		return "", ErrTooLong
	}
	if i := invalidIndex(data); i >= 0 {
		return "", fmt.Errorf("%w at byte %d", ErrInvalidUTF8, i)
	}
	return string(data), nil
}

// invalidIndex - returns index of the first byte which does not start a valid rune, or -1.
func invalidIndex(p []byte) int {
	for i := 0; i < len(p); {
		r, size := utf8.DecodeRune(p[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}
