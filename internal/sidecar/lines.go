package sidecar

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// maxLineSize caps a single output line. The part of a longer line beyond
// the cap is dropped and reading continues with the next line.
const maxLineSize = 1 << 20

// lineReader splits a sidecar stream into lines.
//
// Unlike bufio.Scanner it never gives up on a long line, and it keeps an
// unterminated tail across io.EOF so a file that is still being written can
// be read again once more data arrives.
type lineReader struct {
	r       *bufio.Reader
	partial []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next complete line without its line ending. Invalid
// UTF-8 is replaced. Errors from the underlying reader, including io.EOF,
// are returned as is; any unterminated data stays buffered.
func (lr *lineReader) next() (string, error) {
	for {
		chunk, err := lr.r.ReadSlice('\n')
		lr.append(chunk)
		switch {
		case err == nil:
			return lr.take(), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return "", err
		}
	}
}

// flush returns the buffered unterminated tail, if any. Callers use it once
// the stream is known to be finished.
func (lr *lineReader) flush() (string, bool) {
	if len(lr.partial) == 0 {
		return "", false
	}
	return lr.take(), true
}

func (lr *lineReader) append(chunk []byte) {
	room := maxLineSize - len(lr.partial)
	if room <= 0 || len(chunk) == 0 {
		return
	}
	if len(chunk) > room {
		chunk = chunk[:room]
	}
	lr.partial = append(lr.partial, chunk...)
}

func (lr *lineReader) take() string {
	line := strings.TrimSuffix(string(lr.partial), "\n")
	line = strings.TrimSuffix(line, "\r")
	lr.partial = lr.partial[:0]
	return strings.ToValidUTF8(line, "\uFFFD")
}
