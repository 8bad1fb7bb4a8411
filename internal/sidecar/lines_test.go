package sidecar

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readAll returns every line lr yields, the flushed tail included, and the
// error that ended the stream.
func readAll(lr *lineReader) ([]string, error) {
	var lines []string
	for {
		line, err := lr.next()
		if err != nil {
			if tail, ok := lr.flush(); ok {
				lines = append(lines, tail)
			}
			return lines, err
		}
		lines = append(lines, line)
	}
}

// TestLineReader_LineEndings verifies LF and CRLF are both stripped and an
// unterminated tail is returned by flush.
func TestLineReader_LineEndings(t *testing.T) {
	lines, err := readAll(newLineReader(strings.NewReader("one\r\ntwo\n\nthree")))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"one", "two", "", "three"}, lines)
}

// TestLineReader_OverlongLine verifies a line beyond maxLineSize is cut at
// the cap and the following line is read normally.
func TestLineReader_OverlongLine(t *testing.T) {
	long := strings.Repeat("a", maxLineSize+4096)
	lines, err := readAll(newLineReader(strings.NewReader(long + "\nPORT=5173\n")))
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, lines, 2)
	assert.Equal(t, long[:maxLineSize], lines[0])
	assert.Equal(t, "PORT=5173", lines[1])
}

// TestLineReader_ResumesAfterEOF verifies a partial line survives io.EOF
// and is completed by data that arrives later, as when following a file.
func TestLineReader_ResumesAfterEOF(t *testing.T) {
	src := &growingReader{}
	lr := newLineReader(src)

	src.data = "POR"
	_, err := lr.next()
	assert.ErrorIs(t, err, io.EOF)

	src.data = "T=5173\n"
	line, err := lr.next()
	require.NoError(t, err)
	assert.Equal(t, "PORT=5173", line)

	_, ok := lr.flush()
	assert.False(t, ok)
}

// TestLineReader_ReadError verifies failures other than end of stream are
// passed through.
func TestLineReader_ReadError(t *testing.T) {
	boom := errors.New("boom")
	lines, err := readAll(newLineReader(io.MultiReader(strings.NewReader("a\nb"), errReader{boom})))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, lines)
}

// growingReader hands out whatever data was set since the last read and
// reports io.EOF when there is none.
type growingReader struct {
	data string
}

func (g *growingReader) Read(p []byte) (int, error) {
	if g.data == "" {
		return 0, io.EOF
	}
	n := copy(p, g.data)
	g.data = g.data[n:]
	return n, nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
