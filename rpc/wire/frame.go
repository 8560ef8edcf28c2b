package wire

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("wire")

// Reader is the read side of a data channel. ReadLine returns everything up
// to and including the next newline; at end of stream it returns whatever
// was read together with io.EOF.
type Reader interface {
	io.Reader
	ReadLine() ([]byte, error)
}

// bufferedReader adapts a plain io.Reader to the Reader interface
type bufferedReader struct {
	*bufio.Reader
}

// NewReader wraps r so it can be used for framed reads. If r already
// implements Reader it is returned unchanged.
func NewReader(r io.Reader) Reader {
	if lr, ok := r.(Reader); ok {
		return lr
	}
	return &bufferedReader{Reader: bufio.NewReader(r)}
}

func (b *bufferedReader) ReadLine() ([]byte, error) {
	return b.Reader.ReadBytes('\n')
}

// --------------------------------------------------------------------------
// Frames
// --------------------------------------------------------------------------

// WriteFrame writes a frame with the format:
// - decimal length of data, terminated by '\n'
// - N bytes: data payload
//
// The frame is not flushed. Callers must flush before blocking on a read of
// another handle.
func WriteFrame(w io.Writer, data []byte) error {
	header := strconv.AppendInt(nil, int64(len(data)), 10)
	header = append(header, '\n')
	if _, err := w.Write(header); err != nil {
		return errdefs.Wrap(errdefs.CodeRemote, "write frame", err, "failed to write frame header")
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := w.Write(data); err != nil {
		return errdefs.Wrap(errdefs.CodeRemote, "write frame", err, "failed to write %d bytes", len(data))
	}
	return nil
}

// ReadFrame reads a length line followed by exactly that many bytes.
// An empty or zero length line yields an empty frame.
func ReadFrame(r Reader) ([]byte, error) {
	line, err := r.ReadLine()
	if err != nil && (err != io.EOF || len(line) == 0) {
		return nil, errdefs.Wrap(errdefs.CodeRemote, "read frame", err, "failed to read frame length")
	}

	size, err := ParseAmount(line)
	if err != nil {
		return nil, err
	}
	return ReadExactly(r, size)
}

// ReadLine reads up to and including the next newline.
func ReadLine(r Reader) ([]byte, error) {
	line, err := r.ReadLine()
	if err != nil && err != io.EOF {
		return line, errdefs.Wrap(errdefs.CodeRemote, "read line", err, "failed to read line")
	}
	return line, err
}

// ReadExactly reads exactly size bytes from r. A zero size returns an empty
// slice without touching the reader.
func ReadExactly(r io.Reader, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return buf[:n], errdefs.Wrap(errdefs.CodeRemote, "read frame", err, "expected %d bytes, got %d", size, n)
	}
	return buf, nil
}

// ParseAmount parses a decimal length line. Surrounding whitespace and the
// trailing newline are ignored; an empty line means zero.
func ParseAmount(line []byte) (int, error) {
	text := bytes.TrimSpace(line)
	if len(text) == 0 {
		return 0, nil
	}
	size, err := strconv.Atoi(string(text))
	if err != nil || size < 0 {
		return 0, errdefs.New(errdefs.CodeProtocol, "read frame", "unexpected length line: %q", line)
	}
	return size, nil
}
