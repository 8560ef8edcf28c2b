package duplex

import (
	"bufio"
	"bytes"
	"io"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// --------------------------------------------------------------------------
// Reader
// --------------------------------------------------------------------------

// Reader is the read half of a data channel paired with a side channel.
// Before every read it waits until either stream is readable and forwards
// pending side output first, so diagnostics of the remote reach the user even
// while the data channel is silent.
type Reader struct {
	main     *bufio.Reader
	src      io.Closer
	mainFd   int
	side     SideChannel
	sink     io.Writer
	sideDone bool
	closed   bool
}

// NewReader pairs main with side. Side output is written to sink prefixed
// with "remote: ". side may be nil.
func NewReader(main io.ReadCloser, side SideChannel, sink io.Writer) *Reader {
	return &Reader{
		main:   bufio.NewReader(main),
		src:    main,
		mainFd: fdOf(main),
		side:   side,
		sink:   sink,
	}
}

// Read reads from the data channel. A read that returns no data although
// data was requested forwards side output once more, since the remote usually
// explains why it stopped.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed || len(p) == 0 {
		r.forward()
		return 0, nil
	}
	r.wait()
	n, err := r.main.Read(p)
	if n == 0 {
		r.forward()
	}
	return n, err
}

// ReadLine reads up to and including the next newline. The data channel is
// only read from when poll reports it readable, so a line arriving in
// pieces does not stall side output.
func (r *Reader) ReadLine() ([]byte, error) {
	if r.closed {
		r.forward()
		return nil, io.EOF
	}
	var line []byte
	for {
		if n := r.main.Buffered(); n > 0 {
			buf, _ := r.main.Peek(n)
			if i := bytes.IndexByte(buf, '\n'); i >= 0 {
				line = append(line, buf[:i+1]...)
				r.main.Discard(i + 1)
				return line, nil
			}
			line = append(line, buf...)
			r.main.Discard(n)
		}

		// nothing buffered: wait polls both streams, then a single read
		// fills the buffer without blocking
		r.wait()
		if _, err := r.main.Peek(1); err != nil {
			if len(line) == 0 {
				r.forward()
			}
			return line, err
		}
	}
}

// Buffered returns the number of data bytes that can be read without
// touching the underlying stream.
func (r *Reader) Buffered() int {
	return r.main.Buffered()
}

// Close closes the data channel only. The side channel stays open so its
// remaining output can still be drained.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.Close()
}

// wait blocks until the data channel is readable, forwarding side output
// whenever the side channel becomes readable in between
func (r *Reader) wait() {
	for {
		mainReady, sideReady := r.ready()
		if sideReady {
			r.forward()
		}
		if mainReady {
			return
		}
	}
}

// ready reports which of the two streams can be read. Buffered data counts
// as readable on both so pending side output is still forwarded. Without a
// pollable descriptor on either side both are assumed to be ready.
func (r *Reader) ready() (mainReady, sideReady bool) {
	if r.main.Buffered() > 0 {
		return true, !r.sideDone
	}
	if r.sideDone || r.side == nil {
		return true, false
	}

	sideFd := r.side.PollFd()
	if r.mainFd < 0 || sideFd < 0 {
		return true, true
	}

	ready, err := poll([]int{r.mainFd, sideFd})
	if err != nil {
		Logger.Debugf("poll failed, assuming both streams are ready: %v", err)
		return true, true
	}
	return ready[0], ready[1]
}

// forward writes pending side output to the sink
func (r *Reader) forward() {
	if r.sideDone || r.side == nil {
		return
	}
	if err := ForwardOutput(r.sink, r.side); err != nil {
		if err != io.EOF {
			Logger.Debugf("side channel failed: %v", err)
		}
		r.sideDone = true
	}
}

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// Writer is the write half of a data channel paired with a side channel.
// Before data is handed to the remote, Writer waits until the data channel
// accepts it and forwards side output in the meantime, so a remote blocked
// on a full stderr pipe is never waited for.
type Writer struct {
	main     *bufio.Writer
	dst      io.WriteCloser
	mainFd   int
	side     SideChannel
	sink     io.Writer
	sideDone bool
	closed   bool
}

// pipeChunk is the amount of data a pipe reported writable takes without
// blocking
const pipeChunk = 4096

// NewWriter pairs main with side. side may be nil.
func NewWriter(main io.WriteCloser, side SideChannel, sink io.Writer) *Writer {
	w := &Writer{
		dst:    main,
		mainFd: fdOf(main),
		side:   side,
		sink:   sink,
	}
	w.main = bufio.NewWriter(writerFunc(w.writeMain))
	return w
}

// Write buffers p. Nothing reaches the remote before Flush, unless the
// buffer fills up.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	w.forward()
	return w.main.Write(p)
}

// Flush hands all buffered data to the remote.
func (w *Writer) Flush() error {
	if w.closed {
		return io.ErrClosedPipe
	}
	w.forward()
	return w.main.Flush()
}

// Close flushes and closes the data channel only.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.main.Flush()
	if err := w.dst.Close(); err != nil {
		return err
	}
	return flushErr
}

// writeMain writes p to the data channel. With a pollable descriptor every
// write waits for the channel to become writable and is at most pipeChunk
// bytes long.
func (w *Writer) writeMain(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		chunk := p[written:]
		if w.waitWritable() && len(chunk) > pipeChunk {
			chunk = chunk[:pipeChunk]
		}
		n, err := w.dst.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// waitWritable blocks until the data channel is writable, forwarding side
// output while it waits. It returns false if the data channel cannot be
// polled.
func (w *Writer) waitWritable() bool {
	if w.mainFd < 0 {
		return false
	}
	for {
		sideFd := -1
		if !w.sideDone && w.side != nil {
			sideFd = w.side.PollFd()
		}
		writable, sideReady, err := pollWrite(w.mainFd, sideFd)
		if err != nil {
			Logger.Debugf("poll failed, assuming the data channel is writable: %v", err)
			return false
		}
		if sideReady {
			w.forward()
		}
		if writable {
			return true
		}
	}
}

func (w *Writer) forward() {
	if w.sideDone || w.side == nil {
		return
	}
	if err := ForwardOutput(w.sink, w.side); err != nil {
		if err != io.EOF {
			Logger.Debugf("side channel failed: %v", err)
		}
		w.sideDone = true
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}
