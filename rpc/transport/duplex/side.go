package duplex

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"syscall"
)

// SideChannel is the diagnostic stream of a remote process (its stderr).
// It is drained opportunistically and must never block the data channel.
type SideChannel interface {
	// ReadAvailable returns the bytes that can be read right now without
	// blocking, possibly none. It returns io.EOF once the stream is exhausted.
	ReadAvailable() ([]byte, error)
	// ReadRemaining blocks until the stream ends and returns everything that
	// was not read yet. Used at teardown only.
	ReadRemaining() ([]byte, error)
	// PollFd returns the descriptor to poll for readability, or -1 if the
	// stream has none.
	PollFd() int
	// Close closes the underlying stream.
	Close() error
}

// NewSideChannel wraps a diagnostic stream. Streams backed by a file
// descriptor are drained as far as the kernel reports buffered bytes where
// the platform supports it; all others are pumped into a buffer by a
// background goroutine.
func NewSideChannel(r io.ReadCloser) SideChannel {
	if fd := fdOf(r); fd >= 0 && pollSupported {
		return &fileSide{src: r, fd: fd}
	}
	return newBufferedSide(r)
}

// ForwardOutput writes every line currently available on side to sink,
// prefixed with "remote: ". It never blocks. The returned error is io.EOF once
// the side channel is exhausted.
func ForwardOutput(sink io.Writer, side SideChannel) error {
	if side == nil {
		return nil
	}
	data, err := side.ReadAvailable()
	writeRemote(sink, data)
	return err
}

// DrainOutput forwards everything left on side until it ends. It blocks and
// is meant for connection teardown.
func DrainOutput(sink io.Writer, side SideChannel) error {
	if side == nil {
		return nil
	}
	data, err := side.ReadRemaining()
	writeRemote(sink, data)
	return err
}

// writeRemote writes data line by line with the remote prefix
func writeRemote(sink io.Writer, data []byte) {
	if len(data) == 0 || sink == nil {
		return
	}
	data = bytes.TrimSuffix(data, []byte("\n"))
	for _, line := range bytes.Split(data, []byte("\n")) {
		fmt.Fprintf(sink, "remote: %s\n", bytes.TrimSuffix(line, []byte("\r")))
	}
}

// fdOf returns the file descriptor behind v without changing its blocking
// mode, or -1
func fdOf(v interface{}) int {
	sc, ok := v.(syscall.Conn)
	if !ok {
		return -1
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	if err := rc.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1
	}
	return fd
}

// --------------------------------------------------------------------------
// Descriptor backed side channel
// --------------------------------------------------------------------------

// fileSide reads only as many bytes as the kernel reports buffered, so a
// read never blocks
type fileSide struct {
	src  io.ReadCloser
	fd   int
	done bool
}

func (s *fileSide) ReadAvailable() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	n, err := available(s.fd)
	if err != nil {
		s.done = true
		return nil, fmt.Errorf("query side channel: %w", err)
	}
	if n == 0 {
		// readable with nothing buffered means the writer hung up, unless
		// data arrived in between
		if !readable(s.fd) {
			return nil, nil
		}
		if n, err = available(s.fd); err != nil || n == 0 {
			s.done = true
			return nil, io.EOF
		}
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(s.src, buf)
	if err != nil {
		s.done = true
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return buf[:read], err
	}
	return buf, nil
}

func (s *fileSide) ReadRemaining() ([]byte, error) {
	if s.done {
		return nil, nil
	}
	s.done = true
	return io.ReadAll(s.src)
}

func (s *fileSide) PollFd() int {
	if s.done {
		return -1
	}
	return s.fd
}

func (s *fileSide) Close() error {
	return s.src.Close()
}

// --------------------------------------------------------------------------
// Buffered side channel
// --------------------------------------------------------------------------

// bufferedSide pumps a stream without a descriptor (e.g. an SSH channel)
// into memory so it can be drained without blocking
type bufferedSide struct {
	src  io.ReadCloser
	mu   sync.Mutex
	buf  bytes.Buffer
	err  error
	done chan struct{}
}

func newBufferedSide(r io.ReadCloser) *bufferedSide {
	s := &bufferedSide{src: r, done: make(chan struct{})}
	go s.pump()
	return s
}

// pump copies the source into the buffer until it ends
func (s *bufferedSide) pump() {
	defer close(s.done)
	chunk := make([]byte, 4096)
	for {
		n, err := s.src.Read(chunk)
		s.mu.Lock()
		s.buf.Write(chunk[:n])
		if err != nil {
			s.err = err
		}
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *bufferedSide) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() > 0 {
		data := bytes.Clone(s.buf.Bytes())
		s.buf.Reset()
		return data, nil
	}
	if s.err != nil {
		return nil, io.EOF
	}
	return nil, nil
}

func (s *bufferedSide) ReadRemaining() ([]byte, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	data := bytes.Clone(s.buf.Bytes())
	s.buf.Reset()
	if s.err != nil && s.err != io.EOF {
		return data, s.err
	}
	return data, nil
}

func (s *bufferedSide) PollFd() int {
	return -1
}

func (s *bufferedSide) Close() error {
	return s.src.Close()
}
