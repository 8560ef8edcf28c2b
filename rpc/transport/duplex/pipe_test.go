package duplex

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes in these tests
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func mustPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestReaderForwardsSideOutputBeforeData(t *testing.T) {
	mainR, mainW := mustPipe(t)
	sideR, sideW := mustPipe(t)

	sink := &syncBuffer{}
	reader := NewReader(mainR, NewSideChannel(sideR), sink)

	if _, err := sideW.Write([]byte("warning: slow disk\n")); err != nil {
		t.Fatalf("write side: %v", err)
	}

	seenBeforeData := make(chan bool, 1)
	go func() {
		// give the reader time to forward before the data arrives
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if strings.Contains(sink.String(), "remote: warning: slow disk\n") {
				seenBeforeData <- true
				mainW.Write([]byte("hello\n"))
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		seenBeforeData <- false
		mainW.Write([]byte("hello\n"))
	}()

	line, err := reader.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "hello\n" {
		t.Errorf("ReadLine = %q, want %q", line, "hello\n")
	}
	if !<-seenBeforeData {
		t.Errorf("side output was not forwarded while waiting for data, sink = %q", sink.String())
	}
}

func TestReaderForwardsSideOutputOnEOF(t *testing.T) {
	mainR, mainW := mustPipe(t)
	sideR, sideW := mustPipe(t)

	sink := &syncBuffer{}
	reader := NewReader(mainR, NewSideChannel(sideR), sink)

	sideW.Write([]byte("abort: repository not found\n"))
	sideW.Close()
	mainW.Close()

	buf := make([]byte, 16)
	n, err := reader.Read(buf)
	if n != 0 || err != io.EOF {
		t.Errorf("Read = %d, %v; want 0, EOF", n, err)
	}
	if got := sink.String(); got != "remote: abort: repository not found\n" {
		t.Errorf("sink = %q", got)
	}

	// the exhausted side channel must not make later reads spin
	if n, err := reader.Read(buf); n != 0 || err != io.EOF {
		t.Errorf("second Read = %d, %v; want 0, EOF", n, err)
	}
}

func TestReaderCloseLeavesSideOpen(t *testing.T) {
	mainR, _ := mustPipe(t)
	sideR, sideW := mustPipe(t)

	side := NewSideChannel(sideR)
	reader := NewReader(mainR, side, io.Discard)
	if err := reader.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	sideW.Write([]byte("late output\n"))
	sideW.Close()

	sink := &syncBuffer{}
	if err := DrainOutput(sink, side); err != nil {
		t.Fatalf("DrainOutput: %v", err)
	}
	if got := sink.String(); got != "remote: late output\n" {
		t.Errorf("sink = %q", got)
	}
}

func TestReaderWithoutDescriptors(t *testing.T) {
	mainR, mainW := io.Pipe()
	sideR, sideW := io.Pipe()

	sink := &syncBuffer{}
	side := NewSideChannel(sideR)
	if side.PollFd() != -1 {
		t.Fatalf("expected a buffered side channel for an io.Pipe")
	}
	reader := NewReader(mainR, side, sink)

	go func() {
		sideW.Write([]byte("one\ntwo\n"))
		sideW.Close()
		mainW.Write([]byte("data\n"))
		mainW.Close()
	}()

	line, err := reader.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "data\n" {
		t.Errorf("ReadLine = %q", line)
	}

	if err := DrainOutput(sink, side); err != nil {
		t.Fatalf("DrainOutput: %v", err)
	}
	if got := sink.String(); got != "remote: one\nremote: two\n" {
		t.Errorf("sink = %q", got)
	}
}

func TestWriterForwardsOnFlush(t *testing.T) {
	mainR, mainW := mustPipe(t)
	sideR, sideW := mustPipe(t)

	sink := &syncBuffer{}
	writer := NewWriter(mainW, NewSideChannel(sideR), sink)

	sideW.Write([]byte("note\n"))
	// wait until the kernel reports the side output
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, err := available(fdOf(sideR)); err != nil || n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := writer.Write([]byte("payload\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := sink.String(); got != "remote: note\n" {
		t.Errorf("sink = %q", got)
	}

	got := make([]byte, len("payload\n"))
	if _, err := io.ReadFull(mainR, got); err != nil {
		t.Fatalf("read main: %v", err)
	}
	if string(got) != "payload\n" {
		t.Errorf("main = %q", got)
	}

	if err := writer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := writer.Write([]byte("x")); err != io.ErrClosedPipe {
		t.Errorf("Write after Close = %v, want ErrClosedPipe", err)
	}
}

func TestForwardOutputSplitsLines(t *testing.T) {
	side := newBufferedSide(io.NopCloser(strings.NewReader("a\r\nb\n\nc")))
	<-side.done

	var sink bytes.Buffer
	if err := ForwardOutput(&sink, side); err != nil {
		t.Fatalf("ForwardOutput: %v", err)
	}
	want := "remote: a\nremote: b\nremote: \nremote: c\n"
	if sink.String() != want {
		t.Errorf("sink = %q, want %q", sink.String(), want)
	}
	if err := ForwardOutput(&sink, side); err != io.EOF {
		t.Errorf("ForwardOutput on exhausted side = %v, want EOF", err)
	}
}

func TestReadLineForwardsSideOutputBetweenPieces(t *testing.T) {
	mainR, mainW := mustPipe(t)
	sideR, sideW := mustPipe(t)

	sink := &syncBuffer{}
	reader := NewReader(mainR, NewSideChannel(sideR), sink)

	seenBeforeRest := make(chan bool, 1)
	go func() {
		mainW.Write([]byte("hel"))
		// let the reader take the partial line before the side output shows up
		time.Sleep(50 * time.Millisecond)
		sideW.Write([]byte("progress\n"))

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if strings.Contains(sink.String(), "remote: progress\n") {
				seenBeforeRest <- true
				mainW.Write([]byte("lo\n"))
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		seenBeforeRest <- false
		mainW.Write([]byte("lo\n"))
	}()

	line, err := reader.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "hello\n" {
		t.Errorf("ReadLine = %q, want %q", line, "hello\n")
	}
	if !<-seenBeforeRest {
		t.Errorf("side output was not forwarded while the line was incomplete, sink = %q", sink.String())
	}
}

func TestReadLineKeepsPartialLineOnEOF(t *testing.T) {
	mainR, mainW := mustPipe(t)
	reader := NewReader(mainR, nil, io.Discard)

	mainW.Write([]byte("one\ntwo"))
	mainW.Close()

	line, err := reader.ReadLine()
	if err != nil || string(line) != "one\n" {
		t.Fatalf("ReadLine = %q, %v", line, err)
	}
	line, err = reader.ReadLine()
	if err != io.EOF || string(line) != "two" {
		t.Errorf("ReadLine = %q, %v; want %q, EOF", line, err, "two")
	}
}

func TestWriterDrainsSideOutputWhileDataChannelIsFull(t *testing.T) {
	mainR, mainW := mustPipe(t)
	sideR, sideW := mustPipe(t)

	sink := &syncBuffer{}
	side := NewSideChannel(sideR)
	writer := NewWriter(mainW, side, sink)

	const lines = 2600
	sideLine := strings.Repeat("x", 99) + "\n"
	payload := bytes.Repeat([]byte("d"), 256*1024)

	// the remote fills its stderr pipe before it reads any input
	remoteDone := make(chan error, 1)
	go func() {
		for i := 0; i < lines; i++ {
			if _, err := sideW.Write([]byte(sideLine)); err != nil {
				remoteDone <- err
				return
			}
		}
		got := make([]byte, len(payload))
		_, err := io.ReadFull(mainR, got)
		if err == nil && !bytes.Equal(got, payload) {
			err = io.ErrShortBuffer
		}
		remoteDone <- err
	}()

	clientDone := make(chan error, 1)
	go func() {
		if _, err := writer.Write(payload); err != nil {
			clientDone <- err
			return
		}
		clientDone <- writer.Flush()
	}()

	timeout := time.After(10 * time.Second)
	for _, done := range []chan error{clientDone, remoteDone} {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("transfer failed: %v", err)
			}
		case <-timeout:
			t.Fatalf("writer blocked on the data channel, sink holds %d bytes", len(sink.String()))
		}
	}

	sideW.Close()
	if err := DrainOutput(sink, side); err != nil {
		t.Fatalf("DrainOutput: %v", err)
	}
	if got, want := strings.Count(sink.String(), "x"), lines*99; got != want {
		t.Errorf("forwarded %d bytes of side output, want %d", got, want)
	}
}

func TestFileSideStopsOnQueryFailure(t *testing.T) {
	side := &fileSide{src: io.NopCloser(strings.NewReader("")), fd: -1}

	if _, err := side.ReadAvailable(); err == nil {
		t.Fatalf("ReadAvailable on a bad descriptor succeeded")
	}
	if side.PollFd() != -1 {
		t.Errorf("PollFd = %d after a failed query, want -1", side.PollFd())
	}
	if _, err := side.ReadAvailable(); err != io.EOF {
		t.Errorf("second ReadAvailable = %v, want EOF", err)
	}
}
