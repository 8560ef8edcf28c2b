package server

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ValentinKolb/wirepeer/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
)

// unbundle receives a pushed bundle. The client's view of the heads must
// match the repository unless it sends "force".
//
// The exchange is: an empty frame inviting the payload, the payload as
// frames ending with an empty one, then either one frame with an error or
// an empty frame followed by the result.
func (sess *session) unbundle(ctx context.Context, args wire.Args) error {
	if err := wire.WriteFrame(sess.out, nil); err != nil {
		return err
	}
	if err := sess.out.Flush(); err != nil {
		return err
	}

	payload := &frameReader{r: sess.in}
	fail := func(msg string) error {
		if _, err := io.Copy(io.Discard, payload); err != nil {
			return err
		}
		Logger.Infof("unbundle rejected: %s", msg)
		return wire.WriteFrame(sess.out, []byte(msg))
	}

	r := sess.server.repo
	ctx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	release, err := r.Lock(ctx)
	if err != nil {
		return fail(userMessage(err))
	}
	defer release()

	if their := strings.Fields(string(args["heads"])); !(len(their) == 1 && their[0] == "force") {
		heads, err := r.Heads()
		if err != nil {
			return fail(userMessage(err))
		}
		sort.Strings(their)
		if !reflect.DeepEqual(their, heads) {
			return fail("repository changed while pushing - please try again")
		}
	}

	name, err := r.AddBundle(payload)
	if payload.err != nil {
		// the stream is out of sync, nothing more can be read
		return payload.err
	}
	if err != nil {
		return fail(userMessage(err))
	}

	metrics.GetOrCreateCounter(`wirepeer_server_push_bytes_total`).Add(payload.size)
	fmt.Fprintf(sess.errOut, "added bundle %s (%d bytes)\n", name, payload.size)

	if err := wire.WriteFrame(sess.out, nil); err != nil {
		return err
	}
	return wire.WriteFrame(sess.out, []byte("1"))
}

// frameReader reads a payload sent as frames ending with an empty frame
type frameReader struct {
	r    wire.Reader
	buf  []byte
	done bool
	size int
	err  error
}

func (f *frameReader) Read(p []byte) (int, error) {
	for len(f.buf) == 0 {
		if f.done {
			return 0, io.EOF
		}
		if f.err != nil {
			return 0, f.err
		}
		frame, err := wire.ReadFrame(f.r)
		if err != nil {
			f.err = err
			return 0, err
		}
		if len(frame) == 0 {
			f.done = true
			return 0, io.EOF
		}
		f.buf = frame
		f.size += len(frame)
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}
