package client

import (
	"github.com/ValentinKolb/wirepeer/lib/errdefs"
)

// Future is the result of a call submitted to an Executor. It is resolved
// exactly once, with a value or with an error, when the executor sends its
// calls.
type Future[R any] struct {
	command string
	value   R
	err     error
	done    bool
}

// Done reports whether the future has been resolved.
func (f *Future[R]) Done() bool {
	return f.done
}

// Result returns the value or the error of the call. Reading a future
// before its executor sent the call is a programming error.
func (f *Future[R]) Result() (R, error) {
	if !f.done {
		var zero R
		return zero, errdefs.New(errdefs.CodeProgramming, f.command, "result read before the call was sent")
	}
	return f.value, f.err
}

func (f *Future[R]) resolve(value R, err error) {
	if f.done {
		return
	}
	f.value, f.err, f.done = value, err, true
}
