package client

import (
	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
)

// Method describes a remote command in two phases: Encode turns the typed
// argument into wire arguments when the call is submitted, Decode turns the
// raw response into the typed result once it arrived.
type Method[A, R any] struct {
	Command string
	Encode  func(arg A) (wire.Args, error)
	Decode  func(raw []byte) (R, error)
}

// pendingCall is a submitted call waiting to be sent
type pendingCall struct {
	command wire.Command
	args    wire.Args
	// resolve receives the raw response or the error of the call
	resolve func(raw []byte, err error)
}

// Executor collects calls and sends them with as few round trips as
// possible. Consecutive batchable calls go out as a single batch request,
// all other calls are sent on their own. Results are handed out in
// submission order regardless of the grouping.
//
// Usage:
//
//	err := client.WithExecutor(peer, func(e *client.Executor) error {
//		main = client.Submit(e, client.LookupMethod, "main")
//		keys = client.Submit(e, client.ListKeysMethod, "bookmarks")
//		return nil
//	})
//	id, err := main.Result()
type Executor struct {
	peer    *Peer
	pending []*pendingCall
	closed  bool
}

// Executor opens a new executor on the peer.
func (p *Peer) Executor() *Executor {
	return &Executor{peer: p}
}

// WithExecutor runs fn with a new executor and sends the submitted calls
// when fn returns. An error of fn takes precedence over a send error.
func WithExecutor(p *Peer, fn func(e *Executor) error) error {
	e := p.Executor()
	err := fn(e)
	if cerr := e.Close(); err == nil {
		err = cerr
	}
	return err
}

// Submit queues a call of m with arg and returns its future.
func Submit[A, R any](e *Executor, m Method[A, R], arg A) *Future[R] {
	f := &Future[R]{command: m.Command}
	var zero R

	if e.closed {
		f.resolve(zero, errdefs.New(errdefs.CodeProgramming, m.Command, "executor is closed"))
		return f
	}
	cmd, ok := e.peer.commands.Lookup(m.Command)
	if !ok {
		f.resolve(zero, errdefs.New(errdefs.CodeProgramming, m.Command, "unknown command"))
		return f
	}
	args, err := m.Encode(arg)
	if err != nil {
		f.resolve(zero, err)
		return f
	}

	e.pending = append(e.pending, &pendingCall{
		command: cmd,
		args:    args,
		resolve: func(raw []byte, err error) {
			if err != nil {
				f.resolve(zero, err)
				return
			}
			value, err := m.Decode(raw)
			f.resolve(value, err)
		},
	})
	return f
}

// CallCommand queues a call with raw arguments and a raw result.
func (e *Executor) CallCommand(command string, args wire.Args) *Future[[]byte] {
	return Submit(e, RawMethod(command), args)
}

// RawMethod passes arguments and result of command through unchanged.
func RawMethod(command string) Method[wire.Args, []byte] {
	return Method[wire.Args, []byte]{
		Command: command,
		Encode:  func(args wire.Args) (wire.Args, error) { return args, nil },
		Decode:  func(raw []byte) ([]byte, error) { return raw, nil },
	}
}

// SendCommands sends every queued call and resolves their futures. A
// transport failure fails all futures not resolved yet and is returned;
// a failure of a single call only fails its own future.
func (e *Executor) SendCommands() error {
	calls := e.pending
	e.pending = nil
	if len(calls) == 0 {
		return nil
	}

	p := e.peer
	batching := p.caps.Has(common.CapBatch) && len(calls) > 1

	for i := 0; i < len(calls); {
		if !batching || !calls[i].command.Batchable {
			raw, err := p.Call(calls[i].command.Name, calls[i].args)
			if err != nil {
				failAll(calls[i:], err)
				return err
			}
			calls[i].resolve(raw, nil)
			i++
			continue
		}

		j := i
		for j < len(calls) && calls[j].command.Batchable {
			j++
		}
		if err := e.sendBatch(calls[i:j]); err != nil {
			failAll(calls[i:], err)
			return err
		}
		i = j
	}
	return nil
}

// Close sends the remaining calls and closes the executor.
func (e *Executor) Close() error {
	if e.closed {
		return nil
	}
	err := e.SendCommands()
	e.closed = true
	return err
}

// sendBatch sends calls as one batch request
func (e *Executor) sendBatch(calls []*pendingCall) error {
	batch := make([]wire.BatchCall, len(calls))
	for i, call := range calls {
		ordered, _, err := call.command.Bind(call.args)
		if err != nil {
			return err
		}
		batch[i] = wire.BatchCall{Command: call.command.Name, Args: ordered}
	}

	// a reply shorter than its length line closes the peer
	data, err := e.peer.Call("batch", wire.Args{"cmds": []byte(wire.EncodeBatch(batch))})
	if err != nil {
		return err
	}
	results, err := wire.DecodeBatchReply(data, len(calls))
	if err != nil {
		return err
	}
	metrics.GetOrCreateCounter(`wirepeer_batched_calls_total`).Add(len(calls))

	for i, result := range results {
		if result.Err != "" {
			calls[i].resolve(nil, errdefs.New(errdefs.CodeCommand, calls[i].command.Name, "%s", result.Err))
			continue
		}
		calls[i].resolve(result.Value, nil)
	}
	return nil
}

func failAll(calls []*pendingCall, err error) {
	for _, call := range calls {
		call.resolve(nil, err)
	}
}
