package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/wirepeer/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
)

// batch runs every call of a batch request and answers with one frame. A
// failing call only fails its own entry of the reply.
func (sess *session) batch(ctx context.Context, args wire.Args) error {
	calls, err := wire.DecodeBatch(string(args["cmds"]))
	if err != nil {
		return sess.outOfBand("batch", err)
	}

	results := make([]wire.BatchResult, len(calls))
	for i, call := range calls {
		value, err := sess.batchCall(ctx, call)
		if err != nil {
			Logger.Debugf("batched %s failed: %v", call.Command, err)
			msg := userMessage(err)
			if msg == "" {
				msg = wire.DefaultBatchError
			}
			results[i] = wire.BatchResult{Err: msg}
			continue
		}
		results[i] = wire.BatchResult{Value: value}
	}
	return wire.WriteFrame(sess.out, wire.EncodeBatchReply(results))
}

func (sess *session) batchCall(ctx context.Context, call wire.BatchCall) ([]byte, error) {
	s := sess.server
	cmd, ok := s.commands.Lookup(call.Command)
	if !ok {
		return nil, fmt.Errorf("unknown command %s", call.Command)
	}
	if !cmd.Batchable {
		return nil, fmt.Errorf("command %s cannot be batched", call.Command)
	}
	adapter, ok := s.adapters.Load(call.Command)
	if !ok {
		return nil, fmt.Errorf("unknown command %s", call.Command)
	}

	args := make(wire.Args, len(call.Args))
	for _, arg := range call.Args {
		args[arg.Name] = arg.Value
	}
	if _, _, err := cmd.Bind(args); err != nil {
		return nil, err
	}

	s.count("batch:" + call.Command)
	metrics.GetOrCreateCounter(fmt.Sprintf(`wirepeer_server_batched_calls_total{command=%q}`, call.Command)).Inc()
	return adapter.Handle(ctx, &Request{Command: call.Command, Args: args}, s.repo)
}
