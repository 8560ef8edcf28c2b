// Package client implements the peer side of the wire protocol.
//
// A connection starts with a connector (see rpc/transport) that spawns the
// remote server and hands over its stdin, stdout and stderr. MakePeer runs
// the handshake on those streams and returns a Peer; Dial does both and
// then announces the client capabilities.
//
//	peer, err := client.Dial(ctx, exec.NewExecConnector(), "ssh://host/repo", cfg, os.Stderr)
//	if err != nil {
//		return err
//	}
//	defer peer.Close()
//
// Handshake:
//
//	The client writes an optional "upgrade <token> proto=..." line, then
//	hello and a between request for the null range. It scans the reply for
//	"upgraded <token> <version>" or the "1\n\n" answer to between, skipping
//	at most ClientConfig.NoiseBudget lines of banner output. Legacy remotes
//	advertise their capabilities in the hello reply, upgraded remotes send
//	them as a length-prefixed blob right after the ack.
//
// Calls:
//
//	Call writes the command name and its arguments as "<name> <len>\n" plus
//	raw bytes, in the order the command table declares them, and reads one
//	length-prefixed frame. A blank length line is an out-of-band error: the
//	remote explained itself on stderr, which is forwarded to the sink as
//	"remote: ..." lines. Any transport or response error closes the peer.
//
// Batching:
//
//	An Executor collects calls made through typed Methods. Consecutive
//	batchable calls are sent as one "batch" request when the remote
//	advertises the batch capability; everything else is sent on its own.
//	Futures resolve in submission order. A call the remote failed inside a
//	batch fails only its own future; a transport failure fails all of them.
package client
