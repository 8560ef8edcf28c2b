// Package server implements the stdio side of the wire protocol: the
// process a client starts with "wpeer -R <path> serve --stdio".
//
// A Server reads requests from stdin and writes responses to stdout. Human
// readable output, including the reason a request failed, goes to stderr
// where the client forwards it as "remote: ..." lines.
//
// Built in commands:
//
//   - upgrade: only as the first request. Declined with "0\n" unless
//     ServerConfig.AcceptV2 is set; otherwise answered with
//     "upgraded <token> exp-ssh-v2-0003" and a length-prefixed capabilities
//     line, after which the legacy hello and between requests of the client
//     are consumed silently.
//   - hello, between, capabilities, protocaps: handshake and capability
//     exchange.
//   - batch: runs several batchable calls and answers with one frame. Each
//     entry is an escaped result or ":x" followed by an escaped error.
//   - unbundle: the push exchange, see push.go.
//
// Repository commands are handled by adapters (IRPCServerAdapter), the same
// way for standalone and batched calls:
//
//   - NewLookupServerAdapter: lookup and heads
//   - NewKeysServerAdapter: listkeys and pushkey
//
// Unknown commands get an empty response. A failing standalone call is
// answered with a blank line and its error on stderr.
package server
