// Package rpc provides the wire protocol spoken between a client and a
// repository server over the stdio pipes of a remote process, usually
// started through ssh.
//
// The package is organized into several subpackages:
//
//   - wire: frames, argument escaping, the batch encoding and the table of
//     declared commands with their ordered arguments.
//
//   - common: configuration structures, logging, protocol versions and
//     capability sets.
//
//   - transport: connectors that start the remote side (ssh binary,
//     built-in SSH client, in process) and the duplex pipe that forwards
//     remote diagnostics while the client waits for data.
//
//   - client: the Peer with its handshake, and the Executor that groups
//     calls into batches and resolves their futures in submission order.
//
//   - server: the stdio server answering the same protocol, including the
//     upgrade, batch and push exchanges.
package rpc
