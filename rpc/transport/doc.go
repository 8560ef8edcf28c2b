// Package transport defines the boundary between the protocol code and the
// process that serves a remote repository.
//
// The protocol never spawns anything itself. A connector produces four
// handles (process, stdin, stdout, stderr) and the peer takes ownership of
// them.
//
// Key Components:
//
//   - IClientConnector: interface implemented by the exec (external ssh
//     binary), ssh (built-in SSH client) and inproc (server in the same
//     process, for local paths and tests) sub packages.
//
//   - Streams: the handles of one remote process.
//
//   - duplex: pairs the data stream with the diagnostic stream so remote
//     output is forwarded while the client blocks on data.
package transport
