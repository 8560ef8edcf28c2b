// Package common provides the types shared by the client and server side of
// the remote repository protocol.
//
// The package focuses on:
//   - Protocol versions and the capability set negotiated during the handshake
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - ProtocolVersion: the closed set of wire protocol versions (ssh-v1 and the
//     upgraded exp-ssh-v2-0003). The RPC surface is identical for both once
//     the handshake is done.
//
//   - Capabilities: immutable set of tokens advertised by a remote, with the
//     parser for the "capabilities: ..." line.
//
//   - ClientConfig / ServerConfig: configuration filled from cobra flags and
//     viper, printable as a table.
//
//   - Logger: a logger.ILogger implementation writing to stderr, because stdout
//     carries the protocol when serving over stdio.
package common
