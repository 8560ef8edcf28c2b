// Package ssh implements a transport.IClientConnector on top of
// golang.org/x/crypto/ssh, for hosts without an ssh binary.
//
// Authentication tries the keys offered by the SSH agent (SSH_AUTH_SOCK)
// first and falls back to an interactive password prompt. Host keys are
// checked against a known_hosts file.
//
// Session streams have no file descriptor, so the peer drains the remote
// stderr through a buffered side channel instead of poll(2).
package ssh
