// Package inproc connects a peer to a server running in the same process.
//
// The server goroutine talks to the peer through three OS pipes, so the
// peer sees real file descriptors exactly as with an ssh subprocess. It is
// used for repositories given as local paths and by tests.
package inproc
