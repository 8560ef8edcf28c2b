// Package duplex pairs the data channel of a remote process with its
// diagnostic side channel.
//
// A remote command writes protocol data to stdout and human readable output
// (warnings, progress, the reason it aborted) to stderr. Reading only stdout
// hides that output until the connection is torn down, and a remote that
// fills its stderr pipe stalls forever. Reader waits on both streams with
// poll(2) and forwards stderr as "remote: ..." lines whenever it is readable,
// draining only the bytes the kernel reports unread (TIOCINQ, FIONREAD on
// BSD) so the forwarding never blocks. Writer does the same while it waits
// for the data channel to accept more input.
//
// Streams without a file descriptor (for example SSH session channels) are
// pumped into memory by a goroutine instead, and both streams are then
// assumed to be ready.
package duplex
