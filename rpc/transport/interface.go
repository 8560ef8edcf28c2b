package transport

import (
	"context"
	"io"

	"github.com/ValentinKolb/wirepeer/rpc/common"
)

// --------------------------------------------------------------------------
// Remote Process
// --------------------------------------------------------------------------

// Process is the handle of a spawned remote process.
type Process interface {
	// Wait blocks until the process exits and releases its resources
	Wait() error
	// Kill terminates the process immediately
	Kill() error
}

// Streams are the four handles a connector hands to the peer: the process
// and its stdin, stdout and stderr. The peer owns all of them afterwards.
type Streams struct {
	Proc   Process
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// CloseAll closes the three streams and reaps the process. It is used when a
// connection fails before a peer takes ownership.
func (s Streams) CloseAll() {
	for _, c := range []io.Closer{s.Stdin, s.Stdout, s.Stderr} {
		if c != nil {
			_ = c.Close()
		}
	}
	if s.Proc != nil {
		_ = s.Proc.Wait()
	}
}

// --------------------------------------------------------------------------
// Client Connector
// --------------------------------------------------------------------------

// IClientConnector starts the remote side of a connection. Implementations
// spawn an ssh client, open a native SSH session or run a server in process.
type IClientConnector interface {
	// Connect starts the remote command serving the repository at path
	Connect(ctx context.Context, path string, config common.ClientConfig) (Streams, error)
	// GetName returns the name of the connector (for logging)
	GetName() string
}
