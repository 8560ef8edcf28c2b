package server

import (
	"context"

	"github.com/ValentinKolb/wirepeer/lib/repo"
	"github.com/ValentinKolb/wirepeer/rpc/wire"
)

// Request is a decoded call of a repository command
type Request struct {
	Command string
	Args    wire.Args
}

// IRPCServerAdapter is the interface for all RPC server adapters.
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request against the served repository and returns
	// the raw response. A returned error is reported to the client as an
	// out-of-band error for a standalone call and as a per-call error inside
	// a batch.
	Handle(ctx context.Context, req *Request, r *repo.Repo) ([]byte, error)
}
