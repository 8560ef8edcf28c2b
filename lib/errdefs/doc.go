// Package errdefs defines the error taxonomy shared by the wire transport,
// the peer and the resumable state store.
//
// Every error carries a Code. Callers distinguish "not a compatible server"
// (CodeHandshake) from "transient network failure" (CodeRemote) and from a
// single failed call inside a batch (CodeCommand) with errors.Is:
//
//	if errors.Is(err, errdefs.ErrHandshake) {
//		...
//	}
package errdefs
