// Package cmd implements the command-line interface of wpeer. It provides a
// hierarchical command structure for serving a repository over stdio and for
// talking to one as a client.
//
// The package is organized into several subpackages:
//
//   - serve: the stdio server started on the remote side of a connection
//   - remote: client commands (caps, lookup, listkeys, pushkey, push)
//   - state: inspect, continue, abort or clear unfinished operations
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See wpeer -help for a list of all commands.
package cmd
