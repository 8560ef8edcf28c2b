// Package exec implements a transport.IClientConnector that reaches a remote
// repository through an external ssh client.
//
// For ssh://alice@host:2222/repo it runs
//
//	ssh -p 2222 alice@host 'wpeer -R repo serve --stdio'
//
// through /bin/sh, so the configured ssh command may carry its own options.
// The remote command and path are quoted for the remote shell, then the whole
// remote command line is quoted again for the local one.
package exec
