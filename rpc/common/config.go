package common

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultNoiseBudget is the number of response lines the handshake scans
// before giving up on a remote that never answers the probe.
const DefaultNoiseBudget = 500

// DefaultSSHCommand is the client program used to reach ssh:// remotes.
const DefaultSSHCommand = "ssh"

// DefaultRemoteCmd is the program started on the remote host.
const DefaultRemoteCmd = "wpeer"

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds everything needed to reach a remote and negotiate with it.
type ClientConfig struct {
	// SSHCommand is the ssh client invoked for ssh:// URLs, with its arguments
	SSHCommand string
	// RemoteCmd is the program run on the remote side
	RemoteCmd string
	// NativeSSH uses the built-in SSH client instead of SSHCommand
	NativeSSH bool

	// AdvertiseV2 sends an "upgrade" request during the handshake
	AdvertiseV2 bool
	// NoiseBudget bounds the lines scanned while waiting for the handshake reply
	NoiseBudget int
	// SSHErrorHint is added to handshake errors when set
	SSHErrorHint string
	// DebugPeerRequest traces every request at debug level
	DebugPeerRequest bool

	// Logging configuration
	LogLevel string
	// Metrics dumps the request counters on exit
	Metrics bool
}

// DefaultClientConfig returns the configuration used when nothing is set.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SSHCommand:  DefaultSSHCommand,
		RemoteCmd:   DefaultRemoteCmd,
		NoiseBudget: DefaultNoiseBudget,
		LogLevel:    "warn",
	}
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection, addField := formatHelpers(&sb)

	addSection("Connection")
	if c.NativeSSH {
		addField("SSH", "built-in")
	} else {
		addField("SSH", c.SSHCommand)
	}
	addField("Remote Command", c.RemoteCmd)

	addSection("Handshake")
	addField("Advertise V2", strconv.FormatBool(c.AdvertiseV2))
	addField("Noise Budget", fmt.Sprintf("%d lines", c.NoiseBudget))
	if c.SSHErrorHint != "" {
		addField("Error Hint", c.SSHErrorHint)
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Trace Requests", strconv.FormatBool(c.DebugPeerRequest))
	addField("Metrics", strconv.FormatBool(c.Metrics))

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds the parameters of a stdio server.
type ServerConfig struct {
	// Repository is the root of the served repository
	Repository string
	// Stdio serves the protocol on stdin/stdout
	Stdio bool
	// AcceptV2 answers "upgrade" requests instead of declining them
	AcceptV2 bool
	// DisableBatch hides the batch capability and rejects batch requests
	DisableBatch bool

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection, addField := formatHelpers(&sb)

	addSection("RPC Server")
	addField("Repository", c.Repository)
	addField("Stdio", strconv.FormatBool(c.Stdio))
	addField("Accept V2", strconv.FormatBool(c.AcceptV2))
	addField("Disable Batch", strconv.FormatBool(c.DisableBatch))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// formatHelpers returns the section and field writers shared by the String
// methods so both tables line up
func formatHelpers(sb *strings.Builder) (func(string), func(string, string)) {
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}
	return addSection, addField
}
