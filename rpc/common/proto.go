package common

import (
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Protocol Version
// --------------------------------------------------------------------------

// ProtocolVersion names the wire protocol a peer negotiated during the
// handshake. It is fixed for the lifetime of a connection.
type ProtocolVersion string

const (
	ProtocolV1 ProtocolVersion = "ssh-v1"          // legacy protocol, spoken by every server
	ProtocolV2 ProtocolVersion = "exp-ssh-v2-0003" // upgraded protocol, negotiated via "upgrade"
)

// ParseProtocolVersion returns the version with the given wire name.
func ParseProtocolVersion(name string) (ProtocolVersion, bool) {
	switch ProtocolVersion(name) {
	case ProtocolV1:
		return ProtocolV1, true
	case ProtocolV2:
		return ProtocolV2, true
	default:
		return "", false
	}
}

// String returns the wire name of the version.
func (v ProtocolVersion) String() string {
	return string(v)
}

// --------------------------------------------------------------------------
// Capabilities
// --------------------------------------------------------------------------

// CapabilitiesMarker starts the line (or blob) that advertises capabilities.
const CapabilitiesMarker = "capabilities:"

// Capabilities is the set of optional features a remote advertised. It is
// never modified after the handshake.
type Capabilities map[string]struct{}

// NewCapabilities builds a set from the given tokens.
func NewCapabilities(tokens ...string) Capabilities {
	caps := make(Capabilities, len(tokens))
	for _, t := range tokens {
		caps[t] = struct{}{}
	}
	return caps
}

// ParseCapabilities parses "capabilities: tok1 tok2 ...". The second result
// is false if the line does not carry the marker.
func ParseCapabilities(line string) (Capabilities, bool) {
	rest, ok := strings.CutPrefix(line, CapabilitiesMarker)
	if !ok {
		return nil, false
	}
	return NewCapabilities(strings.Fields(rest)...), true
}

// Has reports whether the remote advertised name.
func (c Capabilities) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Sorted returns the tokens in lexical order.
func (c Capabilities) Sorted() []string {
	tokens := make([]string, 0, len(c))
	for t := range c {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// String formats the set the way it is advertised on the wire.
func (c Capabilities) String() string {
	return CapabilitiesMarker + " " + strings.Join(c.Sorted(), " ")
}

// Names of the capabilities this module understands.
const (
	CapBatch     = "batch"
	CapLookup    = "lookup"
	CapPushKey   = "pushkey"
	CapUnbundle  = "unbundle"
	CapProtoCaps = "protocaps"
)

// ClientProtoCaps are announced to servers that advertise CapProtoCaps.
var ClientProtoCaps = []string{"comp=none", "partial-pull"}
