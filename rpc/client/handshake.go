package client

import (
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/wire"
	"github.com/google/uuid"
)

// FlushWriter is the write side of a data channel.
type FlushWriter interface {
	io.Writer
	Flush() error
}

// PerformHandshake negotiates the protocol version with a freshly started
// remote and returns it with the capabilities the remote advertises.
//
// The request probes the oldest mechanism last: an optional upgrade line,
// then hello and the between probe for the null range. The reply is scanned
// line by line until the upgrade is acknowledged or the "1\n\n" answer to
// between shows up. Banner output before that is skipped, up to the noise
// budget.
func PerformHandshake(out FlushWriter, in wire.Reader, cfg common.ClientConfig) (common.ProtocolVersion, common.Capabilities, error) {
	badResponse := func(cause error) error {
		err := errdefs.Wrap(errdefs.CodeHandshake, "handshake", cause, "no suitable response from remote")
		if cause == nil {
			err = errdefs.New(errdefs.CodeHandshake, "handshake", "no suitable response from remote")
		}
		if cfg.SSHErrorHint != "" {
			err = err.WithHint(cfg.SSHErrorHint)
		}
		return err
	}

	// the token keeps banner noise from passing as an upgrade ack
	token := uuid.NewString()

	var request strings.Builder
	if cfg.AdvertiseV2 {
		params := url.Values{"proto": {string(common.ProtocolV2)}}.Encode()
		Logger.Debugf("sending upgrade request: %s %s", token, params)
		request.WriteString("upgrade " + token + " " + params + "\n")
	}
	request.WriteString("hello\n")
	request.WriteString("between\n")
	request.WriteString("pairs " + strconv.Itoa(len(wire.NullPairs)) + "\n")
	request.WriteString(wire.NullPairs)

	if cfg.DebugPeerRequest {
		Logger.Debugf("devel-peer-request: hello+between")
		Logger.Debugf("devel-peer-request:   pairs: %d bytes", len(wire.NullPairs))
	}
	Logger.Debugf("sending hello command")
	Logger.Debugf("sending between command")

	if _, err := io.WriteString(out, request.String()); err != nil {
		return "", nil, badResponse(err)
	}
	if err := out.Flush(); err != nil {
		return "", nil, badResponse(err)
	}

	budget := cfg.NoiseBudget
	if budget <= 0 {
		budget = common.DefaultNoiseBudget
	}

	version := common.ProtocolV1
	upgradedPrefix := "upgraded " + token + " "
	var lines []string
	previous := "dummy"

scan:
	for {
		if budget == 0 {
			return "", nil, badResponse(nil)
		}
		raw, err := in.ReadLine()
		if err != nil && err != io.EOF {
			return "", nil, badResponse(err)
		}
		line := string(raw)
		if line == "" {
			// the remote closed the connection
			return "", nil, badResponse(nil)
		}

		if rest, ok := strings.CutPrefix(line, upgradedPrefix); ok {
			name := strings.TrimRight(rest, "\r\n")
			v, known := common.ParseProtocolVersion(name)
			if !known {
				return "", nil, errdefs.New(errdefs.CodeHandshake, "handshake", "unknown version of SSH protocol: %s", name)
			}
			version = v
			Logger.Debugf("protocol upgraded to %s", version)
			// the legacy requests are ignored after an upgrade
			break scan
		}

		if previous == "1\n" && line == "\n" {
			break scan
		}
		Logger.Debugf("remote: %s", strings.TrimRight(line, "\n"))
		lines = append(lines, line)
		previous = line
		budget--
	}

	var caps common.Capabilities
	switch version {
	case common.ProtocolV1:
		// scan backwards so banner output cannot pass as the hello reply
		for i := len(lines) - 1; i >= 0; i-- {
			if c, ok := common.ParseCapabilities(strings.TrimRight(lines[i], "\r\n")); ok {
				caps = c
				break
			}
		}
	case common.ProtocolV2:
		raw, err := in.ReadLine()
		if err != nil && (err != io.EOF || len(raw) == 0) {
			return "", nil, badResponse(err)
		}
		size, err := wire.ParseAmount(raw)
		if err != nil {
			return "", nil, badResponse(err)
		}
		blob, err := wire.ReadExactly(in, size)
		if err != nil {
			return "", nil, badResponse(err)
		}
		if !strings.HasPrefix(string(blob), common.CapabilitiesMarker+" ") {
			return "", nil, badResponse(nil)
		}
		Logger.Debugf("remote: %s", blob)
		caps, _ = common.ParseCapabilities(string(blob))
		if _, err := wire.ReadExactly(in, 1); err != nil {
			return "", nil, badResponse(err)
		}
	}

	if len(caps) == 0 {
		return "", nil, badResponse(nil)
	}
	return version, caps, nil
}
