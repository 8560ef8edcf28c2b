package server

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/wire"
)

// upgrade handles "upgrade <token> <params>". A server that does not accept
// the upgrade answers like it would answer an unknown command.
func (sess *session) upgrade(request string) error {
	fields := strings.Fields(request)
	if !sess.server.config.AcceptV2 || len(fields) != 3 {
		Logger.Debugf("declining upgrade request")
		return wire.WriteFrame(sess.out, nil)
	}
	token := fields[1]

	params, err := url.ParseQuery(fields[2])
	if err != nil {
		Logger.Debugf("declining upgrade with malformed parameters %q", fields[2])
		return wire.WriteFrame(sess.out, nil)
	}
	wanted := false
	for _, proto := range strings.Split(params.Get("proto"), ",") {
		if proto == string(common.ProtocolV2) {
			wanted = true
		}
	}
	if !wanted {
		return wire.WriteFrame(sess.out, nil)
	}

	sess.server.count("upgrade")
	ack := fmt.Sprintf("upgraded %s %s\n", token, common.ProtocolV2)
	sess.out.WriteString(ack)
	fmt.Fprint(sess.errOut, ack)

	caps := sess.server.Capabilities().String()
	fmt.Fprintf(sess.out, "%d\n%s\n", len(caps), caps)
	if err := sess.out.Flush(); err != nil {
		return errdefs.Wrap(errdefs.CodeRemote, "upgrade", err, "failed to write response")
	}
	Logger.Debugf("upgraded session to %s", common.ProtocolV2)

	return sess.skipLegacyHandshake()
}

// skipLegacyHandshake consumes the hello and between requests the client
// sends after its upgrade request without answering them
func (sess *session) skipLegacyHandshake() error {
	line, err := wire.ReadLine(sess.in)
	if err != nil || string(line) != "hello\n" {
		return errdefs.New(errdefs.CodeProtocol, "upgrade", "expected hello after upgrade, got %q", line)
	}
	line, err = wire.ReadLine(sess.in)
	if err != nil || string(line) != "between\n" {
		return errdefs.New(errdefs.CodeProtocol, "upgrade", "expected between after upgrade, got %q", line)
	}
	cmd, _ := sess.server.commands.Lookup("between")
	args, err := sess.readArgs(cmd)
	if err != nil {
		return err
	}
	if string(args["pairs"]) != wire.NullPairs {
		return errdefs.New(errdefs.CodeProtocol, "upgrade", "unexpected between request after upgrade")
	}
	return nil
}
