package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/transport"
	"github.com/ValentinKolb/wirepeer/rpc/transport/duplex"
	"github.com/ValentinKolb/wirepeer/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("peer")
)

// pushChunkSize is the size of the frames a pushed payload is split into
const pushChunkSize = 4096

// Peer is a connection to a remote repository server. It is not safe for
// concurrent use: calls are issued one after another on a single pipe pair.
//
// A Peer is either connected or closed. Any transport failure closes it, so
// a failed call never leaves a half read response behind.
type Peer struct {
	url      string
	version  common.ProtocolVersion
	caps     common.Capabilities
	config   common.ClientConfig
	commands *wire.CommandTable

	proc transport.Process
	side duplex.SideChannel
	in   *duplex.Reader
	out  *duplex.Writer
	sink io.Writer

	closed bool
}

// MakePeer performs the handshake over already connected streams and
// returns the peer. Side channel output of the remote is written to sink.
// On failure every stream is closed before the error is returned.
func MakePeer(url string, streams transport.Streams, cfg common.ClientConfig, sink io.Writer) (*Peer, error) {
	if sink == nil {
		sink = io.Discard
	}
	side := duplex.NewSideChannel(streams.Stderr)
	p := &Peer{
		url:      url,
		config:   cfg,
		commands: wire.DefaultCommands(),
		proc:     streams.Proc,
		side:     side,
		in:       duplex.NewReader(streams.Stdout, side, sink),
		out:      duplex.NewWriter(streams.Stdin, side, sink),
		sink:     sink,
	}

	version, caps, err := PerformHandshake(p.out, p.in, cfg)
	if err != nil {
		duplex.ForwardOutput(sink, side)
		p.cleanup()
		return nil, err
	}
	duplex.ForwardOutput(sink, side)

	p.version = version
	p.caps = caps
	Logger.Debugf("connected to %s (%s, %s)", url, version, caps)

	// release the remote even if the caller forgets to close the peer
	runtime.SetFinalizer(p, func(p *Peer) {
		if !p.closed {
			Logger.Warningf("peer %s was never closed", p.url)
			p.Close()
		}
	})
	return p, nil
}

// Dial starts the remote through connector, performs the handshake and
// announces the client capabilities if the remote supports that.
func Dial(ctx context.Context, connector transport.IClientConnector, path string, cfg common.ClientConfig, sink io.Writer) (*Peer, error) {
	Logger.Debugf("connecting to %s via %s", path, connector.GetName())
	streams, err := connector.Connect(ctx, path, cfg)
	if err != nil {
		return nil, err
	}

	p, err := MakePeer(path, streams, cfg, sink)
	if err != nil {
		return nil, err
	}

	if p.caps.Has(common.CapProtoCaps) {
		caps := append([]string(nil), common.ClientProtoCaps...)
		sort.Strings(caps)
		if _, err := p.Call("protocaps", wire.Args{"caps": []byte(strings.Join(caps, " "))}); err != nil {
			p.Close()
			if errors.Is(err, errdefs.ErrRemote) {
				return nil, errdefs.Wrap(errdefs.CodeRemote, "protocaps", err, "capability exchange failed")
			}
			return nil, err
		}
	}
	return p, nil
}

// URL returns the location the peer was created for.
func (p *Peer) URL() string {
	return p.url
}

// Version returns the negotiated protocol version.
func (p *Peer) Version() common.ProtocolVersion {
	return p.version
}

// Capabilities returns the capabilities the remote advertised during the
// handshake.
func (p *Peer) Capabilities() common.Capabilities {
	return p.caps
}

// Closed reports whether the connection is gone.
func (p *Peer) Closed() bool {
	return p.closed
}

// --------------------------------------------------------------------------
// Calls
// --------------------------------------------------------------------------

// Call issues command and returns its framed response.
func (p *Peer) Call(command string, args wire.Args) ([]byte, error) {
	if _, err := p.sendRequest(command, args); err != nil {
		return nil, err
	}
	return p.readFramed(command)
}

// CallStream issues command and returns the response stream. For framed
// commands the stream ends with the frame, otherwise it is the open data
// channel and the caller must read exactly the response.
func (p *Peer) CallStream(command string, args wire.Args) (io.Reader, error) {
	cmd, err := p.sendRequest(command, args)
	if err != nil {
		return nil, err
	}
	if !cmd.Framed {
		return p.in, nil
	}
	size, err := p.getAmount(command)
	if err != nil {
		return nil, err
	}
	return &frameReader{peer: p, command: command, remaining: size}, nil
}

// frameReader reads the rest of a response frame. A remote hanging up
// before the frame is complete closes the peer.
type frameReader struct {
	peer      *Peer
	command   string
	remaining int
}

func (f *frameReader) Read(b []byte) (int, error) {
	if f.remaining == 0 {
		return 0, io.EOF
	}
	if f.peer.closed {
		return 0, errdefs.New(errdefs.CodeRemote, f.command, "connection to %s is closed", f.peer.url)
	}
	if len(b) > f.remaining {
		b = b[:f.remaining]
	}
	n, err := f.peer.in.Read(b)
	f.remaining -= n
	if err == nil || f.remaining == 0 {
		return n, nil
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, f.peer.abort(errdefs.Wrap(errdefs.CodeRemote, f.command, err, "response ended %d bytes early", f.remaining))
}

// PushStream issues command and, if the remote invites it, sends payload.
// The result frame is returned on success; a remote refusal is returned as
// a CommandError carrying the remote's message.
func (p *Peer) PushStream(command string, args wire.Args, payload io.Reader) ([]byte, error) {
	reply, err := p.Call(command, args)
	if err != nil {
		return nil, err
	}
	if len(reply) > 0 {
		return nil, errdefs.New(errdefs.CodeCommand, command, "%s", reply)
	}

	if err := p.writePayload(command, payload); err != nil {
		return nil, err
	}

	// an empty frame followed by the result, or a single error frame
	reply, err = p.readFramed(command)
	if err != nil {
		return nil, err
	}
	if len(reply) > 0 {
		return nil, errdefs.New(errdefs.CodeCommand, command, "%s", reply)
	}
	return p.readFramed(command)
}

// CallTwoWayStream issues command, sends payload and returns the data
// channel to read the response from.
func (p *Peer) CallTwoWayStream(command string, args wire.Args, payload io.Reader) (io.Reader, error) {
	reply, err := p.Call(command, args)
	if err != nil {
		return nil, err
	}
	if len(reply) > 0 {
		return nil, errdefs.New(errdefs.CodeAbort, command, "unexpected remote reply: %s", reply)
	}
	if err := p.writePayload(command, payload); err != nil {
		return nil, err
	}
	return p.in, nil
}

// sendRequest writes command and its arguments in declared order
func (p *Peer) sendRequest(command string, args wire.Args) (wire.Command, error) {
	if p.closed {
		return wire.Command{}, errdefs.New(errdefs.CodeRemote, command, "connection to %s is closed", p.url)
	}
	cmd, ok := p.commands.Lookup(command)
	if !ok {
		return wire.Command{}, errdefs.New(errdefs.CodeProgramming, command, "unknown command")
	}
	ordered, extra, err := cmd.Bind(args)
	if err != nil {
		return wire.Command{}, err
	}

	if p.config.DebugPeerRequest {
		Logger.Debugf("devel-peer-request: %s", command)
		names := make([]string, 0, len(args))
		for name := range args {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			Logger.Debugf("devel-peer-request:   %s: %d bytes", name, len(args[name]))
		}
	}
	Logger.Debugf("sending %s command", command)

	fmt.Fprintf(p.out, "%s\n", command)
	for _, arg := range ordered {
		fmt.Fprintf(p.out, "%s %d\n", arg.Name, len(arg.Value))
		p.out.Write(arg.Value)
	}
	if cmd.Variadic() {
		fmt.Fprintf(p.out, "%s %d\n", wire.VariadicArg, len(extra))
		for _, arg := range extra {
			fmt.Fprintf(p.out, "%s %d\n", arg.Name, len(arg.Value))
			p.out.Write(arg.Value)
		}
	}
	// bufio keeps the first write error, Flush reports it
	if err := p.out.Flush(); err != nil {
		return wire.Command{}, p.abort(errdefs.Wrap(errdefs.CodeRemote, command, err, "failed to send request"))
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`wirepeer_requests_total{command=%q}`, command)).Inc()
	return cmd, nil
}

// getAmount reads the length line of a response. A blank line means the
// remote wrote its reason to the side channel instead of a response.
func (p *Peer) getAmount(command string) (int, error) {
	line, err := p.in.ReadLine()
	if err != nil && (err != io.EOF || len(line) == 0) {
		return 0, p.abort(errdefs.Wrap(errdefs.CodeRemote, command, err, "failed to read response"))
	}
	if string(line) == "\n" {
		duplex.ForwardOutput(p.sink, p.side)
		return 0, p.abort(errdefs.New(errdefs.CodeOutOfBand, command, "no response data").WithHint("check previous remote output"))
	}
	duplex.ForwardOutput(p.sink, p.side)

	size, err := wire.ParseAmount(line)
	if err != nil {
		return 0, p.abort(errdefs.Wrap(errdefs.CodeResponse, command, err, "unexpected response: %q", line))
	}
	return size, nil
}

func (p *Peer) readFramed(command string) ([]byte, error) {
	size, err := p.getAmount(command)
	if err != nil {
		return nil, err
	}
	data, err := wire.ReadExactly(p.in, size)
	if err != nil {
		return nil, p.abort(err)
	}
	return data, nil
}

// writePayload sends payload as frames followed by an empty frame
func (p *Peer) writePayload(command string, payload io.Reader) error {
	buf := make([]byte, pushChunkSize)
	total := 0
	for {
		n, err := payload.Read(buf)
		if n > 0 {
			if werr := wire.WriteFrame(p.out, buf[:n]); werr != nil {
				return p.abort(werr)
			}
			total += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			// the remote expects more frames, the connection is unusable
			return p.abort(errdefs.Wrap(errdefs.CodeAbort, command, err, "failed to read payload"))
		}
	}
	if err := wire.WriteFrame(p.out, nil); err != nil {
		return p.abort(err)
	}
	if err := p.out.Flush(); err != nil {
		return p.abort(errdefs.Wrap(errdefs.CodeRemote, command, err, "failed to send payload"))
	}
	metrics.GetOrCreateCounter(`wirepeer_push_bytes_total`).Add(total)
	return nil
}

// --------------------------------------------------------------------------
// Teardown
// --------------------------------------------------------------------------

// Close closes the connection. Remaining side channel output is forwarded
// before the remote is reaped. Close is idempotent.
func (p *Peer) Close() error {
	if p.closed {
		return nil
	}
	runtime.SetFinalizer(p, nil)
	p.cleanup()
	return nil
}

// abort closes the connection and returns err
func (p *Peer) abort(err error) error {
	if !p.closed {
		Logger.Debugf("aborting connection to %s: %v", p.url, err)
		runtime.SetFinalizer(p, nil)
		p.cleanup()
	}
	return err
}

// cleanup closes our ends of the pipes, drains the side channel until the
// remote closes it and waits for the remote to exit
func (p *Peer) cleanup() {
	p.closed = true
	p.out.Close()
	p.in.Close()
	if err := duplex.DrainOutput(p.sink, p.side); err != nil {
		Logger.Debugf("draining remote output failed: %v", err)
	}
	p.side.Close()
	if p.proc != nil {
		if err := p.proc.Wait(); err != nil {
			Logger.Debugf("remote %s exited: %v", p.url, err)
		}
	}
}
