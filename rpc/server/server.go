package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/repo"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("server")

// Server answers wire protocol requests for one repository. A Server can
// serve several connections one after another or concurrently; per
// connection state lives in a session.
type Server struct {
	config   common.ServerConfig
	repo     *repo.Repo
	commands *wire.CommandTable
	adapters *xsync.MapOf[string, IRPCServerAdapter]
	// requests counts the handled requests per command; batched calls are
	// counted as "batch:<command>"
	requests *xsync.MapOf[string, int]
}

// NewServer creates a server for r speaking the default command table.
//
// Usage:
//
//	s := server.NewServer(config, r)
//	if err := s.Serve(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil {
//		return err
//	}
func NewServer(config common.ServerConfig, r *repo.Repo) *Server {
	s := &Server{
		config:   config,
		repo:     r,
		commands: wire.DefaultCommands(),
		adapters: xsync.NewMapOf[string, IRPCServerAdapter](),
		requests: xsync.NewMapOf[string, int](),
	}

	lookup := NewLookupServerAdapter()
	keys := NewKeysServerAdapter()
	s.adapters.Store("lookup", lookup)
	s.adapters.Store("heads", lookup)
	s.adapters.Store("listkeys", keys)
	s.adapters.Store("pushkey", keys)

	Logger.Debugf("created server\n%s", config.String())
	return s
}

// RegisterCommand declares an additional command and the adapter handling it.
func (s *Server) RegisterCommand(cmd wire.Command, adapter IRPCServerAdapter) error {
	if err := s.commands.Register(cmd); err != nil {
		return err
	}
	s.adapters.Store(cmd.Name, adapter)
	return nil
}

// Capabilities returns the capabilities the server advertises.
func (s *Server) Capabilities() common.Capabilities {
	caps := common.NewCapabilities(common.CapLookup, common.CapPushKey, common.CapUnbundle, common.CapProtoCaps)
	if !s.config.DisableBatch {
		caps[common.CapBatch] = struct{}{}
	}
	return caps
}

// Requests returns how many requests for command were handled.
func (s *Server) Requests(command string) int {
	n, _ := s.requests.Load(command)
	return n
}

func (s *Server) count(command string) {
	s.requests.Compute(command, func(n int, _ bool) (int, bool) {
		return n + 1, false
	})
}

// Serve answers requests read from in until in is exhausted. Responses go to
// out, human readable output to errOut. A protocol violation by the client
// ends the session with an error.
func (s *Server) Serve(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	sess := &session{
		server: s,
		in:     wire.NewReader(in),
		out:    bufio.NewWriter(out),
		errOut: errOut,
	}
	err := sess.run(ctx)
	if err != nil {
		Logger.Errorf("session failed: %v", err)
		fmt.Fprintf(errOut, "abort: %s\n", userMessage(err))
	}
	return err
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// session is one client connection
type session struct {
	server     *Server
	in         wire.Reader
	out        *bufio.Writer
	errOut     io.Writer
	clientCaps common.Capabilities
}

func (sess *session) run(ctx context.Context) error {
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := sess.in.ReadLine()
		if len(line) == 0 && err == io.EOF {
			return nil
		}
		if err != nil && err != io.EOF {
			return errdefs.Wrap(errdefs.CodeRemote, "serve", err, "failed to read request")
		}
		request := strings.TrimRight(string(line), "\r\n")

		// upgrade is only valid as the very first request and carries its
		// arguments on the request line
		if first && strings.HasPrefix(request, "upgrade ") {
			err = sess.upgrade(request)
		} else if request != "" {
			err = sess.dispatch(ctx, request)
		}
		if err != nil {
			return err
		}
		if err := sess.out.Flush(); err != nil {
			return errdefs.Wrap(errdefs.CodeRemote, "serve", err, "failed to write response")
		}
	}
}

func (sess *session) dispatch(ctx context.Context, name string) error {
	s := sess.server
	cmd, ok := s.commands.Lookup(name)
	if !ok || (name == "batch" && s.config.DisableBatch) {
		// unknown commands get an empty response
		Logger.Debugf("unknown command %q", name)
		s.count(name)
		return wire.WriteFrame(sess.out, nil)
	}

	args, err := sess.readArgs(cmd)
	if err != nil {
		return err
	}
	s.count(name)
	metrics.GetOrCreateCounter(fmt.Sprintf(`wirepeer_server_commands_total{command=%q}`, name)).Inc()
	Logger.Debugf("handling %s", name)

	switch name {
	case "hello":
		return wire.WriteFrame(sess.out, []byte(s.Capabilities().String()+"\n"))
	case "between":
		return sess.between(args)
	case "capabilities":
		return wire.WriteFrame(sess.out, []byte(strings.Join(s.Capabilities().Sorted(), " ")))
	case "protocaps":
		sess.clientCaps = common.NewCapabilities(strings.Fields(string(args["caps"]))...)
		Logger.Debugf("client capabilities: %s", sess.clientCaps)
		return wire.WriteFrame(sess.out, nil)
	case "batch":
		return sess.batch(ctx, args)
	case "unbundle":
		return sess.unbundle(ctx, args)
	}

	adapter, ok := s.adapters.Load(name)
	if !ok {
		return wire.WriteFrame(sess.out, nil)
	}
	result, err := adapter.Handle(ctx, &Request{Command: name, Args: args}, s.repo)
	if err != nil {
		return sess.outOfBand(name, err)
	}
	return wire.WriteFrame(sess.out, result)
}

// readArgs reads the arguments of cmd in their declared order
func (sess *session) readArgs(cmd wire.Command) (wire.Args, error) {
	args := wire.Args{}
	for _, name := range cmd.Args {
		if name != wire.VariadicArg {
			key, value, err := sess.readArg(cmd.Name)
			if err != nil {
				return nil, err
			}
			if key != name {
				return nil, errdefs.New(errdefs.CodeProtocol, cmd.Name, "unexpected parameter %q", key)
			}
			args[key] = value
			continue
		}

		key, count, err := sess.readArgHeader(cmd.Name)
		if err != nil {
			return nil, err
		}
		if key != wire.VariadicArg {
			return nil, errdefs.New(errdefs.CodeProtocol, cmd.Name, "expected variadic arguments, got %q", key)
		}
		for i := 0; i < count; i++ {
			key, value, err := sess.readArg(cmd.Name)
			if err != nil {
				return nil, err
			}
			args[key] = value
		}
	}
	return args, nil
}

func (sess *session) readArg(command string) (string, []byte, error) {
	key, size, err := sess.readArgHeader(command)
	if err != nil {
		return "", nil, err
	}
	value, err := wire.ReadExactly(sess.in, size)
	if err != nil {
		return "", nil, err
	}
	return key, value, nil
}

// readArgHeader reads a "<name> <number>" line
func (sess *session) readArgHeader(command string) (string, int, error) {
	line, err := wire.ReadLine(sess.in)
	if err != nil && (err != io.EOF || len(line) == 0) {
		return "", 0, errdefs.Wrap(errdefs.CodeProtocol, command, err, "missing arguments")
	}
	fields := strings.Fields(string(line))
	if len(fields) != 2 {
		return "", 0, errdefs.New(errdefs.CodeProtocol, command, "malformed argument line %q", line)
	}
	size, err := wire.ParseAmount([]byte(fields[1]))
	if err != nil {
		return "", 0, err
	}
	return fields[0], size, nil
}

// between answers every pair with an empty node list. Only the null range
// probe of the handshake is ever asked for.
func (sess *session) between(args wire.Args) error {
	pairs := strings.Fields(string(args["pairs"]))
	return wire.WriteFrame(sess.out, []byte(strings.Repeat("\n", len(pairs))))
}

// outOfBand reports err on the side channel and answers with a blank line
func (sess *session) outOfBand(command string, err error) error {
	Logger.Infof("%s failed: %v", command, err)
	fmt.Fprintf(sess.errOut, "abort: %s\n", userMessage(err))
	_, werr := sess.out.WriteString("\n")
	return werr
}

// userMessage returns the message of err without the error code prefix
func userMessage(err error) string {
	var e *errdefs.Error
	if errors.As(err, &e) {
		msg := e.Msg
		if e.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
		return msg
	}
	return err.Error()
}
