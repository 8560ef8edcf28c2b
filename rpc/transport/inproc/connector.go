package inproc

import (
	"context"
	"os"
	"sync"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/repo"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/server"
	"github.com/ValentinKolb/wirepeer/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// connector runs a server in a goroutine of the current process
type connector struct {
	config common.ServerConfig
	server *server.Server
}

// NewInProcConnector creates a connector that serves local repositories
// from the current process. The path passed to Connect is opened as a
// repository for every connection.
func NewInProcConnector(config common.ServerConfig) transport.IClientConnector {
	return &connector{config: config}
}

// ForServer creates a connector whose connections are all answered by s.
// The path passed to Connect is ignored.
func ForServer(s *server.Server) transport.IClientConnector {
	return &connector{server: s}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *connector) Connect(_ context.Context, path string, _ common.ClientConfig) (transport.Streams, error) {
	s := c.server
	if s == nil {
		r, err := repo.Open(path)
		if err != nil {
			return transport.Streams{}, err
		}
		s = server.NewServer(c.config, r)
	}

	files := make([]*os.File, 0, 6)
	pipe := func() (*os.File, *os.File, error) {
		r, w, err := os.Pipe()
		if err == nil {
			files = append(files, r, w)
		}
		return r, w, err
	}
	stdinR, stdinW, err1 := pipe()
	stdoutR, stdoutW, err2 := pipe()
	stderrR, stderrW, err3 := pipe()
	for _, err := range []error{err1, err2, err3} {
		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return transport.Streams{}, errdefs.Wrap(errdefs.CodeRemote, "connect", err, "failed to create pipe")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &process{
		cancel: cancel,
		stdin:  stdinR,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		p.err = s.Serve(ctx, stdinR, stdoutW, stderrW)
		stdinR.Close()
		stdoutW.Close()
		stderrW.Close()
	}()
	Logger.Debugf("serving %s in process", path)

	return transport.Streams{
		Proc:   p,
		Stdin:  stdinW,
		Stdout: stdoutR,
		Stderr: stderrR,
	}, nil
}

func (c *connector) GetName() string {
	return "inproc"
}

// process is the goroutine running the server
type process struct {
	cancel context.CancelFunc
	stdin  *os.File
	done   chan struct{}
	err    error
	once   sync.Once
}

// Wait blocks until the server has seen the end of its input.
func (p *process) Wait() error {
	<-p.done
	return p.err
}

// Kill stops the server by closing its input.
func (p *process) Kill() error {
	p.once.Do(func() {
		p.cancel()
		p.stdin.Close()
	})
	return nil
}
