package exec

import (
	"context"
	"os"
	osexec "os/exec"
	"strconv"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// connector runs the configured ssh client as a subprocess
type connector struct {
	// env is appended to the environment of the ssh process
	env []string
}

// NewExecConnector creates a connector that reaches ssh:// remotes through an
// external ssh binary. env entries ("KEY=value") are added to its environment.
func NewExecConnector(env ...string) transport.IClientConnector {
	return &connector{env: env}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *connector) Connect(ctx context.Context, path string, config common.ClientConfig) (transport.Streams, error) {
	loc, err := transport.ParseLocation(path)
	if err != nil {
		return transport.Streams{}, err
	}

	sshCmd := config.SSHCommand
	if sshCmd == "" {
		sshCmd = common.DefaultSSHCommand
	}
	remoteCmd := config.RemoteCmd
	if remoteCmd == "" {
		remoteCmd = common.DefaultRemoteCmd
	}

	cmdline := CommandLine(sshCmd, loc, remoteCmd)
	Logger.Debugf("running %s", cmdline)

	cmd := osexec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	cmd.Env = append(os.Environ(), c.env...)
	return Start(cmd)
}

func (c *connector) GetName() string {
	return "exec"
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// SSHArgs returns the arguments that select the remote host for an ssh
// client, e.g. "-p 2222 alice@example.com".
func SSHArgs(loc transport.Location) string {
	var args []string
	if loc.Port != 0 {
		args = append(args, "-p", strconv.Itoa(loc.Port))
	}
	args = append(args, transport.ShellQuote(loc.Target()))
	return strings.Join(args, " ")
}

// CommandLine builds the local shell command that starts the remote server.
func CommandLine(sshCmd string, loc transport.Location, remoteCmd string) string {
	return sshCmd + " " + SSHArgs(loc) + " " + transport.ShellQuote(transport.RemoteCommand(remoteCmd, loc.Path))
}

// process adapts an *exec.Cmd to transport.Process
type process struct {
	cmd *osexec.Cmd
}

func (p *process) Wait() error {
	return p.cmd.Wait()
}

func (p *process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Start runs cmd with fresh pipes for its standard streams and returns them.
// The pipes are *os.File values, so the peer can poll them.
func Start(cmd *osexec.Cmd) (transport.Streams, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return transport.Streams{}, errdefs.Wrap(errdefs.CodeRemote, "connect", err, "failed to create pipe")
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return transport.Streams{}, errdefs.Wrap(errdefs.CodeRemote, "connect", err, "failed to create pipe")
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return transport.Streams{}, errdefs.Wrap(errdefs.CodeRemote, "connect", err, "failed to create pipe")
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return transport.Streams{}, errdefs.Wrap(errdefs.CodeRemote, "connect", err, "failed to start %s", cmd.Path)
	}

	// the child holds its own copies now
	closeAll(stdinR, stdoutW, stderrW)

	return transport.Streams{
		Proc:   &process{cmd: cmd},
		Stdin:  stdinW,
		Stdout: stdoutR,
		Stderr: stderrR,
	}, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
