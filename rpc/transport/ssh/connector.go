package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"

	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

var Logger = logger.GetLogger("transport")

// connector opens an SSH session with the built-in client
type connector struct {
	knownHosts string
	prompt     io.Writer
}

// NewSSHConnector creates a connector using golang.org/x/crypto/ssh. Host
// keys are verified against knownHosts (~/.ssh/known_hosts if empty).
// Password prompts are written to prompt.
func NewSSHConnector(knownHosts string, prompt io.Writer) transport.IClientConnector {
	if prompt == nil {
		prompt = os.Stderr
	}
	return &connector{knownHosts: knownHosts, prompt: prompt}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *connector) Connect(ctx context.Context, path string, config common.ClientConfig) (transport.Streams, error) {
	loc, err := transport.ParseLocation(path)
	if err != nil {
		return transport.Streams{}, err
	}
	if loc.User == "" {
		if u, err := user.Current(); err == nil {
			loc.User = u.Username
		}
	}

	clientConfig, err := c.clientConfig(loc)
	if err != nil {
		return transport.Streams{}, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", loc.Address())
	if err != nil {
		return transport.Streams{}, errors.Wrap(err, "failed to connect to SSH host")
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, loc.Address(), clientConfig)
	if err != nil {
		conn.Close()
		return transport.Streams{}, errors.Wrap(err, "SSH handshake failed")
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return transport.Streams{}, errors.Wrap(err, "failed to create new SSH session")
	}

	streams, err := sessionStreams(client, session)
	if err != nil {
		client.Close()
		return transport.Streams{}, err
	}

	remoteCmd := config.RemoteCmd
	if remoteCmd == "" {
		remoteCmd = common.DefaultRemoteCmd
	}
	cmdline := transport.RemoteCommand(remoteCmd, loc.Path)
	Logger.Debugf("starting %q on %s", cmdline, loc.Address())
	if err := session.Start(cmdline); err != nil {
		client.Close()
		return transport.Streams{}, errors.Wrap(err, "failed to start command")
	}
	return streams, nil
}

func (c *connector) GetName() string {
	return "ssh"
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// clientConfig collects the auth methods: agent keys first, then a password
// prompt
func (c *connector) clientConfig(loc transport.Location) (*ssh.ClientConfig, error) {
	knownHostsFile := c.knownHosts
	if knownHostsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to locate home directory")
		}
		knownHostsFile = filepath.Join(home, ".ssh", "known_hosts")
	}
	hostKeys, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load known hosts from %s", knownHostsFile)
	}

	config := &ssh.ClientConfig{
		User:            loc.User,
		HostKeyCallback: hostKeys,
	}

	if a := sshAgent(); a != nil {
		signers, err := a.Signers()
		if err != nil {
			Logger.Warningf("failed to get signers from SSH agent: %v", err)
		} else if len(signers) > 0 {
			config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signers...)}
		}
	}
	config.Auth = append(config.Auth, ssh.PasswordCallback(func() (string, error) {
		return c.askForPassword(loc)
	}))
	return config, nil
}

func sshAgent() agent.Agent {
	sshAuthSocket := os.Getenv("SSH_AUTH_SOCK")
	if sshAuthSocket == "" {
		return nil
	}

	agentConn, err := net.Dial("unix", sshAuthSocket)
	if err != nil {
		Logger.Warningf("failed to connect to SSH agent: %v", err)
		return nil
	}

	return agent.NewClient(agentConn)
}

func (c *connector) askForPassword(loc transport.Location) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password required but stdin is not a terminal")
	}
	fmt.Fprintf(c.prompt, "Password for %s: ", loc.Target())
	buf, err := term.ReadPassword(fd)
	fmt.Fprintf(c.prompt, "\n")
	return string(buf), errors.Wrap(err, "failed to read password")
}
