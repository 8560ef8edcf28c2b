package ssh

import (
	"io"

	"github.com/ValentinKolb/wirepeer/rpc/transport"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// sessionProcess adapts a running SSH session to transport.Process. Waiting
// also closes the client connection.
type sessionProcess struct {
	client  io.Closer
	session *ssh.Session
}

func (p *sessionProcess) Wait() error {
	err := p.session.Wait()
	_ = p.session.Close()
	_ = p.client.Close()
	if _, ok := err.(*ssh.ExitMissingError); ok {
		return nil
	}
	return errors.Wrap(err, "remote command failed")
}

func (p *sessionProcess) Kill() error {
	_ = p.session.Signal(ssh.SIGKILL)
	return p.client.Close()
}

// nopCloser turns a session output into an io.ReadCloser. The output ends
// when the session does, so closing it is a no-op.
type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// sessionStreams requests the three standard streams of session
func sessionStreams(client io.Closer, session *ssh.Session) (transport.Streams, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return transport.Streams{}, errors.Wrap(err, "failed to open stdin")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return transport.Streams{}, errors.Wrap(err, "failed to open stdout")
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return transport.Streams{}, errors.Wrap(err, "failed to open stderr")
	}
	return transport.Streams{
		Proc:   &sessionProcess{client: client, session: session},
		Stdin:  stdin,
		Stdout: nopCloser{stdout},
		Stderr: nopCloser{stderr},
	}, nil
}
