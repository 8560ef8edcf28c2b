package ssh

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/transport"
)

func TestClientConfig(t *testing.T) {
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(knownHosts, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("SSH_AUTH_SOCK", "")

	c := NewSSHConnector(knownHosts, io.Discard).(*connector)
	cfg, err := c.clientConfig(transport.Location{User: "alice", Host: "example.com"})
	if err != nil {
		t.Fatalf("clientConfig: %v", err)
	}
	if cfg.User != "alice" {
		t.Errorf("User = %q, want alice", cfg.User)
	}
	if len(cfg.Auth) != 1 {
		t.Errorf("expected only the password method without an agent, got %d", len(cfg.Auth))
	}
	if cfg.HostKeyCallback == nil {
		t.Errorf("host keys must be verified")
	}
}

func TestClientConfigMissingKnownHosts(t *testing.T) {
	c := NewSSHConnector(filepath.Join(t.TempDir(), "missing"), io.Discard).(*connector)
	if _, err := c.clientConfig(transport.Location{Host: "example.com"}); err == nil {
		t.Errorf("expected an error for a missing known_hosts file")
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	c := NewSSHConnector("", io.Discard)
	_, err := c.Connect(context.Background(), "ssh://user:pw@example.com/repo", common.DefaultClientConfig())
	if !errors.Is(err, errdefs.ErrAbort) {
		t.Errorf("expected Abort, got %v", err)
	}
	if c.GetName() != "ssh" {
		t.Errorf("GetName = %q", c.GetName())
	}
}
