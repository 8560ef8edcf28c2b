package common

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseCapabilities(t *testing.T) {
	testCases := []struct {
		line string
		want []string
		ok   bool
	}{
		{"capabilities: foo bar", []string{"bar", "foo"}, true},
		{"capabilities:batch  lookup\n", []string{"batch", "lookup"}, true},
		{"capabilities:", []string{}, true},
		{"caps: foo", nil, false},
		{"", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			caps, ok := ParseCapabilities(tc.line)
			if ok != tc.ok {
				t.Fatalf("ParseCapabilities(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			}
			if !ok {
				return
			}
			if got := caps.Sorted(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseCapabilities(%q) = %v, want %v", tc.line, got, tc.want)
			}
		})
	}
}

func TestCapabilitiesString(t *testing.T) {
	caps := NewCapabilities("lookup", "batch")
	if got := caps.String(); got != "capabilities: batch lookup" {
		t.Errorf("String() = %q", got)
	}
	parsed, ok := ParseCapabilities(caps.String())
	if !ok || !reflect.DeepEqual(parsed, caps) {
		t.Errorf("round trip failed: %v", parsed)
	}
	if !caps.Has("batch") || caps.Has("unbundle") {
		t.Errorf("Has reports wrong membership for %v", caps)
	}
}

func TestParseProtocolVersion(t *testing.T) {
	for _, v := range []ProtocolVersion{ProtocolV1, ProtocolV2} {
		got, ok := ParseProtocolVersion(v.String())
		if !ok || got != v {
			t.Errorf("ParseProtocolVersion(%q) = %q, %v", v, got, ok)
		}
	}
	if _, ok := ParseProtocolVersion("ssh-v3"); ok {
		t.Errorf("expected unknown version to be rejected")
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error"} {
		if _, err := ParseLogLevel(level); err != nil {
			t.Errorf("ParseLogLevel(%q): %v", level, err)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Errorf("expected error for unknown level")
	}
}

func TestStderrLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newStderrLogger("peer", &buf)

	l.Debugf("hidden %d", 1)
	l.Warningf("shown %d", 2)
	l.SetLevel(logger.DEBUG)
	l.Debugf("now %s", "visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[0], "WARN  | peer      | shown 2") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "DEBUG | peer      | now visible") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultClientConfig()
	out := cfg.String()
	for _, want := range []string{"CONNECTION", "Noise Budget", "500 lines", DefaultSSHCommand} {
		if !strings.Contains(out, want) {
			t.Errorf("client config table misses %q:\n%s", want, out)
		}
	}

	srv := ServerConfig{Repository: "/srv/repo", Stdio: true, LogLevel: "info"}
	if !strings.Contains(srv.String(), "/srv/repo") {
		t.Errorf("server config table misses repository:\n%s", srv.String())
	}
}
