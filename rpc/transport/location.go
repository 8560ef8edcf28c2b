package transport

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
)

// Location is a parsed ssh://[user@]host[:port][/path] remote.
type Location struct {
	User string
	Host string
	Port int // 0 means the default port
	Path string
}

// ParseLocation parses and validates an ssh:// URL. Passwords in the URL and
// hosts or users that an ssh client could take for an option are rejected.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "ssh" || u.Hostname() == "" {
		return Location{}, errdefs.New(errdefs.CodeAbort, "connect", "couldn't parse location %s", raw)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return Location{}, errdefs.New(errdefs.CodeAbort, "connect", "password in URL not supported")
	}

	loc := Location{
		User: u.User.Username(),
		Host: u.Hostname(),
		Path: strings.TrimPrefix(u.Path, "/"),
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Location{}, errdefs.New(errdefs.CodeAbort, "connect", "invalid port in %s", raw)
		}
		loc.Port = port
	}
	if strings.HasPrefix(loc.Host, "-") || strings.HasPrefix(loc.User, "-") {
		return Location{}, errdefs.New(errdefs.CodeAbort, "connect", "potentially unsafe url: %q", raw)
	}
	if loc.Path == "" {
		loc.Path = "."
	}
	return loc, nil
}

// Target returns "user@host" or "host".
func (l Location) Target() string {
	if l.User != "" {
		return l.User + "@" + l.Host
	}
	return l.Host
}

// Address returns host:port for a direct TCP connection.
func (l Location) Address() string {
	port := l.Port
	if port == 0 {
		port = 22
	}
	return l.Host + ":" + strconv.Itoa(port)
}

// String formats the location as a URL again.
func (l Location) String() string {
	var sb strings.Builder
	sb.WriteString("ssh://")
	sb.WriteString(l.Target())
	if l.Port != 0 {
		sb.WriteString(":" + strconv.Itoa(l.Port))
	}
	sb.WriteString("/" + l.Path)
	return sb.String()
}

// --------------------------------------------------------------------------
// Shell Quoting
// --------------------------------------------------------------------------

var shellSafe = regexp.MustCompile(`^[a-zA-Z0-9@%_+=:,./-]*$`)

// ServerQuote quotes s for the remote shell, which is assumed to be sh.
// The empty string stays empty.
func ServerQuote(s string) string {
	if s == "" || shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellQuote quotes s for the local sh. The empty string becomes ''.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return ServerQuote(s)
}

// RemoteCommand returns the command line that starts the stdio server for
// path on the remote host.
func RemoteCommand(remoteCmd, path string) string {
	return ServerQuote(remoteCmd) + " -R " + ServerQuote(path) + " serve --stdio"
}
