package util

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/repo"
	"github.com/ValentinKolb/wirepeer/rpc/client"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/transport"
	"github.com/ValentinKolb/wirepeer/rpc/transport/exec"
	"github.com/ValentinKolb/wirepeer/rpc/transport/inproc"
	"github.com/ValentinKolb/wirepeer/rpc/transport/ssh"
	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and binds WPEER_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("wpeer")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper and applies the log level
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// SetupClientFlags adds the flags that control how remotes are reached
func SetupClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()

	key := "ssh"
	cmd.PersistentFlags().String(key, defaults.SSHCommand, WrapString("The ssh client (with arguments) used to reach ssh:// remotes"))

	key = "remotecmd"
	cmd.PersistentFlags().String(key, defaults.RemoteCmd, WrapString("The command started on the remote host"))

	key = "ssh-native"
	cmd.PersistentFlags().Bool(key, false, WrapString("Use the built-in SSH client instead of the ssh binary"))

	key = "known-hosts"
	cmd.PersistentFlags().String(key, "", WrapString("known_hosts file of the built-in SSH client (default ~/.ssh/known_hosts)"))

	key = "advertise-v2"
	cmd.PersistentFlags().Bool(key, false, WrapString("Ask the remote to upgrade to the v2 protocol during the handshake"))

	key = "noise-budget"
	cmd.PersistentFlags().Int(key, defaults.NoiseBudget, WrapString("How many lines of banner output are skipped while waiting for the handshake reply"))

	key = "ssh-error-hint"
	cmd.PersistentFlags().String(key, "", WrapString("Hint shown when the remote does not answer the handshake"))

	key = "debug-peer-request"
	cmd.PersistentFlags().Bool(key, false, WrapString("Trace every request sent to the remote (needs --log-level debug)"))
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		SSHCommand:       viper.GetString("ssh"),
		RemoteCmd:        viper.GetString("remotecmd"),
		NativeSSH:        viper.GetBool("ssh-native"),
		AdvertiseV2:      viper.GetBool("advertise-v2"),
		NoiseBudget:      viper.GetInt("noise-budget"),
		SSHErrorHint:     viper.GetString("ssh-error-hint"),
		DebugPeerRequest: viper.GetBool("debug-peer-request"),
		LogLevel:         viper.GetString("log-level"),
		Metrics:          viper.GetBool("metrics"),
	}
}

// GetConnector picks the connector for a remote location: ssh:// URLs go
// through the ssh binary (or the built-in client), anything else is a local
// repository served in process.
func GetConnector(location string, config common.ClientConfig) (transport.IClientConnector, error) {
	if !strings.Contains(location, "://") {
		return inproc.NewInProcConnector(common.ServerConfig{
			Repository: location,
			AcceptV2:   true,
			LogLevel:   config.LogLevel,
		}), nil
	}
	if !strings.HasPrefix(location, "ssh://") {
		return nil, errdefs.New(errdefs.CodeAbort, "connect", "unsupported remote %s", location)
	}
	if config.NativeSSH {
		return ssh.NewSSHConnector(viper.GetString("known-hosts"), os.Stderr), nil
	}
	return exec.NewExecConnector(), nil
}

// Connect dials the remote at location. Remote output is written to stderr.
func Connect(ctx context.Context, location string) (*client.Peer, error) {
	config := GetClientConfig()
	connector, err := GetConnector(location, config)
	if err != nil {
		return nil, err
	}
	return client.Dial(ctx, connector, location, config, os.Stderr)
}

// --------------------------------------------------------------------------
// Repository
// --------------------------------------------------------------------------

// OpenRepo opens the repository given by -R or the one containing the
// working directory.
func OpenRepo() (*repo.Repo, error) {
	if root := viper.GetString("repository"); root != "" {
		return repo.Open(root)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return repo.Find(wd)
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// UserMessage formats err for the terminal: "abort: <message>" plus the
// hint, if there is one.
func UserMessage(err error) string {
	msg := err.Error()
	if e, ok := err.(*errdefs.Error); ok {
		msg = e.Msg
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
	}
	out := "abort: " + msg + "\n"
	if hint := errdefs.HintOf(err); hint != "" {
		out += "(" + hint + ")\n"
	}
	return out
}

// WriteMetrics dumps all counters in the Prometheus text format if metrics
// are enabled
func WriteMetrics(w io.Writer) {
	if viper.GetBool("metrics") {
		metrics.WritePrometheus(w, false)
	}
}
