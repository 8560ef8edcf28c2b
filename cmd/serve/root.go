package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/wirepeer/cmd/util"
	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/rpc/common"
	"github.com/ValentinKolb/wirepeer/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Serve a repository over stdin and stdout",
		Long:    `Serve the repository given by -R over stdin and stdout. This is the command an ssh client starts on the remote host. The configuration can be set via command line flags or environment variables. The format of the environment variables is WPEER_<flag> (e.g. WPEER_ACCEPT_V2=true)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "stdio"
	ServeCmd.Flags().Bool(key, false, cmdUtil.WrapString("Serve the wire protocol on stdin and stdout (required)"))

	key = "accept-v2"
	ServeCmd.Flags().Bool(key, false, cmdUtil.WrapString("Accept upgrade requests to the v2 protocol instead of declining them"))

	key = "disable-batch"
	ServeCmd.Flags().Bool(key, false, cmdUtil.WrapString("Do not advertise the batch capability and reject batch requests"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Repository = viper.GetString("repository")
	serveCmdConfig.Stdio = viper.GetBool("stdio")
	serveCmdConfig.AcceptV2 = viper.GetBool("accept-v2")
	serveCmdConfig.DisableBatch = viper.GetBool("disable-batch")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if !serveCmdConfig.Stdio {
		return errdefs.New(errdefs.CodeAbort, "serve", "only --stdio is supported")
	}
	return nil
}

// run serves the repository until the client closes stdin
func run(_ *cobra.Command, _ []string) error {
	r, err := cmdUtil.OpenRepo()
	if err != nil {
		return err
	}
	serveCmdConfig.Repository = r.Root()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := server.NewServer(*serveCmdConfig, r)
	if err := s.Serve(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil {
		// the session already reported the failure on stderr
		os.Exit(255)
	}
	return nil
}
