package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/wirepeer/cmd/remote"
	"github.com/ValentinKolb/wirepeer/cmd/serve"
	statecmd "github.com/ValentinKolb/wirepeer/cmd/state"
	"github.com/ValentinKolb/wirepeer/cmd/util"
	"github.com/ValentinKolb/wirepeer/lib/state"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "wpeer",
		Short: "talk to repositories over the ssh wire protocol",
		Long: fmt.Sprintf(`wpeer (v%s)

A client and server for the line based wire protocol spoken over ssh
stdio pipes, with command batching, protocol upgrades and resumable
multi-step operations.`, Version),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of wpeer",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wpeer v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// the operations that can be left unfinished
	registry := state.NewDefaultRegistry()
	if err := remote.RegisterStates(registry); err != nil {
		panic(err)
	}

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(remote.RemoteCommands)
	RootCmd.AddCommand(statecmd.NewStateCommands(registry))
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "repository"
	RootCmd.PersistentFlags().StringP(key, "R", "", util.WrapString("The local repository (default: the one containing the working directory)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	key = "metrics"
	RootCmd.PersistentFlags().Bool(key, false, util.WrapString("Print the request counters in the Prometheus text format to stderr on exit"))
	_ = viper.BindPFlags(RootCmd.PersistentFlags())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()
	util.WriteMetrics(os.Stderr)
	if err != nil {
		fmt.Fprint(os.Stderr, util.UserMessage(err))
		os.Exit(255)
	}
}
