package remote

import (
	"context"
	"os"
	"os/signal"

	"github.com/ValentinKolb/wirepeer/cmd/util"
	"github.com/ValentinKolb/wirepeer/rpc/client"
	"github.com/spf13/cobra"
)

var (
	peer *client.Peer

	// RemoteCommands represents the remote command group. The first argument
	// of every subcommand is the location of the remote.
	RemoteCommands = &cobra.Command{
		Use:                "remote",
		Short:              "Talk to a remote repository",
		Long:               `Talk to a remote repository. Locations are ssh://[user@]host[:port]/path URLs or paths of local repositories, which are served in process.`,
		PersistentPreRunE:  setupPeer,
		PersistentPostRunE: closePeer,
	}
)

func init() {
	// Add common client flags to the remote command
	util.SetupClientFlags(RemoteCommands)

	// Add subcommands
	RemoteCommands.AddCommand(capsCmd)
	RemoteCommands.AddCommand(headsCmd)
	RemoteCommands.AddCommand(lookupCmd)
	RemoteCommands.AddCommand(listKeysCmd)
	RemoteCommands.AddCommand(pushKeyCmd)
	RemoteCommands.AddCommand(pushCmd)
}

// setupPeer connects to the remote named by the first argument
func setupPeer(cmd *cobra.Command, args []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if len(args) == 0 || cmd.Annotations["connect"] == "manual" {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	peer, err = util.Connect(ctx, args[0])
	return err
}

// closePeer closes the connection and forwards what the remote still had to say
func closePeer(_ *cobra.Command, _ []string) error {
	if peer == nil {
		return nil
	}
	return peer.Close()
}
