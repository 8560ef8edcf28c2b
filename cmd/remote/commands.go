package remote

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ValentinKolb/wirepeer/rpc/client"
	"github.com/spf13/cobra"
)

var (
	capsCmd = &cobra.Command{
		Use:   "caps [location]",
		Short: "Show the negotiated protocol and the capabilities of the remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("protocol: %s\n", peer.Version())
			fmt.Printf("capabilities: %s\n", strings.Join(peer.Capabilities().Sorted(), " "))
			return nil
		},
	}
	headsCmd = &cobra.Command{
		Use:   "heads [location]",
		Short: "Show the heads of the remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			heads, err := peer.Heads()
			if err != nil {
				return err
			}
			for _, head := range heads {
				fmt.Println(head)
			}
			return nil
		},
	}
	lookupCmd = &cobra.Command{
		Use:   "lookup [location] [key]...",
		Short: "Resolve keys (bookmarks, tags, id prefixes or '.') to ids",
		Long:  "Resolve keys to ids. All lookups are sent in a single batch if the remote supports batching.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := args[1:]
			futures := make([]*client.Future[string], len(keys))
			err := client.WithExecutor(peer, func(e *client.Executor) error {
				for i, key := range keys {
					futures[i] = client.Submit(e, client.LookupMethod, key)
				}
				return nil
			})
			if err != nil {
				return err
			}

			failed := 0
			for i, f := range futures {
				id, err := f.Result()
				if err != nil {
					fmt.Printf("%s\terror: %v\n", keys[i], err)
					failed++
					continue
				}
				fmt.Printf("%s\t%s\n", keys[i], id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d lookups failed", failed, len(keys))
			}
			return nil
		},
	}
	listKeysCmd = &cobra.Command{
		Use:   "listkeys [location] [namespace]",
		Short: "List the keys of a namespace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := peer.ListKeys(args[1])
			if err != nil {
				return err
			}
			names := make([]string, 0, len(keys))
			for k := range keys {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				fmt.Printf("%s\t%s\n", k, keys[k])
			}
			return nil
		},
	}
	pushKeyCmd = &cobra.Command{
		Use:   "pushkey [location] [namespace] [key] [old] [new]",
		Short: "Set a key if it still has the expected value",
		Long:  "Set a key if it still has the expected value. An empty old value creates the key, an empty new value deletes it.",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := peer.PushKey(client.PushKeyArgs{
				Namespace: args[1],
				Key:       args[2],
				Old:       args[3],
				New:       args[4],
			})
			if err != nil {
				return err
			}
			fmt.Printf("updated=%v\n", ok)
			return nil
		},
	}
)
