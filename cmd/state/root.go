package state

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/wirepeer/cmd/util"
	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/repo"
	repostate "github.com/ValentinKolb/wirepeer/lib/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewStateCommands creates the state command group working on the
// operations known to reg.
func NewStateCommands(reg *repostate.Registry) *cobra.Command {
	var commit bool

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and resolve unfinished operations",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the unfinished operation, if any",
		Long:  "Show the unfinished operation, if any. Operations listed in the status.skipstates setting of the repository are not reported.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := util.OpenRepo()
			if err != nil {
				return err
			}
			d, msg, err := reg.RepoState(r)
			if err != nil {
				return err
			}
			if d == nil {
				fmt.Println("no operation in progress")
				return nil
			}
			fmt.Printf("# The repository is in an unfinished *%s* state.\n\n", d.Name)
			fmt.Println(msg)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show [operation]",
		Short: "Print the state file of an operation as YAML",
		Long:  "Print the state file of an operation as YAML. Without an argument the operation in progress is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := util.OpenRepo()
			if err != nil {
				return err
			}
			d, err := pick(reg, r, args)
			if err != nil {
				return err
			}
			st, err := d.State(r)
			if err != nil {
				return err
			}
			version, payload, err := st.ReadVersion()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(map[string]any{
				"operation": d.Name,
				"version":   version,
				"state":     payload,
			})
		},
	}

	continueCmd := &cobra.Command{
		Use:   "continue",
		Short: "Resume the interrupted operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return locked(cmd, func(r *repo.Repo) error {
				d, err := pick(reg, r, nil)
				if err != nil {
					return err
				}
				if !d.ContinueFlag || d.Continue == nil {
					return errdefs.New(errdefs.CodeAbort, "continue", "%s does not support continuing", d.Name).WithHint(d.Hint())
				}
				return d.Continue(r)
			})
		},
	}

	abortCmd := &cobra.Command{
		Use:   "abort",
		Short: "Undo the interrupted operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return locked(cmd, func(r *repo.Repo) error {
				d, err := pick(reg, r, nil)
				if err != nil {
					return err
				}
				if d.Abort == nil {
					return errdefs.New(errdefs.CodeAbort, "abort", "%s cannot be aborted here", d.Name).WithHint(d.Hint())
				}
				return d.Abort(r)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the state of clearable operations",
		Long:  "Drop the state of clearable operations such as an interrupted update. Fails if an operation that cannot be cleared is in progress.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return locked(cmd, reg.ClearUnfinished)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Fail if an unfinished operation blocks new commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := util.OpenRepo()
			if err != nil {
				return err
			}
			return reg.CheckUnfinished(r, commit)
		},
	}
	checkCmd.Flags().BoolVar(&commit, "commit", false, "Ignore operations that allow committing")

	stateCmd.AddCommand(statusCmd, showCmd, continueCmd, abortCmd, clearCmd, checkCmd)
	return stateCmd
}

// pick returns the named operation, or the one in progress
func pick(reg *repostate.Registry, r *repo.Repo, args []string) (*repostate.Descriptor, error) {
	if len(args) == 1 {
		d, ok := reg.Lookup(args[0])
		if !ok {
			return nil, errdefs.New(errdefs.CodeAbort, "state", "unknown operation '%s'", args[0])
		}
		return d, nil
	}
	d, err := reg.DetectInProgress(r)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errdefs.New(errdefs.CodeAbort, "state", "no operation in progress")
	}
	return d, nil
}

// locked runs fn with the repository lock held
func locked(cmd *cobra.Command, fn func(r *repo.Repo) error) error {
	r, err := util.OpenRepo()
	if err != nil {
		return err
	}
	release, err := r.Lock(cmd.Context())
	if err != nil {
		return err
	}
	defer release()
	return fn(r)
}
