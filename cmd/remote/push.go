package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/wirepeer/cmd/util"
	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/repo"
	"github.com/ValentinKolb/wirepeer/lib/state"
	"github.com/ValentinKolb/wirepeer/rpc/client"
	"github.com/spf13/cobra"
)

const (
	pushSlot         = "pushstate"
	pushStateVersion = 1
	pushHint         = "use 'wpeer state continue' or 'wpeer state abort'"
)

var (
	registry *state.Registry
	force    bool

	pushCmd = &cobra.Command{
		Use:   "push [location] [bundle]",
		Short: "Push a bundle file to the remote",
		Long: `Push a bundle file to the remote. The push is refused if the heads of the remote change between reading them and sending the bundle, unless --force is given.

An interrupted push is recorded in the local repository and can be resumed with 'wpeer state continue' or dropped with 'wpeer state abort'.`,
		Args: cobra.ExactArgs(2),
		RunE: runPush,
	}
)

func init() {
	pushCmd.Flags().BoolVar(&force, "force", false, "Push even if the remote heads changed")
}

// RegisterStates adds the operations of the remote commands that can be
// left unfinished to reg.
func RegisterStates(reg *state.Registry) error {
	registry = reg
	return reg.Register(&state.Descriptor{
		Name:         "push",
		Slot:         pushSlot,
		ContinueFlag: true,
		CmdHint:      pushHint,
		StatusHint:   "To continue:    wpeer state continue\nTo abort:       wpeer state abort",
		Continue:     continuePush,
		Abort:        abortPush,
	})
}

// pushState is the payload of the push state file
type pushState struct {
	Location string
	Bundle   string
	// Heads the bundle was built against, nil for a forced push
	Heads []string
}

func (s pushState) encode() map[string]any {
	payload := map[string]any{
		"location": s.Location,
		"bundle":   s.Bundle,
	}
	if s.Heads != nil {
		payload["heads"] = s.Heads
	}
	return payload
}

func decodePushState(v any) (pushState, error) {
	corrupted := errdefs.New(errdefs.CodeCorruptedState, "push", "malformed push state")
	m, ok := v.(map[string]any)
	if !ok {
		return pushState{}, corrupted
	}
	var s pushState
	if s.Location, ok = m["location"].(string); !ok {
		return pushState{}, corrupted
	}
	if s.Bundle, ok = m["bundle"].(string); !ok {
		return pushState{}, corrupted
	}
	if raw, present := m["heads"]; present {
		heads, ok := raw.([]any)
		if !ok {
			return pushState{}, corrupted
		}
		s.Heads = make([]string, len(heads))
		for i, h := range heads {
			if s.Heads[i], ok = h.(string); !ok {
				return pushState{}, corrupted
			}
		}
	}
	return s, nil
}

func runPush(cmd *cobra.Command, args []string) error {
	r, err := util.OpenRepo()
	if err != nil {
		return err
	}
	release, err := r.Lock(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	if err := registry.CheckUnfinished(r, false); err != nil {
		return err
	}

	bundle, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}
	ps := pushState{Location: args[0], Bundle: bundle}
	if !force {
		if ps.Heads, err = peer.Heads(); err != nil {
			return err
		}
	}

	st, err := state.NewCmdState(r, pushSlot)
	if err != nil {
		return err
	}
	if err := st.Save(pushStateVersion, ps.encode()); err != nil {
		return err
	}
	return push(peer, st, ps)
}

// push sends the bundle and drops the state file once the remote took it
func push(p *client.Peer, st *state.CmdState, ps pushState) error {
	f, err := os.Open(ps.Bundle)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeAbort, "push", err, "cannot open bundle").WithHint(pushHint)
	}
	defer f.Close()

	result, err := p.Unbundle(ps.Heads, f)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeOf(err), "push", err, "push to %s failed", ps.Location).WithHint(pushHint)
	}
	if err := st.Delete(); err != nil {
		return err
	}
	fmt.Printf("pushed %s to %s (result %d)\n", filepath.Base(ps.Bundle), ps.Location, result)
	return nil
}

func continuePush(r *repo.Repo) error {
	st, err := state.NewCmdState(r, pushSlot)
	if err != nil {
		return err
	}
	payload, err := st.Read()
	if err != nil {
		return err
	}
	ps, err := decodePushState(payload)
	if err != nil {
		return err
	}

	p, err := util.Connect(context.Background(), ps.Location)
	if err != nil {
		return err
	}
	defer p.Close()
	return push(p, st, ps)
}

func abortPush(r *repo.Repo) error {
	st, err := state.NewCmdState(r, pushSlot)
	if err != nil {
		return err
	}
	if err := st.Delete(); err != nil {
		return err
	}
	fmt.Println("push aborted")
	return nil
}
