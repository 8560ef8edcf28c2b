package state

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/repo"
)

// MergeOp is the name of the operation detected from the working copy
// parents instead of a state file.
const MergeOp = "merge"

// Descriptor describes a multi-step operation that can be interrupted.
type Descriptor struct {
	// Name of the operation, also the command that continues or aborts it
	Name string
	// Slot is the state file whose existence marks the operation unfinished.
	// It is empty for merge.
	Slot string

	// Clearable operations are dropped by ClearUnfinished
	Clearable bool
	// AllowCommit operations do not block a commit
	AllowCommit bool
	// ReportOnly operations are only reported by RepoState
	ReportOnly bool
	// ContinueFlag is set if the operation supports --continue
	ContinueFlag bool
	// StopFlag is set if the operation supports --stop
	StopFlag bool

	// CmdMsg replaces "<name> in progress"
	CmdMsg string
	// CmdHint replaces the --continue/--abort hint
	CmdHint string
	// StatusHint replaces the status message listing the next steps
	StatusHint string

	// Abort undoes the operation, if supported
	Abort func(r *repo.Repo) error
	// Continue finishes the operation, if supported
	Continue func(r *repo.Repo) error
}

// Msg returns the message reported when the operation blocks a command.
func (d *Descriptor) Msg() string {
	if d.CmdMsg != "" {
		return d.CmdMsg
	}
	return fmt.Sprintf("%s in progress", d.Name)
}

// Hint returns the hint reported when the operation blocks a command.
func (d *Descriptor) Hint() string {
	if d.CmdHint != "" {
		return d.CmdHint
	}
	return fmt.Sprintf("use 'wpeer %s --continue' or 'wpeer %s --abort'", d.Name, d.Name)
}

// StatusMsg returns the next steps shown by a verbose status.
func (d *Descriptor) StatusMsg() string {
	if d.StatusHint != "" {
		return d.StatusHint
	}
	msg := fmt.Sprintf("To continue:    wpeer %s --continue\nTo abort:       wpeer %s --abort", d.Name, d.Name)
	if d.StopFlag {
		msg += fmt.Sprintf("\nTo stop:        wpeer %s --stop", d.Name)
	}
	return msg
}

// ContinueMsg returns the command that continues the operation.
func (d *Descriptor) ContinueMsg() string {
	return fmt.Sprintf("wpeer %s --continue", d.Name)
}

// IsUnfinished reports whether the operation is in progress in r.
func (d *Descriptor) IsUnfinished(r *repo.Repo) (bool, error) {
	if d.Name == MergeOp {
		parents, err := r.Parents()
		if err != nil {
			return false, err
		}
		return len(parents) > 1, nil
	}
	return r.Exists(d.Slot), nil
}

// State returns the state file of the operation.
func (d *Descriptor) State(r *repo.Repo) (*CmdState, error) {
	if d.Slot == "" {
		return nil, errdefs.New(errdefs.CodeProgramming, "state", "%s has no state file", d.Name)
	}
	return NewCmdState(r, d.Slot)
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry is the ordered list of operations checked for being unfinished.
// Every registration except merge is put in front, so the most recently
// registered operation is found first; merge is always checked last.
//
// A Registry is constructed explicitly and passed to its users:
//
//	reg := state.NewDefaultRegistry()
//	reg.Register(&state.Descriptor{Name: "push", Slot: "pushstate"})
//	if err := reg.CheckUnfinished(r, false); err != nil {
//		return err
//	}
type Registry struct {
	mu  sync.RWMutex
	ops []*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry creates a registry knowing the built-in operations:
// update, bisect and merge.
func NewDefaultRegistry() *Registry {
	reg := NewRegistry()
	for _, d := range DefaultDescriptors() {
		if err := reg.Register(d); err != nil {
			panic("state: invalid default descriptor: " + err.Error())
		}
	}
	return reg
}

// DefaultDescriptors returns fresh copies of the built-in operations.
func DefaultDescriptors() []*Descriptor {
	return []*Descriptor{
		{
			Name:       "update",
			Slot:       "updatestate",
			Clearable:  true,
			CmdMsg:     "last update was interrupted",
			CmdHint:    "use 'wpeer update' to get a consistent checkout",
			StatusHint: "To continue:    wpeer update",
		},
		{
			Name:        "bisect",
			Slot:        "bisect.state",
			AllowCommit: true,
			ReportOnly:  true,
			StatusHint: "To mark the changeset good:    wpeer bisect --good\n" +
				"To mark the changeset bad:     wpeer bisect --bad\n" +
				"To abort:                      wpeer bisect --reset\n",
		},
		{
			Name:        MergeOp,
			Clearable:   true,
			AllowCommit: true,
			CmdMsg:      "outstanding uncommitted merge",
			CmdHint:     "use 'wpeer commit' or 'wpeer merge --abort'",
		},
	}
}

// Register adds d. Registering a name twice is a programming error.
func (reg *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return errdefs.New(errdefs.CodeProgramming, "register", "descriptor without name")
	}
	if d.Name != MergeOp && d.Slot == "" {
		return errdefs.New(errdefs.CodeProgramming, "register", "%s has no state file", d.Name)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, op := range reg.ops {
		if op.Name == d.Name {
			return errdefs.New(errdefs.CodeProgramming, "register", "%s is already registered", d.Name)
		}
	}

	if d.Name == MergeOp {
		reg.ops = append(reg.ops, d)
	} else {
		reg.ops = append([]*Descriptor{d}, reg.ops...)
	}
	Logger.Debugf("registered unfinished state %s", d.Name)
	return nil
}

// Descriptors returns the registered operations in check order.
func (reg *Registry) Descriptors() []*Descriptor {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return append([]*Descriptor(nil), reg.ops...)
}

// Lookup returns the operation with the given name.
func (reg *Registry) Lookup(name string) (*Descriptor, bool) {
	for _, d := range reg.Descriptors() {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// DetectInProgress returns the first operation in check order that is
// unfinished in r, ignoring the names in skip. It returns nil if nothing is
// in progress.
func (reg *Registry) DetectInProgress(r *repo.Repo, skip ...string) (*Descriptor, error) {
	skipped := make(map[string]struct{}, len(skip))
	for _, name := range skip {
		skipped[name] = struct{}{}
	}
	for _, d := range reg.Descriptors() {
		if _, ok := skipped[d.Name]; ok {
			continue
		}
		unfinished, err := d.IsUnfinished(r)
		if err != nil {
			return nil, err
		}
		if unfinished {
			return d, nil
		}
	}
	return nil, nil
}

// CheckUnfinished fails if an operation in progress forbids starting a new
// one. Non-clearable operations are checked first so they take precedence
// over clearable ones. If commit is set, operations allowing commits are
// ignored.
func (reg *Registry) CheckUnfinished(r *repo.Repo, commit bool) error {
	ops := reg.Descriptors()
	for _, clearable := range []bool{false, true} {
		for _, d := range ops {
			if d.Clearable != clearable || d.ReportOnly || (commit && d.AllowCommit) {
				continue
			}
			unfinished, err := d.IsUnfinished(r)
			if err != nil {
				return err
			}
			if unfinished {
				return unfinishedError(d)
			}
		}
	}
	return nil
}

// ClearUnfinished deletes the state files of clearable operations. It
// fails without deleting anything if a non-clearable operation is in
// progress.
func (reg *Registry) ClearUnfinished(r *repo.Repo) error {
	ops := reg.Descriptors()
	for _, d := range ops {
		if d.ReportOnly || d.Clearable {
			continue
		}
		unfinished, err := d.IsUnfinished(r)
		if err != nil {
			return err
		}
		if unfinished {
			return unfinishedError(d)
		}
	}

	for _, d := range ops {
		if d.Name == MergeOp || d.ReportOnly || !d.Clearable {
			continue
		}
		if !r.Exists(d.Slot) {
			continue
		}
		Logger.Infof("clearing unfinished %s", d.Name)
		if err := r.Remove(d.Slot); err != nil {
			return errdefs.Wrap(errdefs.CodeAbort, "state", err, "cannot delete state file %s", d.Slot)
		}
	}
	return nil
}

// RepoState returns the operation in progress and its status message. The
// operations listed in the status.skipstates setting are not reported.
func (reg *Registry) RepoState(r *repo.Repo) (*Descriptor, string, error) {
	skip := r.Config().GetStringSlice("status.skipstates")
	d, err := reg.DetectInProgress(r, skip...)
	if err != nil || d == nil {
		return nil, "", err
	}
	return d, d.StatusMsg(), nil
}

func unfinishedError(d *Descriptor) error {
	return errdefs.New(errdefs.CodeUnfinished, d.Name, "%s", d.Msg()).WithHint(d.Hint())
}
