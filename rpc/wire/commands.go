package wire

import (
	"sort"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/puzpuzpuz/xsync/v3"
)

// VariadicArg is the declared argument name that accepts every argument not
// declared by name. It must be the last declared argument.
const VariadicArg = "*"

// Args holds the arguments of a call by name.
type Args map[string][]byte

// Command declares a remote command: its name, the order in which its
// arguments go on the wire and how it may be issued.
type Command struct {
	Name string
	// Args lists the argument names in wire order. VariadicArg may appear last.
	Args []string
	// Batchable commands may be coalesced into a single batch request.
	Batchable bool
	// Framed commands answer with a single length-prefixed frame that callers
	// read as a stream instead of a buffered value.
	Framed bool
}

// Variadic reports whether the command declares the trailing variadic slot.
func (c Command) Variadic() bool {
	return len(c.Args) > 0 && c.Args[len(c.Args)-1] == VariadicArg
}

// Bind orders args by declaration. Arguments not declared by name are
// returned as extra if the command is variadic; otherwise they are an error,
// as is a missing declared argument.
func (c Command) Bind(args Args) (ordered []Arg, extra []Arg, err error) {
	seen := 0
	for _, name := range c.Args {
		if name == VariadicArg {
			continue
		}
		v, ok := args[name]
		if !ok {
			return nil, nil, errdefs.New(errdefs.CodeProgramming, c.Name, "missing argument %q", name)
		}
		ordered = append(ordered, Arg{Name: name, Value: v})
		seen++
	}
	if seen == len(args) {
		return ordered, nil, nil
	}

	// collect the undeclared names in a stable order
	declared := make(map[string]bool, len(c.Args))
	for _, name := range c.Args {
		declared[name] = true
	}
	var names []string
	for name := range args {
		if !declared[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if !c.Variadic() {
		return nil, nil, errdefs.New(errdefs.CodeProgramming, c.Name, "unexpected arguments %s", strings.Join(names, ", "))
	}
	for _, name := range names {
		extra = append(extra, Arg{Name: name, Value: args[name]})
	}
	return ordered, extra, nil
}

// --------------------------------------------------------------------------
// Command Table
// --------------------------------------------------------------------------

// CommandTable maps command names to declarations. Declarations are
// validated when registered so mistakes surface at start-up, not at call time.
type CommandTable struct {
	commands *xsync.MapOf[string, Command]
}

// NewCommandTable creates an empty command table.
func NewCommandTable() *CommandTable {
	return &CommandTable{
		commands: xsync.NewMapOf[string, Command](),
	}
}

// Register validates and adds a command declaration. Registering the same
// name twice is an error.
func (t *CommandTable) Register(cmd Command) error {
	if !validName(cmd.Name) {
		return errdefs.New(errdefs.CodeProgramming, "register", "invalid command name %q", cmd.Name)
	}
	seen := make(map[string]bool, len(cmd.Args))
	for i, name := range cmd.Args {
		if name == VariadicArg {
			if i != len(cmd.Args)-1 {
				return errdefs.New(errdefs.CodeProgramming, "register", "%s: variadic argument must be last", cmd.Name)
			}
			if cmd.Batchable {
				return errdefs.New(errdefs.CodeProgramming, "register", "%s: variadic commands cannot be batched", cmd.Name)
			}
		} else if !validName(name) {
			return errdefs.New(errdefs.CodeProgramming, "register", "%s: invalid argument name %q", cmd.Name, name)
		}
		if seen[name] {
			return errdefs.New(errdefs.CodeProgramming, "register", "%s: duplicate argument %q", cmd.Name, name)
		}
		seen[name] = true
	}
	if _, loaded := t.commands.LoadOrStore(cmd.Name, cmd); loaded {
		return errdefs.New(errdefs.CodeProgramming, "register", "command %q already registered", cmd.Name)
	}
	return nil
}

// MustRegister registers all commands and panics on the first invalid one.
// It is meant for package-level tables built at start-up.
func (t *CommandTable) MustRegister(cmds ...Command) *CommandTable {
	for _, cmd := range cmds {
		if err := t.Register(cmd); err != nil {
			panic(err)
		}
	}
	return t
}

// Lookup returns the declaration for name.
func (t *CommandTable) Lookup(name string) (Command, bool) {
	return t.commands.Load(name)
}

// Names returns all registered command names in sorted order.
func (t *CommandTable) Names() []string {
	var names []string
	t.commands.Range(func(name string, _ Command) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// validName accepts names that cannot collide with any wire separator
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Default Commands
// --------------------------------------------------------------------------

// NullPairs is the argument of the version-independent "between" probe: the
// null-to-null range, which every server answers with a single empty line.
var NullPairs = strings.Repeat("0", 40) + "-" + strings.Repeat("0", 40)

// DefaultCommands returns a new table with the commands both the peer and
// the server speak.
func DefaultCommands() *CommandTable {
	return NewCommandTable().MustRegister(
		Command{Name: "hello"},
		Command{Name: "between", Args: []string{"pairs"}},
		Command{Name: "capabilities"},
		Command{Name: "protocaps", Args: []string{"caps"}},
		Command{Name: "batch", Args: []string{"cmds", VariadicArg}, Framed: true},
		Command{Name: "heads", Batchable: true},
		Command{Name: "lookup", Args: []string{"key"}, Batchable: true},
		Command{Name: "listkeys", Args: []string{"namespace"}, Batchable: true},
		Command{Name: "pushkey", Args: []string{"namespace", "key", "old", "new"}, Batchable: true},
		Command{Name: "unbundle", Args: []string{"heads"}},
	)
}
