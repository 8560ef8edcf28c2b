package state

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/repo"
	"github.com/ValentinKolb/wirepeer/lib/serializer"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("state")

// CmdState is the state file of a multi-step command. The file lives in the
// private storage directory of the repository and holds a decimal version
// line followed by exactly one encoded payload.
//
// CmdState does no locking. Callers hold the repository lock while saving,
// reading or deleting.
type CmdState struct {
	repo       *repo.Repo
	slot       string
	serializer serializer.IStateSerializer
}

// NewCmdState returns the state stored in slot. The payload encoding is
// taken from the state.format setting of the repository.
func NewCmdState(r *repo.Repo, slot string) (*CmdState, error) {
	if slot == "" || strings.ContainsAny(slot, `/\`) {
		return nil, errdefs.New(errdefs.CodeProgramming, "state", "invalid state slot %q", slot)
	}
	format := r.Config().GetString("state.format")
	s, ok := serializer.ByName(format)
	if !ok {
		return nil, errdefs.New(errdefs.CodeAbort, "state", "unknown state format '%s'", format)
	}
	return &CmdState{repo: r, slot: slot, serializer: s}, nil
}

// Slot returns the name of the state file.
func (c *CmdState) Slot() string {
	return c.slot
}

// Save writes payload with the given version, replacing the file atomically.
func (c *CmdState) Save(version int, payload any) error {
	return c.SaveVersion(version, payload)
}

// SaveVersion is Save for a version of unknown type, e.g. one read from
// configuration. Anything but an integer is a programming error.
func (c *CmdState) SaveVersion(version any, payload any) error {
	v, ok := integer(version)
	if !ok {
		return errdefs.New(errdefs.CodeProgramming, "state", "version of state file should be an integer, got %T", version)
	}

	err := c.repo.WriteAtomic(c.slot, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "%d\n", v); err != nil {
			return err
		}
		return c.serializer.Encode(w, payload)
	})
	if err != nil {
		return errdefs.Wrap(errdefs.CodeAbort, "state", err, "cannot write state file %s", c.slot)
	}
	Logger.Debugf("saved %s (version %d, %s)", c.slot, v, c.serializer.Name())
	return nil
}

// Read returns the payload of the state file.
func (c *CmdState) Read() (any, error) {
	_, payload, err := c.ReadVersion()
	return payload, err
}

// ReadVersion returns the version and the payload of the state file. A
// version line that is not an integer or a payload that is not exactly one
// value is reported as CorruptedState.
func (c *CmdState) ReadVersion() (int64, any, error) {
	f, err := c.repo.OpenFile(c.slot)
	if err != nil {
		return 0, nil, errdefs.Wrap(errdefs.CodeAbort, "state", err, "cannot read state file %s", c.slot)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, nil, errdefs.Wrap(errdefs.CodeAbort, "state", err, "cannot read state file %s", c.slot)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, nil, errdefs.New(errdefs.CodeCorruptedState, "state", "unknown version of state file found")
	}

	values, err := c.serializer.DecodeAll(br)
	if err != nil {
		return 0, nil, errdefs.Wrap(errdefs.CodeCorruptedState, "state", err, "malformed state file %s", c.slot)
	}
	if len(values) != 1 {
		return 0, nil, errdefs.New(errdefs.CodeCorruptedState, "state", "state file %s holds %d values, expected one", c.slot, len(values))
	}
	return version, values[0], nil
}

// Exists reports whether the state file exists.
func (c *CmdState) Exists() bool {
	return c.repo.Exists(c.slot)
}

// Delete removes the state file. A missing file is not an error.
func (c *CmdState) Delete() error {
	if err := c.repo.Remove(c.slot); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errdefs.Wrap(errdefs.CodeAbort, "state", err, "cannot delete state file %s", c.slot)
	}
	return nil
}

// integer converts any Go integer type to int64
func integer(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return 0, false
		}
		return int64(u), true
	default:
		return 0, false
	}
}
