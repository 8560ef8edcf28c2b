package repo

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/lockmgr"
	"github.com/ValentinKolb/wirepeer/lib/store"
	"github.com/ValentinKolb/wirepeer/lib/store/fstore"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("repo")

const (
	// StoreDir is the private storage directory inside a working copy
	StoreDir = ".wp"

	// NullID is the id of the empty revision
	NullID = "0000000000000000000000000000000000000000"

	// LockKey is the key of the repository write lock
	LockKey = "wlock"

	dirstateFile = "dirstate"
	headsFile    = "heads"
	configFile   = "config.yaml"
	keysDir      = "keys"
	locksDir     = "locks"
	bundlesDir   = "bundles"
)

var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Repo is a handle on a working copy with a private storage directory.
// It is not safe for concurrent use; processes coordinate through Lock.
type Repo struct {
	root   string
	config *viper.Viper
}

// Init creates the private storage directory in root and opens the repository.
func Init(root string) (*Repo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	wp := filepath.Join(abs, StoreDir)
	if _, err := os.Stat(wp); err == nil {
		return nil, errdefs.New(errdefs.CodeAbort, "init", "repository %s already exists", abs)
	}
	for _, dir := range []string{wp, filepath.Join(wp, keysDir), filepath.Join(wp, locksDir), filepath.Join(wp, bundlesDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errdefs.Wrap(errdefs.CodeUnknown, "init", err, "cannot create %s", dir)
		}
	}
	Logger.Infof("initialized empty repository in %s", abs)
	return Open(abs)
}

// Open opens the repository whose working copy is root.
func Open(root string) (*Repo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filepath.Join(abs, StoreDir))
	if err != nil || !info.IsDir() {
		return nil, errdefs.New(errdefs.CodeAbort, "open", "repository %s not found", root)
	}
	r := &Repo{root: abs}
	if r.config, err = r.loadConfig(); err != nil {
		return nil, err
	}
	return r, nil
}

// Find opens the repository containing start, searching the parent
// directories.
func Find(start string) (*Repo, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, StoreDir)); err == nil && info.IsDir() {
			return Open(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, errdefs.New(errdefs.CodeAbort, "open", "no repository found in '%s' (%s not found)", start, StoreDir)
		}
		dir = parent
	}
}

// Root returns the working copy directory.
func (r *Repo) Root() string {
	return r.root
}

// Path returns the path of name inside the private storage directory.
func (r *Repo) Path(name ...string) string {
	return filepath.Join(append([]string{r.root, StoreDir}, name...)...)
}

// --------------------------------------------------------------------------
// Private storage files
// --------------------------------------------------------------------------

// Exists reports whether the private file name exists.
func (r *Repo) Exists(name string) bool {
	_, err := os.Stat(r.Path(name))
	return err == nil
}

// OpenFile opens the private file name for reading.
func (r *Repo) OpenFile(name string) (io.ReadCloser, error) {
	return os.Open(r.Path(name))
}

// WriteAtomic replaces the private file name with the output of write.
// A crash never leaves a partially written file behind.
func (r *Repo) WriteAtomic(name string, write func(w io.Writer) error) error {
	path := r.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return fstore.WriteFileAtomic(path, 0o644, write)
}

// Remove deletes the private file name. A missing file is not an error.
func (r *Repo) Remove(name string) error {
	if err := os.Remove(r.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Working copy
// --------------------------------------------------------------------------

// Parents returns the working copy parents. An unmerged working copy has
// one parent, a merge in progress has two.
func (r *Repo) Parents() ([]string, error) {
	ids, err := r.readIDs(dirstateFile)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{NullID}, nil
	}
	return ids, nil
}

// SetParents records the working copy parents.
func (r *Repo) SetParents(parents ...string) error {
	if len(parents) == 0 || len(parents) > 2 {
		return errdefs.New(errdefs.CodeProgramming, "setparents", "expected one or two parents, got %d", len(parents))
	}
	return r.writeIDs(dirstateFile, parents)
}

// Heads returns the sorted heads of the repository.
func (r *Repo) Heads() ([]string, error) {
	ids, err := r.readIDs(headsFile)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{NullID}, nil
	}
	sort.Strings(ids)
	return ids, nil
}

// SetHeads records the heads of the repository.
func (r *Repo) SetHeads(heads ...string) error {
	return r.writeIDs(headsFile, heads)
}

func (r *Repo) readIDs(name string) ([]string, error) {
	f, err := r.OpenFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	return ids, scanner.Err()
}

func (r *Repo) writeIDs(name string, ids []string) error {
	return r.WriteAtomic(name, func(w io.Writer) error {
		for _, id := range ids {
			if _, err := io.WriteString(w, id+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Key namespaces
// --------------------------------------------------------------------------

// ValidNamespace reports whether ns can be used as a namespace name.
func ValidNamespace(ns string) bool {
	return namespacePattern.MatchString(ns)
}

// Namespace returns the key store of namespace ns (e.g. "bookmarks").
func (r *Repo) Namespace(ns string) (store.IStore, error) {
	if !ValidNamespace(ns) {
		return nil, errdefs.New(errdefs.CodeAbort, "namespace", "invalid namespace name '%s'", ns)
	}
	return fstore.NewFileStore(r.Path(keysDir, ns))
}

// Namespaces returns the names of all namespaces holding keys.
func (r *Repo) Namespaces() ([]string, error) {
	entries, err := os.ReadDir(r.Path(keysDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidNamespace(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Lookup resolves key to a revision id. "." is the first working copy
// parent; other keys are looked up as bookmarks, then as tags, then as a
// known head.
func (r *Repo) Lookup(key string) (string, error) {
	if key == "." {
		parents, err := r.Parents()
		if err != nil {
			return "", err
		}
		return parents[0], nil
	}
	for _, ns := range []string{"bookmarks", "tags"} {
		s, err := r.Namespace(ns)
		if err != nil {
			return "", err
		}
		value, ok, err := s.Get(key)
		if err != nil {
			return "", err
		}
		if ok {
			return string(value), nil
		}
	}
	heads, err := r.Heads()
	if err != nil {
		return "", err
	}
	for _, head := range heads {
		if len(key) >= 4 && strings.HasPrefix(head, key) {
			return head, nil
		}
	}
	return "", errdefs.New(errdefs.CodeAbort, "lookup", "unknown revision '%s'", key)
}

// --------------------------------------------------------------------------
// Incoming bundles
// --------------------------------------------------------------------------

// AddBundle stores an incoming bundle and returns its name inside the
// private storage directory.
func (r *Repo) AddBundle(bundle io.Reader) (string, error) {
	name := filepath.Join(bundlesDir, uuid.NewString()+".bundle")
	var size int64
	err := r.WriteAtomic(name, func(w io.Writer) error {
		n, err := io.Copy(w, bundle)
		size = n
		return err
	})
	if err != nil {
		return "", errdefs.Wrap(errdefs.CodeUnknown, "unbundle", err, "cannot store bundle")
	}
	Logger.Infof("stored bundle %s (%d bytes)", name, size)
	return name, nil
}

// --------------------------------------------------------------------------
// Locking
// --------------------------------------------------------------------------

// LockManager returns the lock manager of the repository.
func (r *Repo) LockManager() (lockmgr.ILockManager, error) {
	s, err := fstore.NewFileStore(r.Path(locksDir))
	if err != nil {
		return nil, err
	}
	return lockmgr.NewLockManager(s), nil
}

// Lock takes the repository write lock, waiting until ctx is done. The
// returned function releases it.
func (r *Repo) Lock(ctx context.Context) (func() error, error) {
	locks, err := r.LockManager()
	if err != nil {
		return nil, err
	}
	timeout := uint64(r.config.GetInt("lock.timeout"))
	ownerID, err := locks.WaitLock(ctx, LockKey, timeout, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return func() error {
		ok, err := locks.ReleaseLock(LockKey, ownerID)
		if err == nil && !ok {
			Logger.Warningf("lock of %s was taken over before release", r.root)
		}
		return err
	}, nil
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config returns the repository configuration read from .wp/config.yaml.
func (r *Repo) Config() *viper.Viper {
	return r.config
}

func (r *Repo) loadConfig() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("lock.timeout", 600)
	v.SetDefault("status.skipstates", []string{})
	v.SetDefault("state.format", "cbor")

	f, err := r.OpenFile(configFile)
	if errors.Is(err, os.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := v.ReadConfig(f); err != nil {
		return nil, errdefs.Wrap(errdefs.CodeAbort, "config", err, "cannot parse %s", r.Path(configFile))
	}
	return v, nil
}
