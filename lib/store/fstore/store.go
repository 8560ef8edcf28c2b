package fstore

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/store"
	"github.com/fxamacker/cbor/v2"
)

// record is the on-disk form of one entry
type record struct {
	Value    []byte `cbor:"value"`
	DeleteAt int64  `cbor:"delete_at,omitempty"` // unix seconds, 0 = never
}

func (r record) live(now time.Time) bool {
	return r.DeleteAt == 0 || now.Unix() < r.DeleteAt
}

type storeImpl struct {
	dir string
	// mu serialises CompareAndSwap within this process; callers that share a
	// store between processes hold the repository lock.
	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates a store that keeps one file per key in dir. The
// directory is created if it does not exist.
func NewFileStore(dir string) (store.IStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errdefs.Wrap(errdefs.CodeUnknown, "open store", err, "cannot create %s", dir)
	}
	return &storeImpl{dir: dir, now: time.Now}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	return s.write(path, record{Value: value})
}

func (s *storeImpl) SetEIfUnset(key string, value []byte, deleteIn uint64) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	now := s.now()
	rec := record{Value: value}
	if deleteIn > 0 {
		rec.DeleteAt = now.Add(time.Duration(deleteIn) * time.Second).Unix()
	}
	data, err := cbor.Marshal(rec)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeUnknown, "set", err, "cannot encode %q", key)
	}
	tmp, err := writeTemp(s.dir, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return errdefs.Wrap(errdefs.CodeUnknown, "set", err, "cannot write %q", key)
	}
	defer os.Remove(tmp)

	// a hard link fails if the target exists, which makes the create atomic
	// across processes
	for attempt := 0; attempt < 2; attempt++ {
		err = os.Link(tmp, path)
		if err == nil {
			syncDir(s.dir)
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return errdefs.Wrap(errdefs.CodeUnknown, "set", err, "cannot create %q", key)
		}
		cur, ok, err := s.read(path)
		if err != nil {
			return err
		}
		if ok && cur.live(now) {
			return nil
		}
		// expired: remove it and try once more
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errdefs.Wrap(errdefs.CodeUnknown, "set", err, "cannot remove expired %q", key)
		}
	}
	return nil
}

func (s *storeImpl) CompareAndSwap(key string, old, new []byte) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok, err := s.read(path)
	if err != nil {
		return false, err
	}
	exists := ok && cur.live(s.now())
	if len(old) == 0 && exists {
		return false, nil
	}
	if len(old) > 0 && (!exists || !bytes.Equal(cur.Value, old)) {
		return false, nil
	}

	if len(new) == 0 {
		return true, s.remove(path)
	}
	return true, s.write(path, record{Value: new})
}

func (s *storeImpl) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	return s.remove(path)
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	rec, ok, err := s.read(path)
	if err != nil || !ok || !rec.live(s.now()) {
		return nil, false, err
	}
	return rec.Value, true, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

func (s *storeImpl) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeUnknown, "keys", err, "cannot list %s", s.dir)
	}
	now := s.now()
	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		key, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		rec, ok, err := s.read(filepath.Join(s.dir, e.Name()))
		if err != nil || !ok || !rec.live(now) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// path maps a key to its file. Keys are path-escaped so any string is a
// single file name.
func (s *storeImpl) path(key string) (string, error) {
	if key == "" {
		return "", errdefs.New(errdefs.CodeProgramming, "store", "empty key")
	}
	name := url.PathEscape(key)
	if name == "." || name == ".." || strings.HasPrefix(name, tempPrefix) {
		name = strings.ReplaceAll(name, ".", "%2E")
	}
	return filepath.Join(s.dir, name), nil
}

func (s *storeImpl) read(path string) (record, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, errdefs.Wrap(errdefs.CodeUnknown, "read", err, "cannot read %s", path)
	}
	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return record{}, false, errdefs.Wrap(errdefs.CodeCorruptedState, "read", err, "cannot decode %s", path)
	}
	return rec, true, nil
}

func (s *storeImpl) write(path string, rec record) error {
	err := WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		return cbor.NewEncoder(w).Encode(rec)
	})
	if err != nil {
		return errdefs.Wrap(errdefs.CodeUnknown, "write", err, "cannot write %s", path)
	}
	return nil
}

func (s *storeImpl) remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errdefs.Wrap(errdefs.CodeUnknown, "delete", err, "cannot remove %s", path)
	}
	return nil
}
