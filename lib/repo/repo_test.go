package repo

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
)

func TestInitOpenFind(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(dir); !errors.Is(err, errdefs.ErrAbort) {
		t.Fatalf("Open before Init = %v, want Abort", err)
	}
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := Init(dir); err == nil {
		t.Errorf("second Init succeeded")
	}

	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	found, err := Find(sub)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Root() != r.Root() {
		t.Errorf("Find root = %s, want %s", found.Root(), r.Root())
	}
}

func TestPrivateFiles(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if r.Exists("graftstate") {
		t.Fatalf("state file exists before write")
	}
	err = r.WriteAtomic("graftstate", func(w io.Writer) error {
		_, err := w.Write([]byte("1\n"))
		return err
	})
	if err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if !r.Exists("graftstate") {
		t.Errorf("state file missing after write")
	}
	if err := r.Remove("graftstate"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := r.Remove("graftstate"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestParents(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	parents, err := r.Parents()
	if err != nil || !reflect.DeepEqual(parents, []string{NullID}) {
		t.Errorf("Parents of empty repo = %v, %v", parents, err)
	}

	p1 := strings.Repeat("a", 40)
	p2 := strings.Repeat("b", 40)
	if err := r.SetParents(p1, p2); err != nil {
		t.Fatalf("SetParents: %v", err)
	}
	parents, _ = r.Parents()
	if !reflect.DeepEqual(parents, []string{p1, p2}) {
		t.Errorf("Parents = %v", parents)
	}
	if err := r.SetParents(); !errors.Is(err, errdefs.ErrProgramming) {
		t.Errorf("SetParents() = %v, want ProgrammingError", err)
	}
}

func TestLookup(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	head := "1234567890abcdef1234567890abcdef12345678"
	r.SetHeads(head)
	r.SetParents(head)

	bookmarks, _ := r.Namespace("bookmarks")
	bookmarks.Set("main", []byte("bbbb"))
	tags, _ := r.Namespace("tags")
	tags.Set("main", []byte("tttt"))
	tags.Set("v1", []byte("vvvv"))

	tests := []struct {
		key  string
		want string
		err  bool
	}{
		{".", head, false},
		{"main", "bbbb", false},
		{"v1", "vvvv", false},
		{"1234", head, false},
		{"123", "", true},
		{"nope", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := r.Lookup(tt.key)
			if (err != nil) != tt.err {
				t.Fatalf("Lookup(%q) error = %v", tt.key, err)
			}
			if got != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}

	namespaces, err := r.Namespaces()
	if err != nil || !reflect.DeepEqual(namespaces, []string{"bookmarks", "tags"}) {
		t.Errorf("Namespaces = %v, %v", namespaces, err)
	}
	if _, err := r.Namespace("../etc"); err == nil {
		t.Errorf("Namespace accepted an invalid name")
	}
}

func TestAddBundle(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r.SetHeads("cc", "aa")
	name, err := r.AddBundle(strings.NewReader("HG10UN"))
	if err != nil {
		t.Fatalf("AddBundle: %v", err)
	}
	data, err := os.ReadFile(r.Path(name))
	if err != nil || string(data) != "HG10UN" {
		t.Errorf("bundle = %q, %v", data, err)
	}
	heads, _ := r.Heads()
	if !reflect.DeepEqual(heads, []string{"aa", "cc"}) {
		t.Errorf("Heads = %v", heads)
	}
}

func TestLock(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	release, err := r.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Lock(ctx); !errors.Is(err, errdefs.ErrLocked) {
		t.Errorf("second Lock = %v, want ErrLocked", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	release, err = r.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	release()
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Config().GetStringSlice("status.skipstates"); len(got) != 0 {
		t.Errorf("default skipstates = %v", got)
	}

	cfg := "status:\n  skipstates:\n    - bisect\nlock:\n  timeout: 5\n"
	if err := os.WriteFile(r.Path("config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err = Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := r.Config().GetStringSlice("status.skipstates"); !reflect.DeepEqual(got, []string{"bisect"}) {
		t.Errorf("skipstates = %v", got)
	}
	if got := r.Config().GetInt("lock.timeout"); got != 5 {
		t.Errorf("lock.timeout = %d", got)
	}
}
