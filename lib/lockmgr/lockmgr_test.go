package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/store/fstore"
)

func newTestManager(t *testing.T) ILockManager {
	t.Helper()
	s, err := fstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewLockManager(s)
}

func TestAcquireRelease(t *testing.T) {
	lm := newTestManager(t)

	ok, owner, err := lm.AcquireLock("repo", 0)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}
	host, _ := os.Hostname()
	if want := fmt.Sprintf(":%d:", os.Getpid()); !strings.Contains(string(owner), want) {
		t.Errorf("owner ID %q does not name the process", owner)
	}
	if host != "" && describeOwner(owner) != fmt.Sprintf("process %s:%d", host, os.Getpid()) {
		t.Errorf("describeOwner = %q", describeOwner(owner))
	}

	ok, _, err = lm.AcquireLock("repo", 0)
	if err != nil || ok {
		t.Errorf("second AcquireLock = %v, %v; want false", ok, err)
	}

	ok, err = lm.ReleaseLock("repo", []byte("someone else"))
	if err != nil || ok {
		t.Errorf("ReleaseLock by stranger = %v, %v; want false", ok, err)
	}

	ok, err = lm.ReleaseLock("repo", owner)
	if err != nil || !ok {
		t.Fatalf("ReleaseLock = %v, %v", ok, err)
	}

	ok, err = lm.ReleaseLock("repo", owner)
	if err != nil || !ok {
		t.Errorf("ReleaseLock of a free lock = %v, %v; want true", ok, err)
	}
}

func TestLocksShareFileStore(t *testing.T) {
	dir := t.TempDir()
	s1, err := fstore.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := fstore.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	first := NewLockManager(s1)
	second := NewLockManager(s2)

	ok, owner, err := first.AcquireLock("wlock", 0)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v", ok, err)
	}
	if ok, _, _ := second.AcquireLock("wlock", 0); ok {
		t.Fatalf("second manager acquired a held lock")
	}
	if _, err := first.ReleaseLock("wlock", owner); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if ok, _, _ := second.AcquireLock("wlock", 0); !ok {
		t.Errorf("second manager could not acquire a released lock")
	}
}

func TestWaitLock(t *testing.T) {
	lm := newTestManager(t)

	_, owner, err := lm.AcquireLock("repo", 0)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("times out", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := lm.WaitLock(ctx, "repo", 0, 5*time.Millisecond)
		if !errors.Is(err, errdefs.ErrLocked) {
			t.Errorf("WaitLock = %v, want ErrLocked", err)
		}
	})

	t.Run("acquires after release", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			lm.ReleaseLock("repo", owner)
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := lm.WaitLock(ctx, "repo", 0, 5*time.Millisecond); err != nil {
			t.Errorf("WaitLock: %v", err)
		}
	})
}
