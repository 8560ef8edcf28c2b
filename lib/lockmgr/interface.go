package lockmgr

import (
	"context"
	"time"
)

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock acquires a lock for the given key with an optional timeout in seconds.
	// Return a boolean indicating whether the lock was acquired, an owner ID, and an error if any.
	AcquireLock(key string, timeout uint64) (ok bool, ownerID []byte, err error)

	// WaitLock retries AcquireLock every interval until it succeeds or ctx is done.
	// It returns an errdefs.ErrLocked error when ctx ends first.
	WaitLock(ctx context.Context, key string, timeout uint64, interval time.Duration) (ownerID []byte, err error)

	// ReleaseLock releases the lock for the given key.
	// Return a boolean indicating whether the lock was released, and an error if any.
	// The method will also return True is the lock did not exist.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)
}
