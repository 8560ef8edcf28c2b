// Package lockmgr implements a locking mechanism on top of any key-value
// store that implements the store.IStore interface.
//
// The lockmgr only ever stores in the provided IStore and has no other
// internal state. Therefore it is safe to be created multiple times on the
// same store, even for a single acquire or release. As long as the same store
// is used every time, all locks work as expected.
//
// Implementation Approach:
//
//   - Lock Acquisition: Attempts to create a key using SetEIfUnset, which
//     guarantees that only one requester can successfully create the key.
//     The value is an owner ID naming the host and process that took the lock.
//
//   - Lock Verification: The SetEIfUnset is followed by a Get that confirms
//     the stored value matches the owner ID.
//
//   - Timeouts: A lock can carry a timeout (seconds) after which it expires,
//     so a crashed process does not block the repository forever.
//
//   - Safe Release: ReleaseLock deletes the key through CompareAndSwap with
//     the owner ID, so a lock that expired and was taken by someone else is
//     left alone.
//
// The repository lock of wirepeer uses a fstore under .wp/locks, whose
// SetEIfUnset is atomic across processes:
//
//	locks := lockmgr.NewLockManager(fileStore)
//	ownerID, err := locks.WaitLock(ctx, "wlock", 600, 100*time.Millisecond)
//	if err != nil {
//	    return err
//	}
//	defer locks.ReleaseLock("wlock", ownerID)
package lockmgr
