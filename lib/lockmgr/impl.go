package lockmgr

import (
	"bytes"
	"context"
	"time"

	"github.com/ValentinKolb/wirepeer/lib/errdefs"
	"github.com/ValentinKolb/wirepeer/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("lockmgr")

type lockMgrImpl struct {
	store store.IStore
}

func NewLockManager(store store.IStore) ILockManager {
	return &lockMgrImpl{
		store: store,
	}
}

func (lp *lockMgrImpl) AcquireLock(key string, timeout uint64) (bool, []byte, error) {
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	// Try to acquire the lock (the value is only set if the key doesn't exist)
	err = lp.store.SetEIfUnset(key, ownerID, timeout)
	if err != nil {
		Logger.Errorf("error setting lock %q: %v", key, err)
		return false, nil, err
	}

	// Check if the lock was acquired
	value, found, err := lp.store.Get(key)
	if err != nil {
		return false, nil, err
	}

	// Return true if lock was acquired BY US
	if found && bytes.Equal(value, ownerID) {
		Logger.Debugf("acquired lock %q", key)
		return true, ownerID, nil
	}
	// Return false if lock is held BY SOMEONE ELSE
	return false, nil, nil
}

func (lp *lockMgrImpl) WaitLock(ctx context.Context, key string, timeout uint64, interval time.Duration) ([]byte, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for first := true; ; first = false {
		ok, ownerID, err := lp.AcquireLock(key, timeout)
		if err != nil {
			return nil, err
		}
		if ok {
			return ownerID, nil
		}
		if first {
			holder, _, _ := lp.store.Get(key)
			Logger.Infof("waiting for lock %q held by %s", key, describeOwner(holder))
		}

		select {
		case <-ctx.Done():
			return nil, errdefs.Wrap(errdefs.CodeLocked, "lock", ctx.Err(), "lock %q is held by another process", key)
		case <-ticker.C:
		}
	}
}

func (lp *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	// Check if the lock exists
	value, ok, err := lp.store.Get(key)
	if err != nil || !ok {
		return err == nil, err
	}

	// Check if the lock is owned by us
	if !bytes.Equal(ownerID, value) {
		return false, nil
	}

	// Release the lock, unless it changed hands since the read
	return lp.store.CompareAndSwap(key, ownerID, nil)
}
