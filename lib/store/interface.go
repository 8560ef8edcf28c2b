package store

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the generic interface for a key-value namespace of a repository
// (bookmarks, tags, lock records). Keys are arbitrary non-empty strings.
// Entries may carry a deletion timeout; an entry past its timeout behaves as
// if it did not exist.
type IStore interface {
	// Set inserts or updates a key-value pair.
	Set(key string, value []byte) (err error)
	// SetEIfUnset inserts a key-value pair that is deleted after deleteIn
	// seconds if the key does not exist. A zero deleteIn means no deletion.
	// If the key already exists, the old value is not updated.
	// No error is returned if the key already exists.
	SetEIfUnset(key string, value []byte, deleteIn uint64) (err error)
	// CompareAndSwap replaces the value of key with new if its current value
	// is old. An empty old requires the key to be absent, an empty new
	// deletes the key. It returns whether the swap happened.
	CompareAndSwap(key string, old, new []byte) (swapped bool, err error)
	// Delete deletes a key-value pair. Deleting a missing key is not an error.
	Delete(key string) (err error)
	// Get return the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a key exists in the store.
	Has(key string) (loaded bool, err error)
	// Keys returns all live keys in sorted order.
	Keys() (keys []string, err error)
}
