// Package store provides the key-value namespaces of a repository behind a
// single interface.
//
// The package focuses on:
//   - A unified interface (IStore) for namespace operations across backends
//   - Conditional writes (SetEIfUnset, CompareAndSwap) that locks and pushkey
//     build on
//
// Implementations:
//
//	- File Store (fstore): one file per key below a directory. Writes are
//	  atomic, and SetEIfUnset is atomic across processes because it publishes
//	  the entry with a hard link that fails if the key exists.
//	  Available in the "github.com/ValentinKolb/wirepeer/lib/store/fstore" package.
package store
