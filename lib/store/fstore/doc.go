// Package fstore implements a persistent store.IStore with one file per key.
//
// Every file holds a CBOR record with the value and an optional deletion
// deadline. Keys are path-escaped into file names. Writes go through a
// temporary file that is fsynced and renamed into place (WriteFileAtomic), so
// a crash never leaves a half written entry.
//
// SetEIfUnset publishes the new entry with os.Link, which fails if the key
// already exists. That makes it safe to use for lock records shared by
// several processes. CompareAndSwap is only atomic within one process.
package fstore
