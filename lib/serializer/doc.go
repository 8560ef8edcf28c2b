// Package serializer provides the payload encodings of resumable state files.
// It defines a common interface and two implementations.
//
// The package focuses on:
//   - Streaming encoding of arbitrary structured values (maps, lists, scalars)
//   - Decoding a stream completely, so callers can insist on exactly one value
//
// Key Components:
//
//   - IStateSerializer: Core interface that all serializer implementations must satisfy.
//
//   - cborSerializerImpl: CBOR sequence using fxamacker/cbor with deterministic
//     encoding. Binary, compact and self-delimiting, which is what lets a state
//     file hold a text version line followed by one binary value. The default.
//
//   - jsonSerializerImpl: a stream of JSON values. Human readable, useful when
//     debugging state files by hand.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package serializer
