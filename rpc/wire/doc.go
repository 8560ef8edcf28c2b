// Package wire implements the framing and argument encoding of the
// line-oriented remote repository protocol.
//
// The package focuses on:
//   - Length-prefixed frames: a decimal length line followed by that many bytes
//   - Escaped argument encoding that lets several calls share one "batch" request
//   - A start-up validated table of commands and their argument order
//
// Key Components:
//
//   - WriteFrame/ReadFrame: frame codec over any Reader. A frame whose length
//     line is empty or zero is the empty (end) frame.
//
//   - EscapeArg/UnescapeArg: the four-symbol escaping used inside batch
//     strings. UnescapeArg(EscapeArg(x)) == x for every byte string x.
//
//   - EncodeBatch/DecodeBatch and EncodeBatchReply/DecodeBatchReply: the
//     request and reply encodings of the "batch" command, including per-call
//     error entries.
//
//   - CommandTable: declarations mapping command names to ordered argument
//     names, used by both the peer and the server.
//
// Nothing in this package flushes. Writers must flush before blocking on a
// read of another handle, or both ends deadlock.
package wire
