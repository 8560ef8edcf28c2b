// Package state persists the progress of multi-step commands and detects
// commands that were interrupted.
//
// A CmdState is one state file in the private storage directory of a
// repository: a decimal version line followed by exactly one payload encoded
// with a serializer.IStateSerializer (CBOR unless state.format says
// otherwise). Files are replaced atomically, so a reader sees either the old
// or the new state.
//
// A Registry lists the operations that can be left unfinished. It is built
// explicitly by the caller (NewDefaultRegistry registers update, bisect and
// merge) and answers three questions: which operation is in progress
// (DetectInProgress, RepoState), may a new command start (CheckUnfinished),
// and which state files can be dropped (ClearUnfinished).
//
// Neither type locks the repository. Take the repository lock first.
package state
