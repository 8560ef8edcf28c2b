package serializer

import "io"

// IStateSerializer encodes the payload of a state file. Payloads are
// arbitrary structured values: maps, lists, strings, numbers, booleans and
// nil. Decoding into any yields map[string]any for maps.
type IStateSerializer interface {
	// Encode writes v to w as exactly one value
	Encode(w io.Writer, v any) error
	// DecodeAll decodes values from r until the stream ends
	// It returns every decoded value, so callers can check how many there were
	DecodeAll(r io.Reader) ([]any, error)
	// Name returns the name of the encoding (for logging)
	Name() string
}
