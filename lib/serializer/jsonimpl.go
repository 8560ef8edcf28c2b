package serializer

import (
	"encoding/json"
	"errors"
	"io"
)

// NewJSONSerializer creates a new serializer using a stream of JSON values.
// Numbers decode as float64.
func NewJSONSerializer() IStateSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IStateSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IStateSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (j jsonSerializerImpl) DecodeAll(r io.Reader) ([]any, error) {
	dec := json.NewDecoder(r)
	var values []any
	for {
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
}

func (j jsonSerializerImpl) Name() string {
	return "json"
}

// --------------------------------------------------------------------------
// Lookup
// --------------------------------------------------------------------------

// ByName returns the serializer with the given name.
func ByName(name string) (IStateSerializer, bool) {
	switch name {
	case "cbor", "":
		return NewCBORSerializer(), true
	case "json":
		return NewJSONSerializer(), true
	default:
		return nil, false
	}
}
