package serializer

import (
	"errors"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding, so the same payload always
// produces the same bytes
var encMode cbor.EncMode

// decMode decodes maps into map[string]any and integers into int64
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("serializer: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("serializer: CBOR decoder initialization failed: " + err.Error())
	}
}

// NewCBORSerializer creates a new serializer using a CBOR sequence
// (RFC 8742). It is the default for state files.
func NewCBORSerializer() IStateSerializer {
	return &cborSerializerImpl{}
}

// cborSerializerImpl implements the IStateSerializer interface using CBOR
type cborSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IStateSerializer)
// --------------------------------------------------------------------------

func (c cborSerializerImpl) Encode(w io.Writer, v any) error {
	return encMode.NewEncoder(w).Encode(v)
}

func (c cborSerializerImpl) DecodeAll(r io.Reader) ([]any, error) {
	dec := decMode.NewDecoder(r)
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

func (c cborSerializerImpl) Name() string {
	return "cbor"
}
