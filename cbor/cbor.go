// Package cbor provides a CBOR document codec for skein.
package cbor

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/zoobzio/skein"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so equal
// documents encode to equal bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("skein/cbor: encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("skein/cbor: decoder initialization failed: " + err.Error())
	}
}

// cborCodec implements skein.Codec for CBOR.
type cborCodec struct{}

// New returns a CBOR codec.
func New() skein.Codec {
	return &cborCodec{}
}

// ContentType returns the MIME type for CBOR.
func (c *cborCodec) ContentType() string {
	return "application/cbor"
}

// Marshal encodes v as deterministic CBOR.
func (c *cborCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are rejected.
func (c *cborCodec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
