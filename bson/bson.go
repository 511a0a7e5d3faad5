// Package bson provides a BSON document codec for skein.
package bson

import (
	"github.com/zoobzio/skein"
	"go.mongodb.org/mongo-driver/bson"
)

// bsonCodec implements skein.Codec for BSON.
type bsonCodec struct{}

// New returns a BSON codec. BSON documents must be structs or maps at the
// top level, which skein documents always are.
func New() skein.Codec {
	return &bsonCodec{}
}

// ContentType returns the MIME type for BSON.
func (c *bsonCodec) ContentType() string {
	return "application/bson"
}

// Marshal encodes v as BSON.
func (c *bsonCodec) Marshal(v any) ([]byte, error) {
	return bson.Marshal(v)
}

// Unmarshal decodes BSON data into v.
func (c *bsonCodec) Unmarshal(data []byte, v any) error {
	return bson.Unmarshal(data, v)
}
