// Package json provides a JSON document codec for skein.
package json

import (
	"encoding/json"

	"github.com/zoobzio/skein"
)

// jsonCodec implements skein.Codec for JSON.
type jsonCodec struct {
	indent string
}

// New returns a compact JSON codec.
func New() skein.Codec {
	return &jsonCodec{}
}

// NewIndented returns a JSON codec that indents nested nodes, for documents
// meant to be read.
func NewIndented(indent string) skein.Codec {
	return &jsonCodec{indent: indent}
}

// ContentType returns the MIME type for JSON.
func (c *jsonCodec) ContentType() string {
	return "application/json"
}

// Marshal encodes v as JSON.
func (c *jsonCodec) Marshal(v any) ([]byte, error) {
	if c.indent != "" {
		return json.MarshalIndent(v, "", c.indent)
	}
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func (c *jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
