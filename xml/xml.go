// Package xml provides an XML document codec for skein.
//
// Document nodes become elements; kinds, values and names become attributes.
package xml

import (
	"bytes"
	"encoding/xml"

	"github.com/zoobzio/skein"
)

// xmlCodec implements skein.Codec for XML.
type xmlCodec struct{}

// New returns an XML codec.
func New() skein.Codec {
	return &xmlCodec{}
}

// ContentType returns the MIME type for XML.
func (c *xmlCodec) ContentType() string {
	return "application/xml"
}

// Marshal encodes v as an XML document with a declaration.
func (c *xmlCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes XML data into v.
func (c *xmlCodec) Unmarshal(data []byte, v any) error {
	return xml.Unmarshal(data, v)
}
