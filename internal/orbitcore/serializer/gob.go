package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// GobSerializer is the default Serializer, backed by encoding/gob. It is
// adequate for the Envelope type the pipeline actually serializes (plain
// structs of strings, ints, and maps); callers needing cross-language
// wire compatibility should supply their own Serializer.
type GobSerializer struct{}

// NewGobSerializer creates a GobSerializer.
func NewGobSerializer() *GobSerializer {
	return &GobSerializer{}
}

// Encode implements Serializer.
func (GobSerializer) Encode(payload any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Serializer.
func (GobSerializer) Decode(data []byte, out any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

var _ Serializer = GobSerializer{}
