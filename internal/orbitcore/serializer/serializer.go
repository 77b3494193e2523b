// Package serializer defines the Serializer external collaborator and a
// default gob-based implementation. The pipeline's Serialization step is
// the only consumer; no on-wire format is normative as long as messageIds
// round-trip intact.
package serializer

// Serializer encodes and decodes payloads exchanged between the
// Serialization pipeline step and the Transport collaborator.
type Serializer interface {
	// Encode renders payload into its wire representation.
	Encode(payload any) ([]byte, error)

	// Decode populates out (a pointer) from data previously produced by
	// Encode.
	Decode(data []byte, out any) error
}
