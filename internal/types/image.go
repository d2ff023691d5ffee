package types

// SourceKind says where an image's bytes live.
type SourceKind string

const (
	SourceInline SourceKind = "inline" // base64 payload embedded in the message
	SourceRemote SourceKind = "remote" // URL reference, fetched by the upstream
)

// ImageRef is one image found in a message, pinned to its original position.
// Immutable once extracted.
type ImageRef struct {
	ID        string
	Kind      SourceKind
	Payload   string // base64 data for inline, URL for remote
	MediaType string // declared media type, empty when the client did not say

	// Position: index of the owning message, then either the part index in
	// its content list or the index in the legacy Images array (-1 when not
	// applicable).
	MessageIndex int
	PartIndex    int
	ImageIndex   int
}

// PayloadBytes returns the bytes to fingerprint. Inline payloads are hashed
// as the base64 text they arrived as; identical uploads produce identical
// text, and decoding buys nothing but cycles. Remote refs hash the URL.
func (r ImageRef) PayloadBytes() []byte {
	return []byte(r.Payload)
}
