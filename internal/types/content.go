package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentKind records the wire shape a message's content arrived in.
// The original shape matters again on the way out: string-only provider
// families must receive string content for messages that started as strings.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentString
	ContentParts
)

// Content holds message content in either of the two shapes OpenAI-compatible
// clients send: a plain string, or an ordered list of typed parts.
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []ContentPart
}

// StringContent wraps a plain string.
func StringContent(s string) Content {
	return Content{Kind: ContentString, Text: s}
}

// PartsContent wraps an ordered part list.
func PartsContent(parts ...ContentPart) Content {
	return Content{Kind: ContentParts, Parts: parts}
}

// Clone returns a deep copy.
func (c Content) Clone() Content {
	cp := c
	if c.Parts != nil {
		cp.Parts = make([]ContentPart, len(c.Parts))
		copy(cp.Parts, c.Parts)
	}
	return cp
}

// AsParts returns the content as a part list regardless of its wire shape.
// String content becomes a single text part. The receiver is not modified.
func (c Content) AsParts() []ContentPart {
	switch c.Kind {
	case ContentParts:
		return c.Parts
	case ContentString:
		return []ContentPart{{Type: PartText, Text: c.Text}}
	default:
		return nil
	}
}

// Flatten joins all text parts into a single string, in order.
func (c Content) Flatten() string {
	if c.Kind == ContentString {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type != PartText {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		if trimmed == `""` {
			*c = Content{Kind: ContentString}
		} else {
			*c = Content{Kind: ContentEmpty}
		}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Kind: ContentString, Text: s}
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = Content{Kind: ContentParts, Parts: parts}
		return nil
	default:
		return fmt.Errorf("content must be a string or an array, got %.20s", trimmed)
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentParts:
		return json.Marshal(c.Parts)
	case ContentString:
		return json.Marshal(c.Text)
	default:
		return []byte("null"), nil
	}
}

// Content part types understood by the gateway.
const (
	PartText     = "text"
	PartImage    = "image"     // inline base64 payload
	PartImageURL = "image_url" // remote reference
)

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Image    string    `json:"image,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL accepts both the OpenAI object form {"url": ...} and the bare
// string form some clients send.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

func (u *ImageURL) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = ImageURL{URL: s}
		return nil
	}
	type alias ImageURL
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*u = ImageURL(a)
	return nil
}
