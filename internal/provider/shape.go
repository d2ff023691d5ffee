package provider

import "github.com/af-corp/iris-gateway/internal/types"

// Shape is the structural convention a provider family expects for message
// content.
type Shape int

const (
	// ShapeBlocks keeps content as typed block lists (string content that
	// arrived as a string stays a string; both are valid).
	ShapeBlocks Shape = iota
	// ShapeString flattens every message's content to one plain string.
	ShapeString
)

// shapeOf classifies a family. Ollama-style backends reject block lists on
// text models; everything else speaks the OpenAI block convention.
func shapeOf(family string) Shape {
	switch family {
	case "ollama", "legacy-string":
		return ShapeString
	default:
		return ShapeBlocks
	}
}

// Adapt returns a copy of req shaped for the given provider family. This
// runs after rewriting, so the request is already text-only; adaptation is
// purely structural and exists to keep a conversation working when it
// continues against a different backend than the one that produced earlier
// turns.
func Adapt(req *types.ChatRequest, family string) *types.ChatRequest {
	out := req.Clone()
	if shapeOf(family) != ShapeString {
		return out
	}
	for i := range out.Messages {
		c := out.Messages[i].Content
		if c.Kind == types.ContentParts {
			out.Messages[i].Content = types.StringContent(c.Flatten())
		}
	}
	return out
}
