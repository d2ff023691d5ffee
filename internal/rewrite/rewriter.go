// Package rewrite splices generated image descriptions into messages in
// place of the image blocks they describe.
package rewrite

import (
	"strings"

	"github.com/af-corp/iris-gateway/internal/config"
	"github.com/af-corp/iris-gateway/internal/types"
)

// Rewriter renders the image-context template and rebuilds messages.
type Rewriter struct {
	template string
}

func NewRewriter(template string) *Rewriter {
	return &Rewriter{template: template}
}

// Render substitutes the description into the template's single placeholder.
func (rw *Rewriter) Render(description string) string {
	return strings.Replace(rw.template, config.DescriptionPlaceholder, description, 1)
}

// Apply returns a copy of req in which every extracted image block is
// replaced, at its original position, by rendered template text.
// descriptions is keyed by ImageRef.ID; every ref is expected to have one
// (the orchestrator substitutes a placeholder before calling Apply). Text
// segments and their order are preserved exactly; messages without images
// are untouched. Legacy message-level image arrays are rendered after the
// message's content parts, in array order, and then dropped.
func (rw *Rewriter) Apply(req *types.ChatRequest, images []types.ImageRef, descriptions map[string]string) *types.ChatRequest {
	byMessage := make(map[int][]types.ImageRef)
	for _, img := range images {
		byMessage[img.MessageIndex] = append(byMessage[img.MessageIndex], img)
	}

	out := req.Clone()
	for msgIdx := range out.Messages {
		refs := byMessage[msgIdx]
		if len(refs) == 0 {
			continue
		}
		rw.applyToMessage(&out.Messages[msgIdx], msgIdx, refs, descriptions)
	}
	return out
}

func (rw *Rewriter) applyToMessage(msg *types.Message, msgIdx int, refs []types.ImageRef, descriptions map[string]string) {
	byPart := make(map[int]types.ImageRef)
	var legacy []types.ImageRef
	for _, ref := range refs {
		if ref.PartIndex >= 0 {
			byPart[ref.PartIndex] = ref
		} else {
			legacy = append(legacy, ref)
		}
	}

	parts := msg.Content.AsParts()
	rebuilt := make([]types.ContentPart, 0, len(parts)+len(legacy))
	for partIdx, part := range parts {
		ref, isImage := byPart[partIdx]
		if !isImage {
			if part.Type == types.PartImage || part.Type == types.PartImageURL {
				// Malformed block that extraction warned about; a text-only
				// model cannot use it, so it is dropped.
				continue
			}
			rebuilt = append(rebuilt, part)
			continue
		}
		desc, ok := descriptions[ref.ID]
		if !ok {
			continue
		}
		rebuilt = append(rebuilt, types.ContentPart{Type: types.PartText, Text: rw.Render(desc)})
	}

	for _, ref := range legacy {
		desc, ok := descriptions[ref.ID]
		if !ok {
			continue
		}
		rebuilt = append(rebuilt, types.ContentPart{Type: types.PartText, Text: rw.Render(desc)})
	}

	msg.Content = types.PartsContent(rebuilt...)
	msg.Images = nil
}
