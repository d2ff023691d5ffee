// Package extract locates embedded images in chat messages.
package extract

import (
	"fmt"
	"strings"

	"github.com/af-corp/iris-gateway/internal/types"
)

// Warning reports an image block that could not be used. Extraction keeps
// going; a bad block never aborts the scan.
type Warning struct {
	MessageIndex int
	PartIndex    int
	Reason       string
}

func (w Warning) String() string {
	return fmt.Sprintf("message %d part %d: %s", w.MessageIndex, w.PartIndex, w.Reason)
}

// Result is an ordered list of image references plus non-fatal warnings.
type Result struct {
	Images   []types.ImageRef
	Warnings []Warning
}

// FromRequest scans all user messages for embedded images, in message order
// then part order. The request is not modified. A request with no
// recognizable images yields an empty Images slice.
func FromRequest(req *types.ChatRequest) Result {
	var res Result
	for i, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}
		scanMessage(i, msg, &res)
	}
	return res
}

func scanMessage(msgIdx int, msg types.Message, res *Result) {
	if msg.Content.Kind == types.ContentParts {
		for partIdx, part := range msg.Content.Parts {
			switch part.Type {
			case types.PartImage:
				if part.Image == "" {
					res.warn(msgIdx, partIdx, "image part has no payload")
					continue
				}
				res.add(inlineRef(msgIdx, partIdx, -1, part.Image))
			case types.PartImageURL:
				if part.ImageURL == nil || part.ImageURL.URL == "" {
					res.warn(msgIdx, partIdx, "image_url part has no url")
					continue
				}
				res.add(types.ImageRef{
					ID:           fmt.Sprintf("m%d.p%d", msgIdx, partIdx),
					Kind:         types.SourceRemote,
					Payload:      part.ImageURL.URL,
					MessageIndex: msgIdx,
					PartIndex:    partIdx,
					ImageIndex:   -1,
				})
			}
		}
	}

	// Legacy message-level attachment array.
	for imgIdx, img := range msg.Images {
		if img == "" {
			res.warn(msgIdx, -1, fmt.Sprintf("images[%d] is empty", imgIdx))
			continue
		}
		res.add(inlineRef(msgIdx, -1, imgIdx, img))
	}
}

func inlineRef(msgIdx, partIdx, imgIdx int, payload string) types.ImageRef {
	ref := types.ImageRef{
		Kind:         types.SourceInline,
		Payload:      payload,
		MediaType:    dataURLMediaType(payload),
		MessageIndex: msgIdx,
		PartIndex:    partIdx,
		ImageIndex:   imgIdx,
	}
	if partIdx >= 0 {
		ref.ID = fmt.Sprintf("m%d.p%d", msgIdx, partIdx)
	} else {
		ref.ID = fmt.Sprintf("m%d.i%d", msgIdx, imgIdx)
	}
	return ref
}

// dataURLMediaType pulls the declared media type out of a data URL payload.
// Returns "" for bare base64 payloads.
func dataURLMediaType(payload string) string {
	if !strings.HasPrefix(payload, "data:") {
		return ""
	}
	rest := payload[len("data:"):]
	end := strings.IndexAny(rest, ";,")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func (r *Result) add(ref types.ImageRef) {
	r.Images = append(r.Images, ref)
}

func (r *Result) warn(msgIdx, partIdx int, reason string) {
	r.Warnings = append(r.Warnings, Warning{MessageIndex: msgIdx, PartIndex: partIdx, Reason: reason})
}
