package extract

import (
	"reflect"
	"testing"

	"github.com/af-corp/iris-gateway/internal/types"
)

func TestFromRequest_NoImages(t *testing.T) {
	req := &types.ChatRequest{
		Model: "gpt-4",
		Messages: []types.Message{
			{Role: "system", Content: types.StringContent("be nice")},
			{Role: "user", Content: types.StringContent("hello")},
		},
	}
	res := FromRequest(req)
	if len(res.Images) != 0 {
		t.Errorf("expected no images, got %d", len(res.Images))
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %d", len(res.Warnings))
	}
}

func TestFromRequest_MixedParts(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.PartsContent(
				types.ContentPart{Type: types.PartText, Text: "what is this?"},
				types.ContentPart{Type: types.PartImage, Image: "aGVsbG8="},
				types.ContentPart{Type: types.PartText, Text: "and this?"},
				types.ContentPart{Type: types.PartImageURL, ImageURL: &types.ImageURL{URL: "https://example.com/a.png"}},
			)},
		},
	}
	res := FromRequest(req)
	if len(res.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(res.Images))
	}

	first := res.Images[0]
	if first.Kind != types.SourceInline || first.Payload != "aGVsbG8=" {
		t.Errorf("unexpected first ref: %+v", first)
	}
	if first.MessageIndex != 0 || first.PartIndex != 1 {
		t.Errorf("first ref position = (%d, %d), want (0, 1)", first.MessageIndex, first.PartIndex)
	}

	second := res.Images[1]
	if second.Kind != types.SourceRemote || second.Payload != "https://example.com/a.png" {
		t.Errorf("unexpected second ref: %+v", second)
	}
	if second.PartIndex != 3 {
		t.Errorf("second ref part index = %d, want 3", second.PartIndex)
	}
}

func TestFromRequest_LegacyImagesArray(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.StringContent("look"), Images: []string{"AAAA", "BBBB"}},
		},
	}
	res := FromRequest(req)
	if len(res.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(res.Images))
	}
	for i, ref := range res.Images {
		if ref.Kind != types.SourceInline {
			t.Errorf("image %d: expected inline kind", i)
		}
		if ref.PartIndex != -1 || ref.ImageIndex != i {
			t.Errorf("image %d: position = (part %d, image %d)", i, ref.PartIndex, ref.ImageIndex)
		}
	}
}

func TestFromRequest_SkipsNonUserMessages(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "assistant", Content: types.PartsContent(
				types.ContentPart{Type: types.PartImage, Image: "AAAA"},
			)},
		},
	}
	if res := FromRequest(req); len(res.Images) != 0 {
		t.Errorf("expected no images from assistant message, got %d", len(res.Images))
	}
}

func TestFromRequest_MalformedBlocksWarnNotAbort(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.PartsContent(
				types.ContentPart{Type: types.PartImage},                // no payload
				types.ContentPart{Type: types.PartImageURL},             // no url
				types.ContentPart{Type: types.PartImage, Image: "AAAA"}, // fine
			)},
		},
	}
	res := FromRequest(req)
	if len(res.Images) != 1 {
		t.Errorf("expected 1 usable image, got %d", len(res.Images))
	}
	if len(res.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %d", len(res.Warnings))
	}
}

func TestFromRequest_DoesNotMutateInput(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.PartsContent(
				types.ContentPart{Type: types.PartImage, Image: "AAAA"},
			), Images: []string{"BBBB"}},
		},
	}
	before := req.Clone()
	FromRequest(req)
	if !reflect.DeepEqual(req, before) {
		t.Error("extraction mutated the input request")
	}
}

func TestDataURLMediaType(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"data:image/png;base64,iVBORw0K", "image/png"},
		{"data:image/jpeg,raw", "image/jpeg"},
		{"iVBORw0K", ""},
		{"data:nocomma", ""},
	}
	for _, tt := range tests {
		if got := dataURLMediaType(tt.payload); got != tt.want {
			t.Errorf("dataURLMediaType(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestRefIDsAreStable(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.PartsContent(
				types.ContentPart{Type: types.PartImage, Image: "AAAA"},
			)},
		},
	}
	a := FromRequest(req)
	b := FromRequest(req)
	if a.Images[0].ID != b.Images[0].ID {
		t.Errorf("ids differ across runs: %q vs %q", a.Images[0].ID, b.Images[0].ID)
	}
}
