package provider

import (
	"testing"

	"github.com/af-corp/iris-gateway/internal/types"
)

func TestAdapt_OllamaFlattensToString(t *testing.T) {
	req := &types.ChatRequest{
		Model: "ollama.mixtral",
		Messages: []types.Message{
			{Role: "user", Content: types.PartsContent(
				types.ContentPart{Type: types.PartText, Text: "first"},
				types.ContentPart{Type: types.PartText, Text: "second"},
			)},
		},
	}
	out := Adapt(req, "ollama")

	c := out.Messages[0].Content
	if c.Kind != types.ContentString {
		t.Fatalf("expected string content, got kind %d", c.Kind)
	}
	if c.Text != "first\n\nsecond" {
		t.Errorf("flattened text = %q", c.Text)
	}
}

func TestAdapt_BlockFamiliesKeepParts(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.PartsContent(
				types.ContentPart{Type: types.PartText, Text: "hello"},
			)},
		},
	}
	for _, family := range []string{"openai", "anthropic", "deepseek", "generic"} {
		out := Adapt(req, family)
		if out.Messages[0].Content.Kind != types.ContentParts {
			t.Errorf("family %s: expected parts content preserved", family)
		}
	}
}

func TestAdapt_StringContentStaysString(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.StringContent("already flat")},
		},
	}
	for _, family := range []string{"ollama", "openai"} {
		out := Adapt(req, family)
		c := out.Messages[0].Content
		if c.Kind != types.ContentString || c.Text != "already flat" {
			t.Errorf("family %s: string content changed: %+v", family, c)
		}
	}
}

func TestAdapt_DoesNotMutateInput(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.PartsContent(
				types.ContentPart{Type: types.PartText, Text: "a"},
			)},
		},
	}
	Adapt(req, "ollama")
	if req.Messages[0].Content.Kind != types.ContentParts {
		t.Error("Adapt mutated the input request")
	}
}
