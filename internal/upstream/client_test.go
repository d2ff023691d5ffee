package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/af-corp/iris-gateway/internal/config"
	"github.com/af-corp/iris-gateway/internal/types"
)

func completionJSON(text string) string {
	return `{"id":"cmpl-1","object":"chat.completion","model":"m",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":"` + text + `"},"finish_reason":"stop"}]}`
}

func TestDescribe_RequestShape(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionJSON("a red square"))
	}))
	defer srv.Close()

	c := NewClient(config.UpstreamConfig{BaseURL: srv.URL, APIKey: "secret"})
	img := types.ImageRef{ID: "m0.p1", Kind: types.SourceInline, Payload: "AAAA"}

	text, err := c.Describe(context.Background(), "vision.model", "describe this", img)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if text != "a red square" {
		t.Errorf("text = %q", text)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}

	var wire types.ChatRequest
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatalf("unmarshal wire request: %v", err)
	}
	if wire.Model != "vision.model" {
		t.Errorf("model = %q", wire.Model)
	}
	if len(wire.Messages) != 1 || wire.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", wire.Messages)
	}
	parts := wire.Messages[0].Content.Parts
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Type != types.PartText || parts[0].Text != "describe this" {
		t.Errorf("prompt part: %+v", parts[0])
	}
	if parts[1].Type != types.PartImage || parts[1].Image != "AAAA" {
		t.Errorf("image part: %+v", parts[1])
	}
}

func TestDescribe_RemoteImageUsesURLPart(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionJSON("remote"))
	}))
	defer srv.Close()

	c := NewClient(config.UpstreamConfig{BaseURL: srv.URL})
	img := types.ImageRef{ID: "m0.p0", Kind: types.SourceRemote, Payload: "https://example.com/cat.png"}

	if _, err := c.Describe(context.Background(), "vision.model", "p", img); err != nil {
		t.Fatalf("Describe failed: %v", err)
	}

	var wire types.ChatRequest
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatal(err)
	}
	part := wire.Messages[0].Content.Parts[1]
	if part.Type != types.PartImageURL || part.ImageURL == nil || part.ImageURL.URL != "https://example.com/cat.png" {
		t.Errorf("remote image part: %+v", part)
	}
}

func TestSend_StripsInternalIdentity(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionJSON("ok"))
	}))
	defer srv.Close()

	c := NewClient(config.UpstreamConfig{BaseURL: srv.URL})
	req := &types.ChatRequest{
		RequestID: "req_internal",
		SessionID: "sess_internal",
		Model:     "m",
		Messages:  []types.Message{{Role: "user", Content: types.StringContent("hi")}},
	}
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	body := string(gotBody)
	if strings.Contains(body, "req_internal") || strings.Contains(body, "sess_internal") {
		t.Errorf("internal identity leaked upstream: %s", body)
	}
	// The caller's request keeps its identity.
	if req.RequestID != "req_internal" || req.SessionID != "sess_internal" {
		t.Error("send mutated the caller's request")
	}
}

func TestComplete_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(config.UpstreamConfig{BaseURL: srv.URL})
	req := &types.ChatRequest{Model: "gone", Messages: []types.Message{{Role: "user", Content: types.StringContent("hi")}}}

	_, err := c.Complete(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for non-200 upstream status")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestForward_ReturnsRawResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "data: {\"chunk\":1}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(config.UpstreamConfig{BaseURL: srv.URL})
	req := &types.ChatRequest{Model: "m", Stream: true, Messages: []types.Message{{Role: "user", Content: types.StringContent("hi")}}}

	resp, err := c.Forward(context.Background(), req)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "[DONE]") {
		t.Errorf("body not passed through untouched: %q", body)
	}
}
