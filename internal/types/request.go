package types

import "time"

// ChatRequest is the canonical internal representation of an incoming chat
// request. Provider-specific shapes are produced from this type just before
// the request leaves the gateway.
type ChatRequest struct {
	// Identity (set by the HTTP layer)
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Request content
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`

	// Internal tracking
	ReceivedAt time.Time `json:"-"`
}

// Clone returns a deep copy of the request. The pipeline never mutates the
// request it was handed; every rewrite happens on a clone.
func (r *ChatRequest) Clone() *ChatRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Messages = make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		cp.Messages[i] = m.Clone()
	}
	if r.Stop != nil {
		cp.Stop = append([]string(nil), r.Stop...)
	}
	return &cp
}

type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Name    string  `json:"name,omitempty"`

	// Images is the legacy message-level attachment array (base64 payloads)
	// some OpenAI-compatible frontends still send alongside string content.
	Images []string `json:"images,omitempty"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	cp := m
	cp.Content = m.Content.Clone()
	if m.Images != nil {
		cp.Images = append([]string(nil), m.Images...)
	}
	return cp
}
