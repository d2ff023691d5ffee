// Package upstream talks to the OpenAI-compatible endpoint behind the
// gateway. It serves both roles the pipeline needs: the model-invocation
// capability for vision calls, and the forwarding path for the final
// transformed request.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/af-corp/iris-gateway/internal/config"
	"github.com/af-corp/iris-gateway/internal/types"
)

type Client struct {
	cfg    config.UpstreamConfig
	client *http.Client
}

func NewClient(cfg config.UpstreamConfig) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

// Describe implements the vision invoker: one user message carrying the
// prompt and the image, no streaming, first choice text back.
func (c *Client) Describe(ctx context.Context, model, prompt string, img types.ImageRef) (string, error) {
	imagePart := types.ContentPart{Type: types.PartImage, Image: img.Payload}
	if img.Kind == types.SourceRemote {
		imagePart = types.ContentPart{Type: types.PartImageURL, ImageURL: &types.ImageURL{URL: img.Payload}}
	}

	req := &types.ChatRequest{
		Model: model,
		Messages: []types.Message{
			{
				Role: "user",
				Content: types.PartsContent(
					types.ContentPart{Type: types.PartText, Text: prompt},
					imagePart,
				),
			},
		},
	}

	resp, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.FirstText(), nil
}

// Complete sends a non-streaming chat completion and decodes the response.
func (c *Client) Complete(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	httpResp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp types.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal upstream response: %w", err)
	}
	return &resp, nil
}

// Forward sends the request and hands the raw response back to the caller,
// body unread. Used for the final hop so streaming and upstream error
// payloads pass through untouched.
func (c *Client) Forward(ctx context.Context, req *types.ChatRequest) (*http.Response, error) {
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req *types.ChatRequest) (*http.Response, error) {
	// Internal tracking fields stay inside the gateway.
	wire := *req
	wire.RequestID = ""
	wire.SessionID = ""

	data, err := json.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	return c.client.Do(httpReq)
}
