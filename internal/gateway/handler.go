package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/iris-gateway/internal/config"
	"github.com/af-corp/iris-gateway/internal/httputil"
	"github.com/af-corp/iris-gateway/internal/pipeline"
	"github.com/af-corp/iris-gateway/internal/types"
	"github.com/af-corp/iris-gateway/internal/upstream"
	"github.com/af-corp/iris-gateway/internal/vision"
)

// SessionHeader carries the caller's conversation identity. Requests without
// it get a fresh session id and no cross-turn continuity.
const SessionHeader = "X-Iris-Session"

// Handler holds dependencies for the gateway HTTP handlers. The getters
// return the current instances so config hot reload takes effect without a
// restart.
type Handler struct {
	pipe func() *pipeline.Pipeline
	up   func() *upstream.Client
	cfg  func() *config.Config
}

func NewHandler(pipe func() *pipeline.Pipeline, up func() *upstream.Client, cfg func() *config.Config) *Handler {
	return &Handler{pipe: pipe, up: up, cfg: cfg}
}

// ChatCompletions handles POST /v1/chat/completions: enhance if the
// destination model needs it, then forward upstream.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Model == "" {
		httputil.WriteBadRequestError(w, reqID, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		httputil.WriteBadRequestError(w, reqID, "messages is required")
		return
	}

	req.RequestID = reqID
	req.ReceivedAt = receivedAt
	req.SessionID = r.Header.Get(SessionHeader)
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	outcome, err := h.pipe().Process(r.Context(), &req)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing useful to write.
			return
		}
		if errors.Is(err, vision.ErrNoVisionModel) {
			httputil.WriteServiceUnavailableError(w, reqID, err.Error())
			return
		}
		slog.Error("pipeline failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to process request")
		return
	}

	upstreamResp, err := h.up().Forward(r.Context(), outcome.Request)
	if err != nil {
		slog.Error("upstream request failed", "request_id", reqID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Upstream request failed")
		return
	}

	if req.Stream && upstreamResp.StatusCode == http.StatusOK &&
		strings.HasPrefix(upstreamResp.Header.Get("Content-Type"), "text/event-stream") {
		streamSSE(w, reqID, upstreamResp)
	} else {
		copyResponse(w, reqID, upstreamResp)
	}

	slog.Info("request completed",
		"request_id", reqID,
		"model", req.Model,
		"provider", outcome.ProviderFamily,
		"passthrough", outcome.Passthrough,
		"images", outcome.Images,
		"cache_hits", outcome.CacheHits,
		"placeholders", outcome.Placeholders,
		"status_code", upstreamResp.StatusCode,
		"stream", req.Stream,
		"duration_ms", time.Since(receivedAt).Milliseconds(),
	)
}

func copyResponse(w http.ResponseWriter, reqID string, resp *http.Response) {
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// ListModels handles GET /v1/models, reporting the enhancement-eligible
// model ids.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	var models []modelObject
	for _, id := range h.cfg().Enhance.NonVisionModelIDs {
		models = append(models, modelObject{
			ID:      id,
			Object:  "model",
			OwnedBy: "iris",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modelListResponse{
		Object: "list",
		Data:   models,
	})
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}
