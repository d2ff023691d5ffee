package gateway

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/af-corp/iris-gateway/internal/httputil"
)

// streamSSE forwards SSE events from the upstream response to the client
// verbatim. Enhancement already happened on the way in; the response stream
// needs no transformation.
func streamSSE(w http.ResponseWriter, reqID string, upstreamResp *http.Response) {
	defer upstreamResp.Body.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	scanner := bufio.NewScanner(upstreamResp.Body)
	// Increase scanner buffer for large chunks
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		fmt.Fprintf(w, "%s\n", scanner.Text())
		flusher.Flush()
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("upstream stream ended with error", "request_id", reqID, "error", err)
	}
}
