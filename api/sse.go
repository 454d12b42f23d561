/*
sse.go - Server-Sent Events stream for receipt sessions

PURPOSE:
  Bridges the in-process realtime.Hub to HTTP. Each connected client
  gets a subscription for one session; claim and unclaim events are
  written as SSE frames until the client disconnects.

PROTOCOL:
  Standard text/event-stream. Each event is one "data:" line holding
  the JSON-encoded realtime.Event, followed by a blank line. A comment
  keepalive (": ping") is written every 30s so idle connections survive
  proxies with read timeouts.

DELIVERY:
  Best effort. The hub drops events for subscribers whose buffer is
  full; clients are expected to re-fetch the session on every event
  rather than treating the stream as authoritative.

SEE ALSO:
  - realtime/hub.go: The broadcaster this endpoint subscribes to
  - handlers.go: The claim mutations that publish events
*/
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const keepaliveInterval = 30 * time.Second

// StreamEvents streams claim-state change events for one session.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	// Reject streams for sessions that don't exist so clients fail fast
	// instead of waiting on a feed that will never produce anything.
	if _, err := h.Store.GetSession(r.Context(), sessionID); err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.Hub.Subscribe(sessionID)
	defer sub.Close()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-sub.C:
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Error("sse: failed to encode event",
					"session_id", sessionID, "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
