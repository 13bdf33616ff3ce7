package api

import (
	"net/http"
	"strings"
)

// handleStream is the one-way SSE transport: same envelopes as the
// WebSocket path, for clients that can only hold a plain HTTP stream.
// GET /events/stream?channels=system,content:42
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	principal, anonymous, err := a.connectPrincipal(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	hc, err := a.hub.Register(principal, anonymous)
	if err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	defer hc.Close()

	if chans := r.URL.Query().Get("channels"); chans != "" {
		for _, ch := range strings.Split(chans, ",") {
			ch = strings.TrimSpace(ch)
			if ch == "" {
				continue
			}
			if anonymous && !a.anonymousAllowed(ch) {
				continue
			}
			hc.Subscribe(ch)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment to open the stream
	_, _ = w.Write([]byte(": ok\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-hc.Mailbox():
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
