package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Source is anything that hands out event subscriptions.
type Source interface {
	Subscribe() (int64, <-chan Event)
	Unsubscribe(id int64)
}

// SSEHandler streams events as server-sent events. Clients may filter feeds via the
// ?feeds=name1,name2 query parameter.
func SSEHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		feedFilter := parseFeeds(r.URL.Query().Get("feeds"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := src.Subscribe()
		defer src.Unsubscribe(id)
		slog.Debug("sse client attached", "subscriber", id, "feeds", r.URL.Query().Get("feeds"))

		for {
			select {
			case <-r.Context().Done():
				slog.Debug("sse client detached", "subscriber", id)
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if feedFilter != nil && !feedFilter[evt.Feed] {
					continue
				}
				data, err := json.Marshal(evt.Data)
				if err != nil {
					slog.Warn("sse event marshal failed", "feed", evt.Feed, "error", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Feed, data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func parseFeeds(q string) map[string]bool {
	if q == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, f := range strings.Split(q, ",") {
		if f = strings.TrimSpace(f); f != "" {
			filter[f] = true
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
