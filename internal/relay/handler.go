package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const heartbeatInterval = 25 * time.Second

func parseFeeds(r *http.Request) []string {
	var feeds []string
	for _, f := range strings.Split(r.URL.Query().Get("feeds"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			feeds = append(feeds, f)
		}
	}
	return feeds
}

// SSEHandler streams events as server-sent events. Clients may filter with
// ?feeds=prices,invalidate.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe(parseFeeds(r)...)
		defer broker.Unsubscribe(id)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Feed, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

// WebSocketHandler streams events as text frames of the form
// {"feed":..., "time":..., "data":<payload>}. The same ?feeds= filter applies.
func WebSocketHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()

		id, ch := broker.Subscribe(parseFeeds(r)...)
		defer broker.Unsubscribe(id)

		// The reader only watches for close; client messages are ignored.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				frame := fmt.Appendf(nil, `{"feed":%q,"time":%q,"data":%s}`,
					evt.Feed, evt.Time.Format(time.RFC3339Nano), evt.Payload)
				if err := wsutil.WriteServerText(conn, frame); err != nil {
					slog.Debug("websocket write failed", "remote", r.RemoteAddr, "error", err)
					return
				}
			}
		}
	}
}
