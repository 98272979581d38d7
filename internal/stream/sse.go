package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// EventHandler serves a broadcaster as server-sent events, one JSON document
// per event. New clients get the last value first.
type EventHandler[T any] struct {
	source    *Broadcaster[T]
	event     string
	keepalive time.Duration
}

// NewEventHandler streams source under the given event name.
func NewEventHandler[T any](source *Broadcaster[T], event string) *EventHandler[T] {
	return &EventHandler[T]{source: source, event: event, keepalive: 15 * time.Second}
}

func (h *EventHandler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	listener := h.source.Subscribe()
	defer h.source.Unsubscribe(listener)

	if v, ok := h.source.Last(); ok {
		if err := h.write(w, v); err != nil {
			return
		}
	}
	flusher.Flush()

	ping := time.NewTicker(h.keepalive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case v := <-listener.C:
			if err := h.write(w, v); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventHandler[T]) write(w http.ResponseWriter, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN event stream: marshal %s: %v", h.event, err)
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", h.event, data)
	return err
}
