package courier_api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/services/notifications"
)

const keepaliveInterval = 30 * time.Second

type sseEvent struct {
	ID    string
	Event string
	Data  string
}

// EventHub fans toasts out to every connected SSE client. A client that
// cannot keep up loses events rather than stalling the channel.
type EventHub struct {
	mu       sync.RWMutex
	clients  map[chan sseEvent]struct{}
	stopOnce sync.Once
	stop     chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[chan sseEvent]struct{}),
		stop:    make(chan struct{}),
	}
}

// Start runs the keepalive loop until Stop.
func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *EventHub) run() {
	t := time.NewTicker(keepaliveInterval)
	defer t.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-t.C:
			h.broadcast(sseEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

// Notify implements notifications.Sink.
func (h *EventHub) Notify(t notifications.Toast) {
	b, err := json.Marshal(t)
	if err != nil {
		slog.Error("marshal toast", "error", err.Error())
		return
	}
	h.broadcast(sseEvent{ID: t.ID, Event: "toast", Data: string(b)})
}

func (h *EventHub) broadcast(evt sseEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *EventHub) addClient() chan sseEvent {
	ch := make(chan sseEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) removeClient(ch chan sseEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP streams events until the client goes away or the hub stops.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.addClient()
	defer h.removeClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.stop:
			return
		case evt := <-ch:
			if evt.ID != "" {
				if _, err := fmt.Fprintf(w, "id: %s\n", evt.ID); err != nil {
					return
				}
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				slog.Debug("sse write", "error", err.Error())
				return
			}
			flusher.Flush()
		}
	}
}
